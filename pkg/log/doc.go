// Package log provides the logging abstraction used by pktreplay libraries.
//
// Libraries accept a Logger and default to NewNoopLogger so that embedding
// applications stay in control of output. The CLI wires a zerolog console
// logger through ZerologAdapter:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	ds, err := dataset.Open(root, "radar", dataset.WithLogger(logger))
//
// Fields are built with the typed helpers:
//
//	logger.Info("rotated record file",
//	    log.String("file", name),
//	    log.Int("records", n),
//	)
package log
