package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bft-labs/pktreplay/internal/capture"
	"github.com/bft-labs/pktreplay/pkg/dataset"
	"github.com/bft-labs/pktreplay/pkg/index"
	"github.com/bft-labs/pktreplay/pkg/log"
)

func newRecordCmd(a *app) *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "record <dataset>",
		Short: "Record UDP datagrams into a dataset",
		Long: `Listen on a UDP address and append every datagram, stamped with its
arrival time, to the named dataset. Recording stops on SIGINT/SIGTERM or
after --limit records; the dataset is then finalized and indexed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := a.cfg.StorageConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			stopMetrics, err := a.serveMetrics()
			if err != nil {
				return err
			}
			defer stopMetrics()

			ds, err := dataset.OpenContext(ctx, a.cfg.DataDir, args[0],
				dataset.WithConfig(sc),
				dataset.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}
			defer ds.Close()
			ds.IndexManager().OnRebuild(func(x *index.DatasetIndex) { a.metrics.IndexRebuilt(x.TotalPackets) })

			rec, err := capture.New(ds, capture.Config{
				Listen:      a.cfg.Listen,
				MaxDatagram: a.cfg.MaxDatagram,
				Limit:       limit,
			}, capture.WithLogger(a.logger), capture.WithObserver(a.metrics))
			if err != nil {
				return err
			}
			if err := rec.Run(ctx); err != nil {
				return fmt.Errorf("record %s: %w", args[0], err)
			}

			st := rec.Stats()
			a.logger.Info("recording finished",
				log.String("dataset", args[0]),
				log.Int64("records", st.Packets),
				log.Int64("bytes", st.Bytes),
				log.Int64("errors", st.Errors),
				log.String("state", rec.Lifecycle().State().String()),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&a.cfg.Listen, "listen", a.cfg.Listen, "UDP address to receive on")
	cmd.Flags().IntVar(&a.cfg.MaxDatagram, "max-datagram", a.cfg.MaxDatagram, "largest datagram to record; longer ones are dropped")
	cmd.Flags().Int64Var(&limit, "limit", 0, "stop after this many records (0 for no limit)")
	return cmd
}
