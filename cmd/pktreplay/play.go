package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/pktreplay/pkg/dispatch"
	"github.com/bft-labs/pktreplay/pkg/lifecycle"
	"github.com/bft-labs/pktreplay/pkg/log"
	"github.com/bft-labs/pktreplay/pkg/playback"
	"github.com/bft-labs/pktreplay/pkg/record"
)

const progressInterval = 5 * time.Second

func newPlayCmd(a *app) *cobra.Command {
	var (
		from string
		loop bool
	)

	cmd := &cobra.Command{
		Use:   "play <dataset>",
		Short: "Replay a dataset to a UDP destination",
		Long: `Send the records of a dataset to --target with the gaps between their
timestamps preserved, scaled by --speed. --from starts playback at an
absolute time (RFC3339 or nanoseconds since the epoch) or at an offset from
the first record ("+90s").`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := a.cfg.StorageConfig()
			if err != nil {
				return err
			}
			dc, err := a.cfg.DispatchConfig()
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

			sender, err := dispatch.New(dc, a.logger)
			if err != nil {
				return err
			}
			defer sender.Close()

			ended := make(chan playback.State, 1)
			eng := playback.NewEngine(a.cfg.DataDir, sender,
				playback.WithTickInterval(a.cfg.TickInterval),
				playback.WithLogger(a.logger),
				playback.WithStorageConfig(sc),
				playback.WithObserver(a.metrics),
				playback.WithOnStateChange(func(s playback.State) {
					if s.Status == playback.Completed || s.Status == playback.Stopped {
						select {
						case ended <- s:
						default:
						}
					}
				}),
			)
			if _, err := eng.SetSpeed(a.cfg.Speed); err != nil {
				return err
			}
			if err := eng.Start(ctx, args[0]); err != nil {
				return err
			}
			if from != "" {
				ts, err := parseFrom(from, eng.State().StartTime)
				if err != nil {
					return err
				}
				if err := eng.Seek(ts); err != nil {
					return err
				}
			}

			runErr := make(chan error, 1)
			go func() { runErr <- eng.Run(ctx) }()

			a.logger.Info("playing",
				log.String("dataset", args[0]),
				log.String("target", sender.Destination().String()),
				log.String("mode", sender.Mode().String()),
				log.Float64("speed", eng.State().Speed),
			)

			err = a.wait(ctx, eng, ended, runErr, loop)
			if serr := eng.Lifecycle().Shutdown(lifecycle.ShutdownTimeout); serr != nil && err == nil {
				err = serr
			}

			st := eng.State()
			ss := sender.Stats()
			a.logger.Info("playback finished",
				log.String("status", st.Status.String()),
				log.Uint64("dispatched", st.Dispatched),
				log.Uint64("send_errors", st.SendErrors),
				log.Uint64("bytes", ss.Bytes),
				log.Float64("progress", st.Progress()),
			)
			if err != nil {
				return err
			}
			return st.Err
		},
	}

	cmd.Flags().StringVar(&a.cfg.Mode, "mode", a.cfg.Mode, "delivery mode: unicast, multicast, broadcast")
	cmd.Flags().StringVar(&a.cfg.Target, "target", a.cfg.Target, "destination host:port")
	cmd.Flags().StringVar(&a.cfg.Interface, "iface", a.cfg.Interface, "outgoing interface for multicast")
	cmd.Flags().IntVar(&a.cfg.TTL, "ttl", a.cfg.TTL, "IP TTL / multicast hop limit (0 keeps the system default)")
	cmd.Flags().BoolVar(&a.cfg.Loopback, "loopback", a.cfg.Loopback, "deliver multicast to local listeners")
	cmd.Flags().Float64Var(&a.cfg.Speed, "speed", a.cfg.Speed, "playback speed multiplier (0.1 to 10)")
	cmd.Flags().DurationVar(&a.cfg.TickInterval, "tick", a.cfg.TickInterval, "scheduler tick interval")
	cmd.Flags().StringVar(&from, "from", "", "start time: RFC3339, nanoseconds, or +offset from the first record")
	cmd.Flags().BoolVar(&loop, "loop", false, "restart from the beginning when playback completes")
	return cmd
}

// wait blocks until playback ends, the tick loop exits or ctx is canceled,
// logging progress along the way.
func (a *app) wait(ctx context.Context, eng *playback.Engine, ended <-chan playback.State, runErr <-chan error, loop bool) error {
	t := time.NewTicker(progressInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("received signal, stopping")
			eng.Stop()
			return nil
		case err := <-runErr:
			if err == nil {
				return nil
			}
			return fmt.Errorf("playback loop exited: %w", err)
		case s := <-ended:
			if s.Status == playback.Completed && loop {
				if err := eng.Seek(s.StartTime); err != nil {
					return err
				}
				if err := eng.Resume(); err != nil {
					return err
				}
				a.logger.Info("looping", log.String("dataset", s.Dataset))
				continue
			}
			return nil
		case <-t.C:
			st := eng.State()
			a.logger.Info("progress",
				log.Timestamp("at", st.CurrentTime),
				log.Float64("percent", st.Progress()*100),
				log.Uint64("dispatched", st.Dispatched),
			)
		}
	}
}

// parseFrom accepts an RFC3339 time, nanoseconds since the epoch, or an
// offset such as "+1m30s" from start.
func parseFrom(s string, start uint64) (uint64, error) {
	if strings.HasPrefix(s, "+") {
		d, err := time.ParseDuration(s[1:])
		if err != nil || d < 0 {
			return 0, fmt.Errorf("invalid --from offset %q", s)
		}
		return start + uint64(d), nil
	}
	if ns, err := strconv.ParseUint(s, 10, 64); err == nil {
		return ns, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("invalid --from time %q", s)
	}
	return record.Timestamp(t), nil
}
