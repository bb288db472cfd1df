package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/pktreplay/pkg/dataset"
	"github.com/bft-labs/pktreplay/pkg/index"
	"github.com/bft-labs/pktreplay/pkg/log"
)

func newIndexCmd(a *app) *cobra.Command {
	var (
		force    bool
		watch    bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "index <dataset>",
		Short: "Build or refresh a dataset's time index",
		Long: `Load the dataset's .pidx sidecar and rebuild it when it is missing or no
longer matches the record files. With --watch the command keeps running and
rebuilds the index whenever record files change.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := dataset.ValidateName(name); err != nil {
				return err
			}
			sc, err := a.cfg.StorageConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			m := index.NewManager(filepath.Join(a.cfg.DataDir, name), name, sc, a.logger)
			m.OnRebuild(func(x *index.DatasetIndex) {
				a.metrics.IndexRebuilt(x.TotalPackets)
				a.logger.Info("index rebuilt",
					log.String("dataset", name),
					log.Int64("packets", x.TotalPackets),
					log.Int("files", len(x.Files)),
				)
			})

			var x *index.DatasetIndex
			if force {
				x, err = m.Regenerate(ctx)
			} else {
				x, err = m.EnsureIndex(ctx)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d packets in %d files, %s (%s)\n",
				name, x.TotalPackets, len(x.Files), x.Duration(), m.Path())

			if !watch {
				return nil
			}
			stopMetrics, err := a.serveMetrics()
			if err != nil {
				return err
			}
			defer stopMetrics()

			a.logger.Info("watching for changes", log.String("dataset", name), log.Duration("debounce", debounce))
			return m.Watch(ctx, debounce)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "rebuild even when the sidecar is current")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep the index up to date as record files change")
	cmd.Flags().DurationVar(&debounce, "debounce", index.DefaultDebounce, "quiet period before rebuilding after a change")
	return cmd
}
