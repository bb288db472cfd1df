package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/pktreplay/pkg/dataset"
	"github.com/bft-labs/pktreplay/pkg/errs"
)

func newInfoCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info <dataset>",
		Short: "Describe a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := a.cfg.StorageConfig()
			if err != nil {
				return err
			}
			ds, err := dataset.Open(a.cfg.DataDir, args[0], dataset.WithConfig(sc), dataset.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer ds.Close()

			info, err := ds.Info()
			if err != nil {
				return err
			}
			if info.FileCount == 0 {
				return errs.WithPath(errs.DirectoryNotFound, "info", info.Path, fmt.Errorf("no record files"))
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			printInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printInfo(w io.Writer, info dataset.Info) {
	fmt.Fprintf(w, "dataset:  %s\n", info.Name)
	fmt.Fprintf(w, "path:     %s\n", info.Path)
	fmt.Fprintf(w, "records:  %d in %d files, %d bytes\n", info.TotalRecords, info.FileCount, info.TotalBytes)
	fmt.Fprintf(w, "start:    %s\n", formatTS(info.StartTimestamp))
	fmt.Fprintf(w, "end:      %s\n", formatTS(info.EndTimestamp))
	fmt.Fprintf(w, "duration: %s\n", info.Duration())
	fmt.Fprintf(w, "indexed:  %t\n\n", info.Indexed)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tRECORDS\tBYTES\tSTART\tEND")
	for _, f := range info.Files {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", f.Name, f.Records, f.Size, formatTS(f.StartTimestamp), formatTS(f.EndTimestamp))
	}
	tw.Flush()
}

func formatTS(ns uint64) string {
	if ns == 0 {
		return "-"
	}
	return time.Unix(0, int64(ns)).UTC().Format(time.RFC3339Nano)
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List datasets under the data directory",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := dataset.List(a.cfg.DataDir)
			if err != nil {
				return err
			}
			sc, err := a.cfg.StorageConfig()
			if err != nil {
				return err
			}
			// Listing must not write sidecars.
			sc.AutoIndex = false

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFILES\tRECORDS\tDURATION\tINDEXED")
			for _, name := range names {
				ds, err := dataset.Open(a.cfg.DataDir, name, dataset.WithConfig(sc))
				if err != nil {
					fmt.Fprintf(tw, "%s\t-\t-\t-\t%v\n", name, err)
					continue
				}
				info, err := ds.Info()
				indexed := !ds.IndexManager().NeedsRebuild()
				ds.Close()
				if err != nil {
					fmt.Fprintf(tw, "%s\t-\t-\t-\t%v\n", name, err)
					continue
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%t\n", name, info.FileCount, info.TotalRecords, info.Duration(), indexed)
			}
			return tw.Flush()
		},
	}
}
