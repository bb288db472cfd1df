package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/pktreplay/internal/cliconfig"
	"github.com/bft-labs/pktreplay/internal/metrics"
	"github.com/bft-labs/pktreplay/pkg/log"
)

const longHelp = `
Record UDP traffic into rotated capture files and replay it later with the
original timing.

A dataset is a directory under --data-dir holding .pcap record files and a
<name>.pidx time index. Configuration is read from $HOME/.pktreplay/config.toml,
then PKTREPLAY_* environment variables, then flags.
`

var exampleUsage = strings.TrimSpace(`
  pktreplay record feed --listen :5000 --limit 10000
  pktreplay play feed --target 239.1.2.3:5000 --mode multicast --speed 2
  pktreplay index feed --watch
  pktreplay info feed
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// app carries the resolved configuration and shared plumbing to subcommands.
type app struct {
	cfg     cliconfig.Config
	cfgPath string
	flags   cliconfig.StorageFlags

	zl      zerolog.Logger
	logger  log.Logger
	reg     *prometheus.Registry
	metrics *metrics.Metrics
}

func main() {
	a := &app{cfg: cliconfig.DefaultConfig()}
	a.zl = cliconfig.Logger(a.cfg.LogLevel)

	root := &cobra.Command{
		Use:               "pktreplay",
		Short:             "Record and replay UDP packet streams",
		Long:              strings.TrimSpace(longHelp),
		Example:           exampleUsage,
		Version:           fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "path to config file (default: $HOME/.pktreplay/config.toml)")
	pf.StringVar(&a.cfg.DataDir, "data-dir", a.cfg.DataDir, "directory holding datasets")
	pf.StringVar(&a.cfg.Profile, "profile", a.cfg.Profile, "storage profile: default, high-performance, low-memory, debug")
	pf.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level: debug, info, warn, error")
	pf.StringVar(&a.cfg.MetricsAddr, "metrics-addr", a.cfg.MetricsAddr, "serve Prometheus metrics on this address (disabled when empty)")

	pf.IntVar(&a.cfg.MaxRecordsPerFile, "max-records", a.cfg.MaxRecordsPerFile, "records per file before rotating (0 keeps the profile's value)")
	pf.IntVar(&a.cfg.BufferSize, "buffer-size", a.cfg.BufferSize, "file buffer size in bytes (0 keeps the profile's value)")
	pf.IntVar(&a.cfg.MaxRecordSize, "max-record-size", a.cfg.MaxRecordSize, "largest record payload in bytes (0 keeps the profile's value)")
	pf.IntVar(&a.cfg.CacheSize, "cache-size", a.cfg.CacheSize, "open file handles kept while reading (0 keeps the profile's value)")
	pf.StringVar(&a.cfg.FileNameFormat, "name-format", a.cfg.FileNameFormat, "record file naming: yyMMdd_HHmmss_fffffff or sequence")
	pf.BoolVar(&a.flags.EnableValidation, "enable-validation", true, "verify record checksums while reading (default from profile)")
	pf.BoolVar(&a.flags.AutoIndex, "auto-index", true, "keep the time index up to date automatically (default from profile)")
	pf.BoolVar(&a.flags.AutoFlush, "auto-flush", true, "flush after every record (default from profile)")

	root.AddCommand(
		newRecordCmd(a),
		newPlayCmd(a),
		newIndexCmd(a),
		newInfoCmd(a),
		newListCmd(a),
	)

	if err := root.Execute(); err != nil {
		a.zl.Error().Err(err).Msg("pktreplay")
		os.Exit(1)
	}
}

// load resolves configuration: defaults, then the config file, then the
// environment, with explicitly set flags winning over both.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	cliconfig.ApplyStorageFlags(&a.cfg, a.flags, changed)

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := cliconfig.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.zl = cliconfig.Logger(a.cfg.LogLevel)
	a.logger = log.NewZerologAdapterWithLogger(a.zl)
	a.zl.Debug().Interface("config", a.cfg).Msg("configuration")

	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.reg)
	return nil
}

// serveMetrics starts the metrics endpoint when one is configured. The
// returned function stops it.
func (a *app) serveMetrics() (func(), error) {
	if a.cfg.MetricsAddr == "" {
		return func() {}, nil
	}
	s, err := metrics.NewServer(a.cfg.MetricsAddr, a.reg, a.logger)
	if err != nil {
		return nil, err
	}
	s.Start()
	return func() {
		if err := s.Stop(context.Background()); err != nil {
			a.logger.Warn("metrics server stop", log.Err(err))
		}
	}, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
