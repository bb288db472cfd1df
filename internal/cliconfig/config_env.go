package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (PKTREPLAY_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	s.setString("data-dir", env("DATA_DIR"), &cfg.DataDir)
	s.setString("profile", env("PROFILE"), &cfg.Profile)
	s.setString("name-format", env("FILE_NAME_FORMAT"), &cfg.FileNameFormat)
	s.setString("mode", env("MODE"), &cfg.Mode)
	s.setString("target", env("TARGET"), &cfg.Target)
	s.setString("iface", env("INTERFACE"), &cfg.Interface)
	s.setString("listen", env("LISTEN"), &cfg.Listen)
	s.setString("metrics-addr", env("METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("tick", env("TICK_INTERVAL"), &cfg.TickInterval); err != nil {
		return err
	}
	if err := s.setFloatFromString("speed", env("SPEED"), &cfg.Speed); err != nil {
		return err
	}

	if err := s.setIntFromString("max-records", env("MAX_RECORDS_PER_FILE"), &cfg.MaxRecordsPerFile); err != nil {
		return err
	}
	if err := s.setIntFromString("buffer-size", env("BUFFER_SIZE"), &cfg.BufferSize); err != nil {
		return err
	}
	if err := s.setIntFromString("max-record-size", env("MAX_RECORD_SIZE"), &cfg.MaxRecordSize); err != nil {
		return err
	}
	if err := s.setIntFromString("cache-size", env("CACHE_SIZE"), &cfg.CacheSize); err != nil {
		return err
	}
	if err := s.setIntFromString("ttl", env("TTL"), &cfg.TTL); err != nil {
		return err
	}
	if err := s.setIntFromString("max-datagram", env("MAX_DATAGRAM"), &cfg.MaxDatagram); err != nil {
		return err
	}

	s.setOptionalBoolFromString("enable-validation", env("ENABLE_VALIDATION"), &cfg.EnableValidation)
	s.setOptionalBoolFromString("auto-index", env("AUTO_INDEX"), &cfg.AutoIndex)
	s.setOptionalBoolFromString("auto-flush", env("AUTO_FLUSH"), &cfg.AutoFlush)
	s.setBoolFromString("loopback", env("LOOPBACK"), &cfg.Loopback)

	return nil
}
