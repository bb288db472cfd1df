package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DataDir           string  `toml:"data_dir"`
	Profile           string  `toml:"profile"`
	MaxRecordsPerFile int     `toml:"max_records_per_file"`
	BufferSize        int     `toml:"buffer_size"`
	MaxRecordSize     int     `toml:"max_record_size"`
	CacheSize         int     `toml:"cache_size"`
	FileNameFormat    string  `toml:"file_name_format"`
	EnableValidation  *bool   `toml:"enable_validation"`
	AutoIndex         *bool   `toml:"auto_index"`
	AutoFlush         *bool   `toml:"auto_flush"`
	Mode              string  `toml:"mode"`
	Target            string  `toml:"target"`
	Interface         string  `toml:"interface"`
	TTL               int     `toml:"ttl"`
	Loopback          *bool   `toml:"loopback"`
	Speed             float64 `toml:"speed"`
	TickInterval      string  `toml:"tick_interval"`
	Listen            string  `toml:"listen"`
	MaxDatagram       int     `toml:"max_datagram"`
	MetricsAddr       string  `toml:"metrics_addr"`
	LogLevel          string  `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.pktreplay/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".pktreplay", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", fc.DataDir, &cfg.DataDir)
	s.setString("profile", fc.Profile, &cfg.Profile)
	s.setString("name-format", fc.FileNameFormat, &cfg.FileNameFormat)
	s.setString("mode", fc.Mode, &cfg.Mode)
	s.setString("target", fc.Target, &cfg.Target)
	s.setString("iface", fc.Interface, &cfg.Interface)
	s.setString("listen", fc.Listen, &cfg.Listen)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("tick", fc.TickInterval, &cfg.TickInterval); err != nil {
		return err
	}

	s.setFloat("speed", fc.Speed, &cfg.Speed)

	s.setInt("max-records", fc.MaxRecordsPerFile, &cfg.MaxRecordsPerFile)
	s.setInt("buffer-size", fc.BufferSize, &cfg.BufferSize)
	s.setInt("max-record-size", fc.MaxRecordSize, &cfg.MaxRecordSize)
	s.setInt("cache-size", fc.CacheSize, &cfg.CacheSize)
	s.setInt("ttl", fc.TTL, &cfg.TTL)
	s.setInt("max-datagram", fc.MaxDatagram, &cfg.MaxDatagram)

	s.setOptionalBool("enable-validation", fc.EnableValidation, &cfg.EnableValidation)
	s.setOptionalBool("auto-index", fc.AutoIndex, &cfg.AutoIndex)
	s.setOptionalBool("auto-flush", fc.AutoFlush, &cfg.AutoFlush)
	s.setBool("loopback", fc.Loopback, &cfg.Loopback)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
