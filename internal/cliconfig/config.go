package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bft-labs/pktreplay/internal/capture"
	"github.com/bft-labs/pktreplay/pkg/dispatch"
	"github.com/bft-labs/pktreplay/pkg/playback"
	"github.com/bft-labs/pktreplay/pkg/storage"
)

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "PKTREPLAY_"

// Config holds CLI configuration for pktreplay.
type Config struct {
	DataDir string
	Profile string

	// Storage overrides; zero or nil keeps the profile's value.
	MaxRecordsPerFile int
	BufferSize        int
	MaxRecordSize     int
	CacheSize         int
	FileNameFormat    string
	EnableValidation  *bool
	AutoIndex         *bool
	AutoFlush         *bool

	// Playback destination.
	Mode      string
	Target    string
	Interface string
	TTL       int
	Loopback  bool

	Speed        float64
	TickInterval time.Duration

	// Capture source.
	Listen      string
	MaxDatagram int

	MetricsAddr string
	LogLevel    string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		DataDir:      defaultDataDir(),
		Profile:      "default",
		Mode:         dispatch.Unicast.String(),
		Target:       "127.0.0.1:5000",
		Loopback:     true,
		Speed:        1,
		TickInterval: playback.DefaultTickInterval,
		Listen:       ":5000",
		MaxDatagram:  capture.MaxDatagram,
		LogLevel:     "info",
	}
}

func defaultDataDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".pktreplay", "data")
	}
	return "data"
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data-dir is required")
	}
	if _, err := c.StorageConfig(); err != nil {
		return err
	}
	if _, err := dispatch.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.Speed < playback.MinSpeed || c.Speed > playback.MaxSpeed {
		return fmt.Errorf("speed must be between %.1f and %.1f", playback.MinSpeed, playback.MaxSpeed)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if c.MaxDatagram <= 0 {
		return fmt.Errorf("max datagram size must be positive")
	}
	return nil
}

// StorageConfig returns the profile named by Profile with the explicit
// overrides applied.
func (c *Config) StorageConfig() (storage.Config, error) {
	sc, err := storage.Profile(c.Profile)
	if err != nil {
		return storage.Config{}, err
	}
	if c.MaxRecordsPerFile > 0 {
		sc.MaxRecordsPerFile = c.MaxRecordsPerFile
	}
	if c.BufferSize > 0 {
		sc.BufferSize = c.BufferSize
	}
	if c.MaxRecordSize > 0 {
		sc.MaxRecordSize = c.MaxRecordSize
	}
	if c.CacheSize > 0 {
		sc.CacheSize = c.CacheSize
	}
	if c.FileNameFormat != "" {
		sc.FileNameFormat = c.FileNameFormat
	}
	if c.EnableValidation != nil {
		sc.EnableValidation = *c.EnableValidation
	}
	if c.AutoIndex != nil {
		sc.AutoIndex = *c.AutoIndex
	}
	if c.AutoFlush != nil {
		sc.AutoFlush = *c.AutoFlush
	}
	if err := sc.Validate(); err != nil {
		return storage.Config{}, err
	}
	return sc, nil
}

// DispatchConfig returns the playback destination.
func (c *Config) DispatchConfig() (dispatch.Config, error) {
	mode, err := dispatch.ParseMode(c.Mode)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Mode:      mode,
		Address:   c.Target,
		Interface: c.Interface,
		TTL:       c.TTL,
		Loopback:  c.Loopback,
	}, nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setOptionalBool sets an optional bool if value is not nil and flag not
// changed. Unset options keep the storage profile's value.
func (s *configSetter) setOptionalBool(flag string, value *bool, dst **bool) {
	if value == nil || s.changed[flag] {
		return
	}
	v := *value
	*dst = &v
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

// setOptionalBoolFromString is setBoolFromString for optional bools.
func (s *configSetter) setOptionalBoolFromString(flag, value string, dst **bool) {
	if value == "" || s.changed[flag] {
		return
	}
	v := value == "true" || value == "1"
	*dst = &v
}

// StorageFlags holds the values of the boolean storage flags. They only
// override the profile when given on the command line.
type StorageFlags struct {
	EnableValidation bool
	AutoIndex        bool
	AutoFlush        bool
}

// ApplyStorageFlags copies the explicitly changed storage flags into cfg.
func ApplyStorageFlags(cfg *Config, f StorageFlags, changed map[string]bool) {
	set := func(flag string, v bool, dst **bool) {
		if changed[flag] {
			*dst = &v
		}
	}
	set("enable-validation", f.EnableValidation, &cfg.EnableValidation)
	set("auto-index", f.AutoIndex, &cfg.AutoIndex)
	set("auto-flush", f.AutoFlush, &cfg.AutoFlush)
}
