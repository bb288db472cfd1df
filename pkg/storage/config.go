package storage

import (
	"fmt"

	"github.com/bft-labs/pktreplay/pkg/record"
)

const (
	// DefaultMaxRecordsPerFile is the rotation threshold of the default profile.
	DefaultMaxRecordsPerFile = 500

	// MinBufferSize and MaxBufferSize bound Config.BufferSize.
	MinBufferSize = 1 << 10
	MaxBufferSize = 50 << 20

	// DefaultCacheSize is the number of open files kept by a MultiReader.
	DefaultCacheSize = 5

	// FormatTimestamp names files <dataset>_<yyMMdd_HHmmss_fffffff>_<seq>.pcap.
	FormatTimestamp = "yyMMdd_HHmmss_fffffff"
	// FormatSequence names files data_<seq>.pcap.
	FormatSequence = "sequence"
)

// Config holds storage options shared by writers, readers and the index.
type Config struct {
	// MaxRecordsPerFile triggers rotation.
	MaxRecordsPerFile int `toml:"max_records_per_file"`

	// BufferSize is the bufio size for reads and writes.
	BufferSize int `toml:"buffer_size"`

	// MaxRecordSize rejects larger payloads on write and read.
	MaxRecordSize int `toml:"max_record_size"`

	// EnableValidation verifies checksums on read.
	EnableValidation bool `toml:"enable_validation"`

	// AutoIndex generates or revalidates the time index when a dataset is
	// opened for reading and when a writer is finalized.
	AutoIndex bool `toml:"auto_index"`

	// AutoFlush flushes after every record instead of on rotation/finalize.
	AutoFlush bool `toml:"auto_flush"`

	// FileNameFormat selects the naming scheme (FormatTimestamp or FormatSequence).
	FileNameFormat string `toml:"file_name_format"`

	// CacheSize is the number of open files a MultiReader keeps.
	CacheSize int `toml:"cache_size"`
}

// DefaultConfig returns the balanced default profile.
func DefaultConfig() Config {
	return Config{
		MaxRecordsPerFile: DefaultMaxRecordsPerFile,
		BufferSize:        record.DefaultBufferSize,
		MaxRecordSize:     record.MaxRecordSize,
		EnableValidation:  true,
		AutoIndex:         true,
		AutoFlush:         true,
		FileNameFormat:    FormatTimestamp,
		CacheSize:         DefaultCacheSize,
	}
}

// HighPerformance favours throughput: larger files and buffers, batched flushes.
func HighPerformance() Config {
	c := DefaultConfig()
	c.MaxRecordsPerFile = 2000
	c.BufferSize = 64 << 10
	c.AutoFlush = false
	return c
}

// LowMemory keeps files and buffers small.
func LowMemory() Config {
	c := DefaultConfig()
	c.MaxRecordsPerFile = 100
	c.BufferSize = 2 << 10
	c.CacheSize = 2
	return c
}

// Debug rotates often and validates everything.
func Debug() Config {
	c := DefaultConfig()
	c.MaxRecordsPerFile = 50
	c.BufferSize = 4 << 10
	c.EnableValidation = true
	return c
}

// Profile returns a named profile: "default", "high-performance",
// "low-memory" or "debug".
func Profile(name string) (Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "high-performance":
		return HighPerformance(), nil
	case "low-memory":
		return LowMemory(), nil
	case "debug":
		return Debug(), nil
	default:
		return Config{}, fmt.Errorf("unknown storage profile %q", name)
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxRecordsPerFile <= 0 {
		return fmt.Errorf("max_records_per_file must be positive")
	}
	if c.BufferSize < MinBufferSize || c.BufferSize > MaxBufferSize {
		return fmt.Errorf("buffer_size must be between %d and %d bytes", MinBufferSize, MaxBufferSize)
	}
	if c.MaxRecordSize <= 0 || c.MaxRecordSize > record.MaxRecordSize {
		return fmt.Errorf("max_record_size must be between 1 and %d bytes", record.MaxRecordSize)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive")
	}
	if _, err := NamerFor(c.FileNameFormat); err != nil {
		return err
	}
	return nil
}

func (c Config) writerOptions() record.WriterOptions {
	return record.WriterOptions{
		BufferSize:    c.BufferSize,
		MaxRecordSize: c.MaxRecordSize,
		AutoFlush:     c.AutoFlush,
	}
}

// ReaderOptions returns the codec options implied by the configuration.
func (c Config) ReaderOptions() record.ReaderOptions {
	return record.ReaderOptions{
		BufferSize:    c.BufferSize,
		MaxRecordSize: c.MaxRecordSize,
		Validate:      c.EnableValidation,
	}
}
