package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/pktreplay/pkg/errs"
	"github.com/bft-labs/pktreplay/pkg/record"
)

const baseTS = uint64(1_700_000_000_000_000_000)

func testConfig(perFile int) Config {
	c := DefaultConfig()
	c.MaxRecordsPerFile = perFile
	c.FileNameFormat = FormatSequence
	return c
}

func writeRecords(t *testing.T, dir string, cfg Config, n int, size int) *RotationWriter {
	t.Helper()
	w, err := NewRotationWriter(dir, "test", cfg, nil)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		payload := bytes.Repeat([]byte{byte(i)}, size)
		_, err := w.Write(baseTS+uint64(i)*uint64(time.Millisecond), payload)
		require.NoError(t, err)
	}
	require.NoError(t, w.Finalize())
	return w
}

func TestProfiles(t *testing.T) {
	for _, name := range []string{"default", "high-performance", "low-memory", "debug"} {
		c, err := Profile(name)
		require.NoError(t, err, name)
		require.NoError(t, c.Validate(), name)
	}
	require.Equal(t, 2000, HighPerformance().MaxRecordsPerFile)
	require.False(t, HighPerformance().AutoFlush)
	require.Equal(t, 100, LowMemory().MaxRecordsPerFile)
	require.Equal(t, 50, Debug().MaxRecordsPerFile)

	_, err := Profile("turbo")
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero per file", func(c *Config) { c.MaxRecordsPerFile = 0 }},
		{"tiny buffer", func(c *Config) { c.BufferSize = 10 }},
		{"huge buffer", func(c *Config) { c.BufferSize = MaxBufferSize + 1 }},
		{"huge record", func(c *Config) { c.MaxRecordSize = record.MaxRecordSize + 1 }},
		{"no cache", func(c *Config) { c.CacheSize = 0 }},
		{"bad format", func(c *Config) { c.FileNameFormat = "nope" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestTimestampNamer(t *testing.T) {
	now := time.Date(2024, 3, 7, 9, 5, 1, 123456789, time.UTC)
	require.Equal(t, "cap_240307_090501_1234567_0003.pcap", TimestampNamer("cap", 3, now))
	require.Equal(t, "data_0012.pcap", SequenceNamer("cap", 12, now))

	later := TimestampNamer("cap", 4, now.Add(time.Millisecond))
	require.Less(t, TimestampNamer("cap", 3, now), later)
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.pcap", "a.pcap", "x.pidx", ".hidden.pcap", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pcap"), 0o755))

	names, err := Scan(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"a.pcap", "b.pcap"}, names)

	_, err = Scan(filepath.Join(dir, "missing"))
	require.True(t, errors.Is(err, errs.DirectoryNotFound))
}

func TestRotationWriter_FileCount(t *testing.T) {
	tests := []struct {
		perFile, n, wantFiles int
	}{
		{perFile: 10, n: 1, wantFiles: 1},
		{perFile: 10, n: 10, wantFiles: 1},
		{perFile: 10, n: 11, wantFiles: 2},
		{perFile: 10, n: 37, wantFiles: 4},
		{perFile: 1, n: 5, wantFiles: 5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_per_file_%d", tt.perFile, tt.n), func(t *testing.T) {
			dir := t.TempDir()
			w := writeRecords(t, dir, testConfig(tt.perFile), tt.n, 32)
			require.Len(t, w.Files(), tt.wantFiles)
			require.EqualValues(t, tt.n, w.TotalRecords())

			// Per-file counts add up to the total.
			total := 0
			for _, name := range w.Files() {
				total += countRecords(t, filepath.Join(dir, name))
			}
			require.Equal(t, tt.n, total)
		})
	}
}

func countRecords(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	r, err := record.NewReader(f, record.ReaderOptions{Validate: true})
	require.NoError(t, err)
	defer r.Close()
	n := 0
	for {
		_, err := r.ReadRecord()
		if errors.Is(err, io.EOF) {
			return n
		}
		require.NoError(t, err)
		n++
	}
}

func TestRotationWriter_TwoThousandRecords(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.MaxRecordsPerFile = 1000
	w := writeRecords(t, dir, cfg, 2000, 1024)
	require.Len(t, w.Files(), 2)

	names, err := Scan(dir)
	require.NoError(t, err)
	require.Equal(t, w.Files(), names)

	st := w.Stats()
	require.Equal(t, 2, st.Files)
	require.EqualValues(t, 2000, st.Records)
	require.EqualValues(t, 2*record.FileHeaderSize+2000*(record.RecordHeaderSize+1024), st.Bytes)
}

func TestRotationWriter_Positions(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRotationWriter(dir, "test", testConfig(2), nil)
	require.NoError(t, err)

	var got []Position
	for i := 0; i < 3; i++ {
		p, err := w.Write(baseTS+uint64(i), []byte("abcd"))
		require.NoError(t, err)
		got = append(got, p)
	}
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Finalize(), "finalize is idempotent")

	require.Equal(t, Position{FileIndex: 0, File: "data_0001.pcap", Offset: 16}, got[0])
	require.Equal(t, Position{FileIndex: 0, File: "data_0001.pcap", Offset: 36}, got[1])
	require.Equal(t, Position{FileIndex: 1, File: "data_0002.pcap", Offset: 16}, got[2])

	_, err = w.Write(baseTS, []byte("late"))
	require.True(t, errors.Is(err, errs.InvalidState))
}

func TestRotationWriter_ContinuesAfterExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, testConfig(5), 7, 8)

	w := writeRecords(t, dir, testConfig(5), 3, 8)
	require.Equal(t, []string{"data_0003.pcap"}, w.Files())

	names, err := Scan(dir)
	require.NoError(t, err)
	require.Len(t, names, 3)
}

func TestRotationWriter_RejectsBadPayloadWithoutCreatingFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ds")
	w, err := NewRotationWriter(dir, "test", testConfig(5), nil)
	require.NoError(t, err)

	_, err = w.Write(baseTS, nil)
	require.True(t, errors.Is(err, errs.InvalidPacketSize))
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestMultiReader_ReadsAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, testConfig(4), 10, 16)

	m, err := NewMultiReader(dir, testConfig(4), nil)
	require.NoError(t, err)
	defer m.Close()

	var prev uint64
	for i := 0; i < 10; i++ {
		rec, pos, err := m.ReadNext()
		require.NoError(t, err)
		require.Equal(t, byte(i), rec.Payload[0])
		require.Equal(t, i/4, pos.FileIndex)
		require.GreaterOrEqual(t, rec.Timestamp, prev)
		prev = rec.Timestamp
	}
	_, _, err = m.ReadNext()
	require.ErrorIs(t, err, io.EOF)
	_, _, err = m.ReadNext()
	require.ErrorIs(t, err, io.EOF)
}

func TestMultiReader_EmptyDir(t *testing.T) {
	m, err := NewMultiReader(t.TempDir(), DefaultConfig(), nil)
	require.NoError(t, err)
	_, _, err = m.ReadNext()
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, m.Rewind())
}

func TestMultiReader_MissingDir(t *testing.T) {
	_, err := NewMultiReader(filepath.Join(t.TempDir(), "nope"), DefaultConfig(), nil)
	require.True(t, errors.Is(err, errs.DirectoryNotFound))
}

func TestMultiReader_SeekToByte(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRotationWriter(dir, "test", testConfig(3), nil)
	require.NoError(t, err)
	var positions []Position
	for i := 0; i < 9; i++ {
		p, err := w.Write(baseTS+uint64(i), []byte{byte(i), 1, 2})
		require.NoError(t, err)
		positions = append(positions, p)
	}
	require.NoError(t, w.Finalize())

	m, err := NewMultiReader(dir, testConfig(3), nil)
	require.NoError(t, err)
	defer m.Close()

	for _, i := range []int{7, 1, 4, 0, 8} {
		p := positions[i]
		require.NoError(t, m.SeekToByte(p.FileIndex, p.Offset))
		rec, got, err := m.ReadNext()
		require.NoError(t, err)
		require.Equal(t, byte(i), rec.Payload[0])
		require.Equal(t, p, got)
	}

	require.True(t, errors.Is(m.SeekToByte(0, 4), errs.InvalidArgument))
	require.True(t, errors.Is(m.SeekToByte(3, 16), errs.InvalidArgument))
	require.True(t, errors.Is(m.SeekToByte(-1, 16), errs.InvalidArgument))

	require.NoError(t, m.Rewind())
	rec, _, err := m.ReadNext()
	require.NoError(t, err)
	require.Equal(t, byte(0), rec.Payload[0])
}

type mapLocator map[uint64]Position

func (l mapLocator) Locate(ts uint64) (string, int64, bool) {
	p, ok := l[ts]
	return p.File, p.Offset, ok
}

func TestMultiReader_SeekToTimestamp(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRotationWriter(dir, "test", testConfig(2), nil)
	require.NoError(t, err)
	loc := mapLocator{}
	for i := 0; i < 5; i++ {
		ts := baseTS + uint64(i)*10
		p, err := w.Write(ts, []byte{byte(i)})
		require.NoError(t, err)
		loc[ts] = p
	}
	require.NoError(t, w.Finalize())

	m, err := NewMultiReader(dir, testConfig(2), nil)
	require.NoError(t, err)
	defer m.Close()

	ok, err := m.SeekToTimestamp(baseTS+30, loc)
	require.NoError(t, err)
	require.True(t, ok)
	rec, _, err := m.ReadNext()
	require.NoError(t, err)
	require.Equal(t, baseTS+30, rec.Timestamp)

	ok, err = m.SeekToTimestamp(1, loc)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = m.SeekToTimestamp(baseTS, nil)
	require.True(t, errors.Is(err, errs.InvalidState))
}

func TestMultiReader_CacheEvictsLeastRecentlyUsed(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(1)
	cfg.CacheSize = 2
	writeRecords(t, dir, cfg, 4, 8)

	m, err := NewMultiReader(dir, cfg, nil)
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 4; i++ {
		_, _, err := m.ReadNext()
		require.NoError(t, err)
		require.LessOrEqual(t, m.OpenFiles(), 2)
	}

	// File 0 was evicted; seeking back reopens it.
	require.False(t, m.cache.Contains(0))
	require.NoError(t, m.SeekToByte(0, record.FileHeaderSize))
	require.True(t, m.cache.Contains(0))
	require.True(t, m.cache.Contains(3))
	require.False(t, m.cache.Contains(2))

	rec, _, err := m.ReadNext()
	require.NoError(t, err)
	require.Equal(t, byte(0), rec.Payload[0])
}

func TestMultiReader_ChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	w := writeRecords(t, dir, testConfig(10), 3, 8)

	path := filepath.Join(dir, w.Files()[0])
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[record.FileHeaderSize+record.RecordHeaderSize] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0o644))

	m, err := NewMultiReader(dir, testConfig(10), nil)
	require.NoError(t, err)
	defer m.Close()

	_, _, err = m.ReadNext()
	require.True(t, errors.Is(err, errs.ChecksumMismatch))
	var cerr *record.ChecksumError
	require.ErrorAs(t, err, &cerr)

	// The reader moves past the damaged record.
	rec, _, err := m.ReadNext()
	require.NoError(t, err)
	require.Equal(t, byte(1), rec.Payload[0])
}

func TestMultiReader_SkipsFilesWithoutHeader(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, testConfig(2), 4, 8)
	// data_0001 and data_0002 hold the records; an empty file sorts first
	// and another between them.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data_0000.pcap"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data_0001a.pcap"), []byte("short"), 0o644))

	m, err := NewMultiReader(dir, testConfig(2), nil)
	require.NoError(t, err)
	defer m.Close()

	var got []byte
	for {
		rec, pos, err := m.ReadNext()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.NotEqual(t, "data_0000.pcap", pos.File)
		got = append(got, rec.Payload[0])
	}
	require.Equal(t, []byte{0, 1, 2, 3}, got)
	require.Equal(t, []string{"data_0000.pcap", "data_0001a.pcap"}, m.Skipped())

	// Rewinding lands on the first readable file again.
	require.NoError(t, m.Rewind())
	rec, pos, err := m.ReadNext()
	require.NoError(t, err)
	require.Equal(t, byte(0), rec.Payload[0])
	require.Equal(t, "data_0001.pcap", pos.File)

	// Seeking into an unreadable file is still an error.
	require.ErrorIs(t, m.SeekToByte(0, record.FileHeaderSize), errs.InvalidFormat)
}
