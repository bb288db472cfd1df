package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bft-labs/pktreplay/pkg/errs"
	"github.com/bft-labs/pktreplay/pkg/log"
	"github.com/bft-labs/pktreplay/pkg/record"
)

// Locator resolves a timestamp to the record nearest to it.
type Locator interface {
	Locate(ts uint64) (file string, offset int64, ok bool)
}

// MultiReader reads the records of every file in a dataset directory as a
// single stream, in file-name order. It is not safe for concurrent use.
type MultiReader struct {
	dir    string
	cfg    Config
	logger log.Logger

	files []string
	byName map[string]int

	cur     int
	cache   *lru.Cache[int, *record.Reader]
	skipped map[int]error // files whose header could not be read
}

// NewMultiReader scans dir and positions the reader before the first record.
// A missing directory is an error; an empty one yields io.EOF on ReadNext.
func NewMultiReader(dir string, cfg Config, logger log.Logger) (*MultiReader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errs.E(errs.InvalidArgument, "storage.reader", err)
	}
	names, err := Scan(dir)
	if err != nil {
		return nil, err
	}
	m := &MultiReader{
		dir:    dir,
		cfg:    cfg,
		logger: log.OrNoop(logger),
		files:   names,
		byName:  make(map[string]int, len(names)),
		skipped: make(map[int]error),
	}
	for i, n := range names {
		m.byName[n] = i
	}
	m.cache, err = lru.NewWithEvict(cfg.CacheSize, m.evicted)
	if err != nil {
		return nil, errs.E(errs.InvalidArgument, "storage.reader", err)
	}
	if err := m.Rewind(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MultiReader) evicted(idx int, r *record.Reader) {
	if err := r.Close(); err != nil {
		m.logger.Warn("close evicted file", log.String("file", m.files[idx]), log.Err(err))
	}
}

// Files returns the dataset's file names in read order.
func (m *MultiReader) Files() []string {
	return append([]string(nil), m.files...)
}

// Dir returns the dataset directory.
func (m *MultiReader) Dir() string { return m.dir }

// OpenFiles returns the number of cached open file handles.
func (m *MultiReader) OpenFiles() int { return m.cache.Len() }

// ReadNext returns the next record and its position. It returns io.EOF once
// every file is exhausted. Files whose header is unreadable are skipped
// with a warning. Other decode errors are returned as they occur; the
// reader is left after the offending record when its length was readable.
func (m *MultiReader) ReadNext() (record.Record, Position, error) {
	for m.cur < len(m.files) {
		r, err := m.reader(m.cur)
		if err != nil {
			if !m.skip(m.cur, err) {
				return record.Record{}, Position{}, err
			}
		} else {
			at := r.Offset()
			rec, err := r.ReadRecord()
			if err == nil {
				return rec, Position{FileIndex: m.cur, File: m.files[m.cur], Offset: at}, nil
			}
			if !errors.Is(err, io.EOF) {
				return record.Record{}, Position{}, fmt.Errorf("%s: %w", m.files[m.cur], err)
			}
		}
		if err := m.next(); err != nil {
			return record.Record{}, Position{}, err
		}
	}
	return record.Record{}, Position{}, io.EOF
}

// Skipped returns the names of the files skipped so far because their
// header could not be read.
func (m *MultiReader) Skipped() []string {
	var out []string
	for i, name := range m.files {
		if _, ok := m.skipped[i]; ok {
			out = append(out, name)
		}
	}
	return out
}

// next enters the first readable file after the current one. Past the last
// file the reader is exhausted.
func (m *MultiReader) next() error {
	for idx := m.cur + 1; idx < len(m.files); idx++ {
		err := m.enter(idx, record.FileHeaderSize)
		if err == nil {
			return nil
		}
		if !m.skip(idx, err) {
			return err
		}
	}
	m.cur = len(m.files)
	return nil
}

// skip reports whether err leaves file idx unreadable as a whole, warning
// the first time it is seen.
func (m *MultiReader) skip(idx int, err error) bool {
	if !errors.Is(err, errs.InvalidFormat) {
		return false
	}
	if _, seen := m.skipped[idx]; !seen {
		m.skipped[idx] = err
		m.logger.Warn("skipping unreadable record file", log.String("file", m.files[idx]), log.Err(err))
	}
	return true
}

// SeekToByte positions the reader at offset within the fileIndex-th file.
func (m *MultiReader) SeekToByte(fileIndex int, offset int64) error {
	if fileIndex < 0 || fileIndex >= len(m.files) {
		return errs.Ef(errs.InvalidArgument, "storage.seek", "file index %d out of range [0,%d)", fileIndex, len(m.files))
	}
	if offset < record.FileHeaderSize {
		return errs.Ef(errs.InvalidArgument, "storage.seek", "offset %d is before the data region", offset)
	}
	return m.enter(fileIndex, offset)
}

// SeekToTimestamp positions the reader at the record loc reports as
// nearest to ts. It returns false when loc has no entry.
func (m *MultiReader) SeekToTimestamp(ts uint64, loc Locator) (bool, error) {
	if loc == nil {
		return false, errs.Ef(errs.InvalidState, "storage.seek", "no index available")
	}
	name, off, ok := loc.Locate(ts)
	if !ok {
		return false, nil
	}
	idx, found := m.byName[name]
	if !found {
		return false, errs.Ef(errs.InvalidState, "storage.seek", "index refers to unknown file %s", name)
	}
	return true, m.SeekToByte(idx, off)
}

// Rewind positions the reader before the first record.
func (m *MultiReader) Rewind() error {
	if len(m.files) == 0 {
		return nil
	}
	err := m.enter(0, record.FileHeaderSize)
	if err == nil || !m.skip(0, err) {
		return err
	}
	m.cur = 0
	return m.next()
}

// Close closes every cached file.
func (m *MultiReader) Close() error {
	m.cache.Purge()
	m.cur = len(m.files)
	return nil
}

func (m *MultiReader) enter(idx int, offset int64) error {
	r, err := m.reader(idx)
	if err != nil {
		return err
	}
	if err := r.Seek(offset); err != nil {
		return fmt.Errorf("%s: %w", m.files[idx], err)
	}
	m.cur = idx
	return nil
}

// reader returns the cached handle for file idx, opening it on a miss.
func (m *MultiReader) reader(idx int) (*record.Reader, error) {
	if r, ok := m.cache.Get(idx); ok {
		return r, nil
	}
	path := filepath.Join(m.dir, m.files[idx])
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.FromOS("storage.open", path, err)
	}
	r, err := record.NewReader(f, m.cfg.ReaderOptions())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", m.files[idx], err)
	}
	m.cache.Add(idx, r)
	m.logger.Debug("opened record file", log.String("file", m.files[idx]), log.Int("cached", m.cache.Len()))
	return r, nil
}
