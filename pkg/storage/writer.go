package storage

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bft-labs/pktreplay/pkg/errs"
	"github.com/bft-labs/pktreplay/pkg/log"
	"github.com/bft-labs/pktreplay/pkg/record"
)

// Position locates a record inside a dataset.
type Position struct {
	FileIndex int    // index into the dataset's sorted file list
	File      string // file name, relative to the dataset directory
	Offset    int64  // byte offset of the record header
}

// WriterStats summarizes what a RotationWriter has produced.
type WriterStats struct {
	Files   int
	Records int64
	Bytes   int64
}

// RotationWriter appends records to a dataset directory, starting a new
// file every Config.MaxRecordsPerFile records. It is not safe for
// concurrent use.
type RotationWriter struct {
	dir     string
	dataset string
	cfg     Config
	namer   Namer
	logger  log.Logger
	now     func() time.Time

	existing int // files present before this writer started
	last     string

	f      *os.File
	w      *record.Writer
	inFile int

	files     []string
	records   int64
	bytes     int64
	finalized bool
}

// WriterOption customizes a RotationWriter.
type WriterOption func(*RotationWriter)

// WithClock overrides the time source used for file names.
func WithClock(now func() time.Time) WriterOption {
	return func(w *RotationWriter) { w.now = now }
}

// WithNamer overrides the naming scheme selected by Config.FileNameFormat.
func WithNamer(n Namer) WriterOption {
	return func(w *RotationWriter) { w.namer = n }
}

// NewRotationWriter prepares a writer for dir. The directory is created on
// the first Write. Files already present are left untouched; new files sort
// after them.
func NewRotationWriter(dir, dataset string, cfg Config, logger log.Logger, opts ...WriterOption) (*RotationWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errs.E(errs.InvalidArgument, "storage.writer", err)
	}
	namer, _ := NamerFor(cfg.FileNameFormat)
	w := &RotationWriter{
		dir:     dir,
		dataset: dataset,
		cfg:     cfg,
		namer:   namer,
		logger:  log.OrNoop(logger),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}

	names, err := Scan(dir)
	if err != nil && errs.KindOf(err) != errs.DirectoryNotFound {
		return nil, err
	}
	w.existing = len(names)
	if len(names) > 0 {
		w.last = names[len(names)-1]
	}
	return w, nil
}

// Write appends one record, rotating first if the current file is full.
func (w *RotationWriter) Write(ts uint64, payload []byte) (Position, error) {
	if w.finalized {
		return Position{}, errs.Ef(errs.InvalidState, "storage.write", "writer is finalized")
	}
	// Reject bad payloads before a rotation can create an empty file.
	if len(payload) == 0 || len(payload) > w.cfg.MaxRecordSize {
		return Position{}, errs.Ef(errs.InvalidPacketSize, "storage.write", "%d bytes (max %d)", len(payload), w.cfg.MaxRecordSize)
	}
	if w.f == nil || w.inFile >= w.cfg.MaxRecordsPerFile {
		if err := w.rotate(); err != nil {
			return Position{}, err
		}
	}

	off, err := w.w.WriteRecord(ts, payload)
	if err != nil {
		return Position{}, err
	}
	w.inFile++
	w.records++
	w.bytes += int64(record.RecordHeaderSize + len(payload))

	name := w.files[len(w.files)-1]
	return Position{FileIndex: w.existing + len(w.files) - 1, File: name, Offset: off}, nil
}

func (w *RotationWriter) rotate() error {
	if err := w.closeCurrent(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return errs.FromOSDir("storage.rotate", w.dir, err)
	}

	seq := w.existing + len(w.files) + 1
	name := w.namer(w.dataset, seq, w.now())
	if name <= w.last {
		return errs.Ef(errs.InvalidState, "storage.rotate", "file name %s does not sort after %s", name, w.last)
	}
	path := filepath.Join(w.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.FromOS("storage.rotate", path, err)
	}
	rw := record.NewWriter(f, 0, w.cfg.writerOptions())
	if err := rw.WriteFileHeader(); err != nil {
		f.Close()
		return err
	}

	w.f, w.w = f, rw
	w.inFile = 0
	w.last = name
	w.files = append(w.files, name)
	w.bytes += record.FileHeaderSize
	w.logger.Debug("opened record file", log.String("file", name), log.Int("seq", seq))
	return nil
}

func (w *RotationWriter) closeCurrent() error {
	if w.f == nil {
		return nil
	}
	f, rw := w.f, w.w
	w.f, w.w = nil, nil
	if err := rw.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errs.FromOS("storage.close", f.Name(), err)
	}
	return nil
}

// Flush writes buffered records of the current file to disk.
func (w *RotationWriter) Flush() error {
	if w.w == nil {
		return nil
	}
	return w.w.Flush()
}

// Finalize flushes and closes the current file. It is idempotent.
func (w *RotationWriter) Finalize() error {
	if w.finalized {
		return nil
	}
	w.finalized = true
	if err := w.closeCurrent(); err != nil {
		return err
	}
	w.logger.Debug("finalized writer",
		log.Int("files", len(w.files)),
		log.Int64("records", w.records),
	)
	return nil
}

// Files returns the names of the files created by this writer.
func (w *RotationWriter) Files() []string {
	return append([]string(nil), w.files...)
}

// TotalRecords returns the number of records written.
func (w *RotationWriter) TotalRecords() int64 { return w.records }

// Stats returns counters for the files created by this writer.
func (w *RotationWriter) Stats() WriterStats {
	return WriterStats{Files: len(w.files), Records: w.records, Bytes: w.bytes}
}
