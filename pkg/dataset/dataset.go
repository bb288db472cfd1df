// Package dataset is the read/write handle of a named dataset: a directory
// <root>/<name> of rotated record files plus its time index.
package dataset

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bft-labs/pktreplay/pkg/errs"
	"github.com/bft-labs/pktreplay/pkg/index"
	"github.com/bft-labs/pktreplay/pkg/log"
	"github.com/bft-labs/pktreplay/pkg/record"
	"github.com/bft-labs/pktreplay/pkg/storage"
)

type options struct {
	cfg        storage.Config
	logger     log.Logger
	writerOpts []storage.WriterOption
}

// Option configures Open.
type Option func(*options)

// WithConfig sets the storage configuration.
func WithConfig(cfg storage.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithWriterOptions passes options to the rotation writer.
func WithWriterOptions(opts ...storage.WriterOption) Option {
	return func(o *options) { o.writerOpts = append(o.writerOpts, opts...) }
}

// Dataset is not safe for concurrent use; one goroutine owns it.
type Dataset struct {
	ctx    context.Context
	name   string
	dir    string
	cfg    storage.Config
	logger log.Logger
	wopts  []storage.WriterOption

	mgr *index.Manager
	idx *index.DatasetIndex

	w *storage.RotationWriter
	r *storage.MultiReader
}

// Open returns a handle for dataset name under root. The directory is
// created on the first Write.
func Open(root, name string, opts ...Option) (*Dataset, error) {
	return OpenContext(context.Background(), root, name, opts...)
}

// OpenContext is Open with a context bounding index work. When the dataset
// already holds records and AutoIndex is set, the index is loaded, or
// rebuilt if stale; index failures are logged and never fail the open.
func OpenContext(ctx context.Context, root, name string, opts ...Option) (*Dataset, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	o := options{cfg: storage.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, errs.E(errs.InvalidArgument, "dataset.open", err)
	}

	dir := filepath.Join(root, name)
	logger := log.With(log.OrNoop(o.logger), log.String("dataset", name))
	d := &Dataset{
		ctx:    ctx,
		name:   name,
		dir:    dir,
		cfg:    o.cfg,
		logger: logger,
		wopts:  o.writerOpts,
		mgr:    index.NewManager(dir, name, o.cfg, logger),
	}

	files, err := storage.Scan(dir)
	switch {
	case errs.KindOf(err) == errs.DirectoryNotFound:
		// New dataset.
	case err != nil:
		return nil, err
	case len(files) > 0 && o.cfg.AutoIndex:
		d.ensureIndex()
	}
	return d, nil
}

// ValidateName rejects names that are not a single path element.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return errs.Ef(errs.InvalidArgument, "dataset.open", "invalid dataset name %q", name)
	}
	return nil
}

// List returns the names of the datasets under root.
func List(root string) ([]string, error) {
	ents, err := os.ReadDir(root)
	if err != nil {
		return nil, errs.FromOSDir("dataset.list", root, err)
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *Dataset) ensureIndex() {
	x, err := d.mgr.EnsureIndex(d.ctx)
	if err != nil {
		d.idx = nil
		d.logger.Warn("index unavailable, timestamp seeks fall back to scanning", log.Err(err))
		return
	}
	d.idx = x
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.name }

// Dir returns the dataset directory.
func (d *Dataset) Dir() string { return d.dir }

// Index returns the current time index, or nil when there is none.
func (d *Dataset) Index() *index.DatasetIndex { return d.idx }

// IndexManager returns the manager of the dataset's sidecar.
func (d *Dataset) IndexManager() *index.Manager { return d.mgr }

// Write appends a record.
func (d *Dataset) Write(ts uint64, payload []byte) (storage.Position, error) {
	if d.w == nil {
		w, err := storage.NewRotationWriter(d.dir, d.name, d.cfg, d.logger, d.wopts...)
		if err != nil {
			return storage.Position{}, err
		}
		d.w = w
	}
	return d.w.Write(ts, payload)
}

// Finalize closes the writer. With AutoIndex the index is brought up to
// date afterwards. Calling it without a writer is a no-op.
func (d *Dataset) Finalize() error {
	if d.w == nil {
		return nil
	}
	w := d.w
	d.w = nil
	if err := w.Finalize(); err != nil {
		return err
	}
	// Readers opened earlier do not see the new files.
	d.closeReader()
	if d.cfg.AutoIndex && w.TotalRecords() > 0 {
		d.ensureIndex()
	}
	return nil
}

func (d *Dataset) reader() (*storage.MultiReader, error) {
	if d.r != nil {
		return d.r, nil
	}
	r, err := storage.NewMultiReader(d.dir, d.cfg, d.logger)
	if err != nil {
		return nil, err
	}
	d.r = r
	return r, nil
}

func (d *Dataset) closeReader() {
	if d.r != nil {
		d.r.Close()
		d.r = nil
	}
}

// ReadNext returns the next record. It returns io.EOF at the end of the
// dataset, and immediately for a dataset without files.
func (d *Dataset) ReadNext() (record.Record, error) {
	rec, _, err := d.ReadNextAt()
	return rec, err
}

// ReadNextAt is ReadNext also returning the record's position.
func (d *Dataset) ReadNextAt() (record.Record, storage.Position, error) {
	r, err := d.reader()
	if errs.KindOf(err) == errs.DirectoryNotFound {
		return record.Record{}, storage.Position{}, io.EOF
	}
	if err != nil {
		return record.Record{}, storage.Position{}, err
	}
	return r.ReadNext()
}

// Rewind positions reads at the first record.
func (d *Dataset) Rewind() error {
	r, err := d.reader()
	if errs.KindOf(err) == errs.DirectoryNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return r.Rewind()
}

// SeekToByte positions reads at offset in the fileIndex-th file.
func (d *Dataset) SeekToByte(fileIndex int, offset int64) error {
	r, err := d.reader()
	if err != nil {
		return err
	}
	return r.SeekToByte(fileIndex, offset)
}

// SeekToTimestamp positions reads near ts. With an index the reader lands
// on the record nearest to ts; without one it scans from the start and
// lands on the first record at or after ts. It returns false when there is
// no such record.
func (d *Dataset) SeekToTimestamp(ts uint64) (bool, error) {
	r, err := d.reader()
	if errs.KindOf(err) == errs.DirectoryNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if d.idx != nil && !d.idx.Empty() {
		ok, err := r.SeekToTimestamp(ts, d.idx)
		if err == nil {
			return ok, nil
		}
		d.logger.Warn("indexed seek failed, scanning", log.Err(err))
	}
	return d.scanTo(r, ts)
}

func (d *Dataset) scanTo(r *storage.MultiReader, ts uint64) (bool, error) {
	if err := r.Rewind(); err != nil {
		return false, err
	}
	for {
		rec, pos, err := r.ReadNext()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if rec.Timestamp >= ts {
			return true, r.SeekToByte(pos.FileIndex, pos.Offset)
		}
	}
}

// Close finalizes any writer and releases open files.
func (d *Dataset) Close() error {
	err := d.Finalize()
	d.closeReader()
	return err
}
