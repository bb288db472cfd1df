package record

import (
	"bufio"
	"errors"
	"io"
	"time"

	"github.com/bft-labs/pktreplay/pkg/errs"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	BufferSize    int
	MaxRecordSize int
	Validate      bool // verify payload checksums
}

// Reader decodes records from a record file.
type Reader struct {
	src    io.ReadSeeker
	br     *bufio.Reader
	opts   ReaderOptions
	header FileHeader
	offset int64
	hdr    [RecordHeaderSize]byte
}

// NewReader reads and checks the file header from src, which must be
// positioned at the start of the file.
func NewReader(src io.ReadSeeker, opts ReaderOptions) (*Reader, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.MaxRecordSize <= 0 || opts.MaxRecordSize > MaxRecordSize {
		opts.MaxRecordSize = MaxRecordSize
	}
	r := &Reader{src: src, br: bufio.NewReaderSize(src, opts.BufferSize), opts: opts}

	var b [FileHeaderSize]byte
	if _, err := io.ReadFull(r.br, b[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errs.E(errs.InvalidFormat, "record.open", errs.Ef(errs.CorruptedHeader, "record.open", "file shorter than header"))
		}
		return nil, errs.E(errs.IO, "record.open", err)
	}
	h, err := ParseFileHeader(b[:])
	if err != nil {
		return nil, errs.E(errs.InvalidFormat, "record.open", err)
	}
	if !h.Valid() {
		return nil, errs.E(errs.InvalidFormat, "record.open", errs.Ef(errs.CorruptedHeader, "record.open", "unexpected header %s", h))
	}
	r.header = h
	r.offset = FileHeaderSize
	return r, nil
}

// Header returns the file header.
func (r *Reader) Header() FileHeader { return r.header }

// Offset returns the position of the next record header.
func (r *Reader) Offset() int64 { return r.offset }

// ReadRecord decodes the next record. It returns io.EOF at the end of the
// file, including when the last record is incomplete; in that case the
// reader stays positioned before the partial record.
func (r *Reader) ReadRecord() (Record, error) {
	if _, err := io.ReadFull(r.br, r.hdr[:]); err != nil {
		return Record{}, r.endOrErr(err)
	}
	h := parseRecordHeader(r.hdr[:])
	if h.nsec >= uint32(time.Second) {
		return Record{}, errs.Ef(errs.CorruptedHeader, "record.read", "nanosecond field %d at offset %d", h.nsec, r.offset)
	}
	if h.length == 0 || int(h.length) > r.opts.MaxRecordSize {
		return Record{}, errs.Ef(errs.InvalidPacketSize, "record.read", "%d bytes at offset %d (max %d)", h.length, r.offset, r.opts.MaxRecordSize)
	}

	payload := make([]byte, h.length)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		return Record{}, r.endOrErr(err)
	}
	rec := Record{Timestamp: JoinTimestamp(h.sec, h.nsec), Payload: payload, Checksum: h.checksum}
	if r.opts.Validate {
		if actual := Checksum(payload); actual != h.checksum {
			cerr := &ChecksumError{Expected: h.checksum, Actual: actual, Offset: r.offset}
			r.offset += int64(RecordHeaderSize) + int64(h.length)
			return Record{}, errs.E(errs.ChecksumMismatch, "record.read", cerr)
		}
	}
	r.offset += int64(RecordHeaderSize) + int64(h.length)
	return rec, nil
}

// Seek positions the reader at a record header. Offsets inside the file
// header are rejected.
func (r *Reader) Seek(offset int64) error {
	if offset < FileHeaderSize {
		return errs.Ef(errs.InvalidArgument, "record.seek", "offset %d is before the data region", offset)
	}
	if _, err := r.src.Seek(offset, io.SeekStart); err != nil {
		return errs.E(errs.IO, "record.seek", err)
	}
	r.br.Reset(r.src)
	r.offset = offset
	return nil
}

// Close closes the underlying source when it is an io.Closer.
func (r *Reader) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// endOrErr converts short reads into io.EOF and rewinds to the last
// complete record.
func (r *Reader) endOrErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if serr := r.Seek(r.offset); serr != nil {
			return serr
		}
		return io.EOF
	}
	return errs.E(errs.IO, "record.read", err)
}
