package record

import (
	"bufio"
	"io"
	"math"
	"time"

	"github.com/bft-labs/pktreplay/pkg/errs"
)

// DefaultBufferSize is the write and read buffer size used when none is set.
const DefaultBufferSize = 8 << 10

// WriterOptions configures a Writer.
type WriterOptions struct {
	BufferSize     int
	MaxRecordSize  int
	AutoFlush      bool  // flush after every record
	TimezoneOffset int32 // stored in the file header
}

// Writer encodes a file header and records onto an io.Writer.
type Writer struct {
	bw     *bufio.Writer
	opts   WriterOptions
	offset int64
	hdr    []byte
}

// NewWriter wraps w. The first call must be WriteFileHeader unless w is
// positioned after an existing header, in which case start gives that position.
func NewWriter(w io.Writer, start int64, opts WriterOptions) *Writer {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.MaxRecordSize <= 0 || opts.MaxRecordSize > MaxRecordSize {
		opts.MaxRecordSize = MaxRecordSize
	}
	return &Writer{
		bw:     bufio.NewWriterSize(w, opts.BufferSize),
		opts:   opts,
		offset: start,
		hdr:    make([]byte, 0, RecordHeaderSize),
	}
}

// WriteFileHeader writes the 16-byte file header.
func (w *Writer) WriteFileHeader() error {
	if w.offset != 0 {
		return errs.Ef(errs.InvalidState, "record.write_header", "header must be first, offset is %d", w.offset)
	}
	b := NewFileHeader(w.opts.TimezoneOffset).AppendBinary(make([]byte, 0, FileHeaderSize))
	if _, err := w.bw.Write(b); err != nil {
		return errs.E(errs.IO, "record.write_header", err)
	}
	w.offset += FileHeaderSize
	return w.maybeFlush()
}

// WriteRecord appends one record and returns the byte offset of its header.
func (w *Writer) WriteRecord(ts uint64, payload []byte) (int64, error) {
	if w.offset < FileHeaderSize {
		return 0, errs.Ef(errs.InvalidState, "record.write", "file header not written")
	}
	if len(payload) == 0 || len(payload) > w.opts.MaxRecordSize {
		return 0, errs.Ef(errs.InvalidPacketSize, "record.write", "%d bytes (max %d)", len(payload), w.opts.MaxRecordSize)
	}
	if ts/uint64(time.Second) > math.MaxUint32 {
		return 0, errs.Ef(errs.InvalidArgument, "record.write", "timestamp %d out of range", ts)
	}

	sec, nsec := SplitTimestamp(ts)
	h := recordHeader{sec: sec, nsec: nsec, length: uint32(len(payload)), checksum: Checksum(payload)}
	w.hdr = h.appendBinary(w.hdr[:0])

	at := w.offset
	if _, err := w.bw.Write(w.hdr); err != nil {
		return 0, errs.E(errs.IO, "record.write", err)
	}
	if _, err := w.bw.Write(payload); err != nil {
		return 0, errs.E(errs.IO, "record.write", err)
	}
	w.offset += int64(RecordHeaderSize + len(payload))
	return at, w.maybeFlush()
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return errs.E(errs.IO, "record.flush", err)
	}
	return nil
}

// Offset returns the position the next record will be written at.
func (w *Writer) Offset() int64 { return w.offset }

func (w *Writer) maybeFlush() error {
	if !w.opts.AutoFlush {
		return nil
	}
	return w.Flush()
}
