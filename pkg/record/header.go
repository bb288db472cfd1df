package record

import (
	"encoding/binary"
	"fmt"

	"github.com/bft-labs/pktreplay/pkg/errs"
)

const (
	// Magic identifies a record file.
	Magic uint32 = 0xD4C3B2A1

	// MajorVersion and MinorVersion are the only format versions accepted.
	// Minor version 4 marks nanosecond timestamps.
	MajorVersion uint16 = 2
	MinorVersion uint16 = 4

	// FileHeaderSize is the encoded size of a FileHeader.
	FileHeaderSize = 16

	// RecordHeaderSize is the encoded size of the per-record header.
	RecordHeaderSize = 16

	// DefaultTimestampAccuracy is written to new files (nanoseconds).
	DefaultTimestampAccuracy uint32 = 1

	// MaxRecordSize is the default and upper bound for a record payload.
	MaxRecordSize = 30 << 20
)

// FileHeader is the fixed header at the start of every record file.
type FileHeader struct {
	Magic             uint32
	Major             uint16
	Minor             uint16
	TimezoneOffset    int32 // seconds east of UTC
	TimestampAccuracy uint32
}

// NewFileHeader returns a valid header for the given timezone offset.
func NewFileHeader(tzOffset int32) FileHeader {
	return FileHeader{
		Magic:             Magic,
		Major:             MajorVersion,
		Minor:             MinorVersion,
		TimezoneOffset:    tzOffset,
		TimestampAccuracy: DefaultTimestampAccuracy,
	}
}

// Valid reports whether the magic number and both versions match.
func (h FileHeader) Valid() bool {
	return h.Magic == Magic && h.Major == MajorVersion && h.Minor == MinorVersion
}

// AppendBinary appends the encoded header to b.
func (h FileHeader) AppendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, h.Magic)
	b = binary.LittleEndian.AppendUint16(b, h.Major)
	b = binary.LittleEndian.AppendUint16(b, h.Minor)
	b = binary.LittleEndian.AppendUint32(b, uint32(h.TimezoneOffset))
	return binary.LittleEndian.AppendUint32(b, h.TimestampAccuracy)
}

// ParseFileHeader decodes a header without checking its constants.
func ParseFileHeader(b []byte) (FileHeader, error) {
	if len(b) < FileHeaderSize {
		return FileHeader{}, errs.Ef(errs.CorruptedHeader, "record.parse_header",
			"need %d bytes, have %d", FileHeaderSize, len(b))
	}
	return FileHeader{
		Magic:             binary.LittleEndian.Uint32(b[0:4]),
		Major:             binary.LittleEndian.Uint16(b[4:6]),
		Minor:             binary.LittleEndian.Uint16(b[6:8]),
		TimezoneOffset:    int32(binary.LittleEndian.Uint32(b[8:12])),
		TimestampAccuracy: binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

// ValidateHeader reports whether b starts with a valid file header.
func ValidateHeader(b []byte) bool {
	h, err := ParseFileHeader(b)
	return err == nil && h.Valid()
}

func (h FileHeader) String() string {
	return fmt.Sprintf("magic=%#08x version=%d.%d tz=%d accuracy=%d",
		h.Magic, h.Major, h.Minor, h.TimezoneOffset, h.TimestampAccuracy)
}

// recordHeader is the on-disk header preceding each payload.
type recordHeader struct {
	sec      uint32
	nsec     uint32
	length   uint32
	checksum uint32
}

func (h recordHeader) appendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, h.sec)
	b = binary.LittleEndian.AppendUint32(b, h.nsec)
	b = binary.LittleEndian.AppendUint32(b, h.length)
	return binary.LittleEndian.AppendUint32(b, h.checksum)
}

func parseRecordHeader(b []byte) recordHeader {
	return recordHeader{
		sec:      binary.LittleEndian.Uint32(b[0:4]),
		nsec:     binary.LittleEndian.Uint32(b[4:8]),
		length:   binary.LittleEndian.Uint32(b[8:12]),
		checksum: binary.LittleEndian.Uint32(b[12:16]),
	}
}
