package record

import (
	"fmt"
	"hash/crc32"
	"time"
)

// Record is one timestamped payload.
type Record struct {
	// Timestamp is the capture time in nanoseconds since the Unix epoch.
	Timestamp uint64
	Payload   []byte
	Checksum  uint32
}

// New builds a record and computes its checksum.
func New(ts uint64, payload []byte) Record {
	return Record{Timestamp: ts, Payload: payload, Checksum: Checksum(payload)}
}

// Checksum returns the IEEE CRC32 (reflected polynomial 0xEDB88320, initial
// value and final XOR 0xFFFFFFFF) of data.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Valid reports whether the stored checksum matches the payload.
func (r Record) Valid() bool {
	return r.Checksum == Checksum(r.Payload)
}

// Size is the encoded size of the record including its header.
func (r Record) Size() int {
	return RecordHeaderSize + len(r.Payload)
}

// Time returns the capture time in UTC.
func (r Record) Time() time.Time {
	return time.Unix(0, int64(r.Timestamp)).UTC()
}

// Timestamp converts a time to record nanoseconds.
func Timestamp(t time.Time) uint64 {
	return uint64(t.UnixNano())
}

// SplitTimestamp splits nanoseconds into the on-disk seconds and nanoseconds.
func SplitTimestamp(ns uint64) (sec, nsec uint32) {
	return uint32(ns / uint64(time.Second)), uint32(ns % uint64(time.Second))
}

// JoinTimestamp is the inverse of SplitTimestamp.
func JoinTimestamp(sec, nsec uint32) uint64 {
	return uint64(sec)*uint64(time.Second) + uint64(nsec)
}

// ChecksumError details a checksum mismatch.
type ChecksumError struct {
	Expected uint32
	Actual   uint32
	Offset   int64 // record header position in its file
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("expected %#08x, actual %#08x at offset %d", e.Expected, e.Actual, e.Offset)
}
