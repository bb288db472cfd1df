// Package record implements the binary record-file codec.
//
// A record file is a 16-byte FileHeader followed by zero or more records.
// Every record is a 16-byte header and its payload:
//
//	file header:   [magic:u32][major:u16][minor:u16][tz_offset:i32][ts_accuracy:u32]
//	record header: [ts_sec:u32][ts_nsec:u32][length:u32][crc32:u32]
//	payload:       length bytes
//
// All integers are little-endian. The checksum is the IEEE CRC32 of the
// payload. A truncated trailing record is reported as io.EOF so that files
// being appended to, or cut short by a crash, read as "no more records".
package record
