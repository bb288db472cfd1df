// Package index builds and maintains the time index (PIDX) of a dataset.
//
// The index maps every record timestamp to the file and byte offset of the
// record. It is persisted as a JSON sidecar named <dataset>.pidx next to the
// record files and is considered stale as soon as the set of record files or
// the content of any of them changes. Stale or unreadable sidecars are never
// fatal: EnsureValid and Manager.EnsureIndex rebuild them.
package index

import (
	"sort"
	"time"
)

// Version is the sidecar document version written by this package.
const Version = 1

// Extension is the sidecar file suffix.
const Extension = ".pidx"

// PacketEntry locates one record.
type PacketEntry struct {
	Timestamp uint64 `json:"timestamp_ns"`
	Offset    int64  `json:"byte_offset"`
	Size      uint32 `json:"packet_size"`

	// File is the name of the containing file. It is derived on load.
	File string `json:"-"`
}

// FileEntry describes one record file.
type FileEntry struct {
	Name           string        `json:"name"`
	Hash           string        `json:"hash"`
	Size           int64         `json:"size"`
	PacketCount    int64         `json:"packet_count"`
	StartTimestamp uint64        `json:"start_timestamp"`
	EndTimestamp   uint64        `json:"end_timestamp"`
	Packets        []PacketEntry `json:"packets"`
}

// DatasetIndex is the index of a whole dataset.
type DatasetIndex struct {
	Version        int         `json:"version"`
	Description    string      `json:"description"`
	CreatedAt      time.Time   `json:"created_time"`
	StartTimestamp uint64      `json:"start_timestamp"`
	EndTimestamp   uint64      `json:"end_timestamp"`
	TotalPackets   int64       `json:"total_packets"`
	TotalDuration  uint64      `json:"total_duration"`
	Files          []FileEntry `json:"files"`

	sorted []PacketEntry
	byTS   map[uint64]int
}

// Empty reports whether the index covers no records.
func (x *DatasetIndex) Empty() bool { return x.TotalPackets == 0 }

// Duration returns the time span covered by the index.
func (x *DatasetIndex) Duration() time.Duration { return time.Duration(x.TotalDuration) }

// finalize derives the lookup structures from Files. It must run after
// building or loading.
func (x *DatasetIndex) finalize() {
	n := 0
	for _, f := range x.Files {
		n += len(f.Packets)
	}
	x.sorted = make([]PacketEntry, 0, n)
	for i := range x.Files {
		f := &x.Files[i]
		for j := range f.Packets {
			f.Packets[j].File = f.Name
			x.sorted = append(x.sorted, f.Packets[j])
		}
	}
	// Files are already in time order in the common case; stable keeps
	// file order for equal timestamps.
	sort.SliceStable(x.sorted, func(i, j int) bool { return x.sorted[i].Timestamp < x.sorted[j].Timestamp })

	x.byTS = make(map[uint64]int, len(x.sorted))
	for i, e := range x.sorted {
		if _, ok := x.byTS[e.Timestamp]; !ok {
			x.byTS[e.Timestamp] = i
		}
	}
}

// FindByTimestamp returns the entry with timestamp ts, or else the entry
// nearest to it. On a tie the earlier entry wins. It returns false only
// when the index is empty.
func (x *DatasetIndex) FindByTimestamp(ts uint64) (PacketEntry, bool) {
	if len(x.sorted) == 0 {
		return PacketEntry{}, false
	}
	if i, ok := x.byTS[ts]; ok {
		return x.sorted[i], true
	}

	i := sort.Search(len(x.sorted), func(i int) bool { return x.sorted[i].Timestamp >= ts })
	switch {
	case i == 0:
		return x.sorted[0], true
	case i == len(x.sorted):
		return x.sorted[i-1], true
	}
	before, after := x.sorted[i-1], x.sorted[i]
	if ts-before.Timestamp <= after.Timestamp-ts {
		return before, true
	}
	return after, true
}

// Locate resolves ts to the file and offset of the nearest record.
func (x *DatasetIndex) Locate(ts uint64) (string, int64, bool) {
	e, ok := x.FindByTimestamp(ts)
	if !ok {
		return "", 0, false
	}
	return e.File, e.Offset, true
}

// Range returns the entries with start <= timestamp <= end in ascending
// timestamp order.
func (x *DatasetIndex) Range(start, end uint64) []PacketEntry {
	if start > end || len(x.sorted) == 0 {
		return nil
	}
	lo := sort.Search(len(x.sorted), func(i int) bool { return x.sorted[i].Timestamp >= start })
	hi := sort.Search(len(x.sorted), func(i int) bool { return x.sorted[i].Timestamp > end })
	if lo >= hi {
		return nil
	}
	return append([]PacketEntry(nil), x.sorted[lo:hi]...)
}
