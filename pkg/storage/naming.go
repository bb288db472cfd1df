package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bft-labs/pktreplay/pkg/errs"
)

// Extension is the suffix of record files.
const Extension = ".pcap"

// Namer returns the file name for the seq-th file (1-based) of a dataset.
// Successive names must sort after earlier ones.
type Namer func(dataset string, seq int, now time.Time) string

// TimestampNamer names files after the dataset and the UTC creation time
// with 100ns resolution; the sequence number breaks ties.
func TimestampNamer(dataset string, seq int, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s_%02d%02d%02d_%02d%02d%02d_%07d_%04d%s",
		dataset,
		now.Year()%100, int(now.Month()), now.Day(),
		now.Hour(), now.Minute(), now.Second(),
		now.Nanosecond()/100,
		seq, Extension)
}

// SequenceNamer names files data_0001.pcap, data_0002.pcap, ...
func SequenceNamer(_ string, seq int, _ time.Time) string {
	return fmt.Sprintf("data_%04d%s", seq, Extension)
}

// NamerFor maps a FileNameFormat to its Namer.
func NamerFor(format string) (Namer, error) {
	switch format {
	case "", FormatTimestamp:
		return TimestampNamer, nil
	case FormatSequence:
		return SequenceNamer, nil
	default:
		return nil, errs.Ef(errs.InvalidArgument, "storage.namer", "unknown file name format %q", format)
	}
}

// IsRecordFile reports whether name looks like a record file.
func IsRecordFile(name string) bool {
	return strings.HasSuffix(name, Extension) && !strings.HasPrefix(name, ".")
}

// Scan lists the record files of dir in name order. A missing directory
// yields DirectoryNotFound.
func Scan(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.FromOSDir("storage.scan", dir, err)
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() || !IsRecordFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ScanPaths is Scan returning full paths.
func ScanPaths(dir string) ([]string, error) {
	names, err := Scan(dir)
	if err != nil {
		return nil, err
	}
	for i, n := range names {
		names[i] = filepath.Join(dir, n)
	}
	return names, nil
}
