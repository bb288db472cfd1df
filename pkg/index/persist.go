package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bft-labs/pktreplay/pkg/errs"
)

// SidecarPath returns the sidecar location for dataset name stored in dir.
func SidecarPath(dir, name string) string {
	return filepath.Join(dir, name+Extension)
}

// Save writes x to path atomically (temp file, then rename).
func Save(x *DatasetIndex, path string) error {
	data, err := json.MarshalIndent(x, "", "  ")
	if err != nil {
		return errs.E(errs.InvalidArgument, "index.save", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.FromOS("index.save", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.FromOS("index.save", path, err)
	}
	return nil
}

// Load reads a sidecar and rebuilds its lookup structures. Documents with
// an unknown version or inconsistent counts are rejected as InvalidFormat.
func Load(path string) (*DatasetIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.FromOS("index.load", path, err)
	}

	var x DatasetIndex
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, errs.WithPath(errs.InvalidFormat, "index.load", path, errs.E(errs.CorruptedData, "index.load", err))
	}
	if err := x.check(); err != nil {
		return nil, errs.WithPath(errs.InvalidFormat, "index.load", path, err)
	}
	x.finalize()
	return &x, nil
}

// check verifies the structural consistency of a decoded document.
func (x *DatasetIndex) check() error {
	if x.Version != Version {
		return fmt.Errorf("unsupported version %d", x.Version)
	}
	var total int64
	for _, f := range x.Files {
		if f.Name == "" {
			return fmt.Errorf("file entry without name")
		}
		if int64(len(f.Packets)) != f.PacketCount {
			return fmt.Errorf("%s: packet_count %d but %d entries", f.Name, f.PacketCount, len(f.Packets))
		}
		for _, p := range f.Packets {
			if p.Timestamp < f.StartTimestamp || p.Timestamp > f.EndTimestamp {
				return fmt.Errorf("%s: entry %d outside file bounds", f.Name, p.Timestamp)
			}
		}
		total += f.PacketCount
	}
	if total != x.TotalPackets {
		return fmt.Errorf("total_packets %d but files hold %d", x.TotalPackets, total)
	}
	if total > 0 && x.EndTimestamp < x.StartTimestamp {
		return fmt.Errorf("end_timestamp before start_timestamp")
	}
	return nil
}
