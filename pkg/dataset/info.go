package dataset

import (
	"time"

	"github.com/bft-labs/pktreplay/pkg/errs"
	"github.com/bft-labs/pktreplay/pkg/index"
)

// FileInfo describes one record file.
type FileInfo struct {
	Name           string `json:"name"`
	Size           int64  `json:"size"`
	Records        int64  `json:"records"`
	StartTimestamp uint64 `json:"start_timestamp"`
	EndTimestamp   uint64 `json:"end_timestamp"`
}

// Info summarizes a dataset.
type Info struct {
	Name           string     `json:"name"`
	Path           string     `json:"path"`
	FileCount      int        `json:"file_count"`
	TotalRecords   int64      `json:"total_records"`
	TotalBytes     int64      `json:"total_bytes"`
	StartTimestamp uint64     `json:"start_timestamp"`
	EndTimestamp   uint64     `json:"end_timestamp"`
	Indexed        bool       `json:"indexed"`
	Files          []FileInfo `json:"files"`
}

// Duration returns the time span covered by the dataset.
func (i Info) Duration() time.Duration {
	return time.Duration(i.EndTimestamp - i.StartTimestamp)
}

// Info describes the dataset on disk. When the sidecar is current it is
// used as is; otherwise the files are scanned without touching the sidecar.
func (d *Dataset) Info() (Info, error) {
	info := Info{Name: d.name, Path: d.dir}

	x, indexed := d.currentIndex()
	if x == nil {
		var err error
		x, err = index.Build(d.ctx, d.dir, d.cfg, d.logger)
		if errs.KindOf(err) == errs.DirectoryNotFound {
			return info, nil
		}
		if err != nil {
			return Info{}, err
		}
	}

	info.Indexed = indexed
	info.FileCount = len(x.Files)
	info.TotalRecords = x.TotalPackets
	info.StartTimestamp = x.StartTimestamp
	info.EndTimestamp = x.EndTimestamp
	for _, f := range x.Files {
		info.TotalBytes += f.Size
		info.Files = append(info.Files, FileInfo{
			Name:           f.Name,
			Size:           f.Size,
			Records:        f.PacketCount,
			StartTimestamp: f.StartTimestamp,
			EndTimestamp:   f.EndTimestamp,
		})
	}
	return info, nil
}

// currentIndex returns the in-memory index if it still matches the files.
func (d *Dataset) currentIndex() (*index.DatasetIndex, bool) {
	if d.idx == nil {
		return nil, false
	}
	ok, err := index.IsValid(d.idx, d.dir)
	if err != nil || !ok {
		return nil, false
	}
	return d.idx, true
}
