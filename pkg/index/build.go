package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bft-labs/pktreplay/pkg/errs"
	"github.com/bft-labs/pktreplay/pkg/log"
	"github.com/bft-labs/pktreplay/pkg/storage"
)

// checkEvery is how many records Build decodes between context checks.
const checkEvery = 1024

// Build scans dir and indexes every record of every record file. An empty
// directory yields an empty index. A file whose header cannot be read keeps
// its entry, with no packets, so that the index stays valid for it.
func Build(ctx context.Context, dir string, cfg storage.Config, logger log.Logger) (*DatasetIndex, error) {
	logger = log.OrNoop(logger)
	started := time.Now()

	m, err := storage.NewMultiReader(dir, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	names := m.Files()
	x := &DatasetIndex{
		Version:   Version,
		CreatedAt: time.Now().UTC(),
		Files:     make([]FileEntry, len(names)),
	}
	for i, name := range names {
		path := filepath.Join(dir, name)
		sum, size, err := HashFile(path)
		if err != nil {
			return nil, err
		}
		x.Files[i] = FileEntry{Name: name, Hash: sum, Size: size}
	}

	for n := 0; ; n++ {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, pos, err := m.ReadNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", dir, err)
		}
		x.add(pos.FileIndex, PacketEntry{
			Timestamp: rec.Timestamp,
			Offset:    pos.Offset,
			Size:      uint32(len(rec.Payload)),
		})
	}
	x.finalize()

	for _, name := range m.Skipped() {
		logger.Warn("indexed unreadable file without packets", log.String("dir", dir), log.String("file", name))
	}
	logger.Info("built index",
		log.String("dir", dir),
		log.Int("files", len(x.Files)),
		log.Int64("packets", x.TotalPackets),
		log.Duration("elapsed", time.Since(started)),
	)
	return x, nil
}

func (x *DatasetIndex) add(file int, e PacketEntry) {
	f := &x.Files[file]
	if f.PacketCount == 0 || e.Timestamp < f.StartTimestamp {
		f.StartTimestamp = e.Timestamp
	}
	if f.PacketCount == 0 || e.Timestamp > f.EndTimestamp {
		f.EndTimestamp = e.Timestamp
	}
	f.Packets = append(f.Packets, e)
	f.PacketCount++

	if x.TotalPackets == 0 || e.Timestamp < x.StartTimestamp {
		x.StartTimestamp = e.Timestamp
	}
	if x.TotalPackets == 0 || e.Timestamp > x.EndTimestamp {
		x.EndTimestamp = e.Timestamp
	}
	x.TotalPackets++
	x.TotalDuration = x.EndTimestamp - x.StartTimestamp
}

// HashFile returns the hex SHA-256 of the file at path and its size.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, errs.FromOS("index.hash", path, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, errs.FromOS("index.hash", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
