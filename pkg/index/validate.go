package index

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bft-labs/pktreplay/pkg/errs"
	"github.com/bft-labs/pktreplay/pkg/log"
	"github.com/bft-labs/pktreplay/pkg/storage"
)

// IsValid reports whether x still describes the record files in dir: same
// file set, same sizes and same content hashes. Missing files make the
// index invalid; other I/O failures are returned.
func IsValid(x *DatasetIndex, dir string) (bool, error) {
	names, err := storage.Scan(dir)
	if err != nil {
		return false, err
	}
	if len(names) != len(x.Files) {
		return false, nil
	}
	for i, f := range x.Files {
		if names[i] != f.Name {
			return false, nil
		}
		path := filepath.Join(dir, f.Name)
		st, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, errs.FromOS("index.validate", path, err)
		}
		// Size first; hashing is the expensive part.
		if st.Size() != f.Size {
			return false, nil
		}
		sum, _, err := HashFile(path)
		if errs.KindOf(err) == errs.FileNotFound {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if sum != f.Hash {
			return false, nil
		}
	}
	return true, nil
}

// EnsureValid returns a current index for dataset name in dir. It loads the
// sidecar when one exists and still matches the files; otherwise it
// rebuilds the index and persists it. Only a failed rebuild is an error.
func EnsureValid(ctx context.Context, dir, name string, cfg storage.Config, logger log.Logger) (*DatasetIndex, error) {
	return NewManager(dir, name, cfg, logger).EnsureIndex(ctx)
}
