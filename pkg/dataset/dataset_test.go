package dataset

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/pktreplay/pkg/errs"
	"github.com/bft-labs/pktreplay/pkg/index"
	"github.com/bft-labs/pktreplay/pkg/storage"
)

const baseTS = uint64(1_700_000_000_000_000_000)

func smallConfig(perFile int, autoIndex bool) storage.Config {
	c := storage.DefaultConfig()
	c.MaxRecordsPerFile = perFile
	c.AutoIndex = autoIndex
	return c
}

func fill(t *testing.T, d *Dataset, n int, step time.Duration) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := d.Write(baseTS+uint64(i)*uint64(step), []byte{byte(i), 0xAA})
		require.NoError(t, err)
	}
	require.NoError(t, d.Finalize())
}

func TestOpen_RejectsBadNames(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := Open(t.TempDir(), name)
		require.True(t, errors.Is(err, errs.InvalidArgument), name)
	}
}

func TestOpen_NewDatasetIsEmpty(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root, "fresh")
	require.NoError(t, err)
	defer d.Close()

	_, err = d.ReadNext()
	require.ErrorIs(t, err, io.EOF)
	ok, err := d.SeekToTimestamp(baseTS)
	require.NoError(t, err)
	require.False(t, ok)

	info, err := d.Info()
	require.NoError(t, err)
	require.Zero(t, info.TotalRecords)
	require.Nil(t, d.Index())

	_, err = os.Stat(filepath.Join(root, "fresh"))
	require.True(t, os.IsNotExist(err), "directory is created lazily")
}

func TestWriteFinalizeRead(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root, "rt", WithConfig(smallConfig(1000, true)))
	require.NoError(t, err)

	for i := 0; i < 2000; i++ {
		payload := make([]byte, 1024)
		payload[0] = byte(i)
		_, err := d.Write(baseTS+uint64(i)*uint64(time.Microsecond), payload)
		require.NoError(t, err)
	}
	require.NoError(t, d.Finalize())

	require.NotNil(t, d.Index())
	require.EqualValues(t, 2000, d.Index().TotalPackets)
	_, err = os.Stat(index.SidecarPath(d.Dir(), "rt"))
	require.NoError(t, err)

	info, err := d.Info()
	require.NoError(t, err)
	require.Equal(t, 2, info.FileCount)
	require.EqualValues(t, 2000, info.TotalRecords)
	require.True(t, info.Indexed)
	require.Equal(t, 1999*time.Microsecond, info.Duration())

	n := 0
	for {
		rec, err := d.ReadNext()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.Equal(t, byte(n), rec.Payload[0])
		n++
	}
	require.Equal(t, 2000, n)
	require.NoError(t, d.Close())
}

func TestReopenLoadsIndex(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root, "re", WithConfig(smallConfig(4, true)))
	require.NoError(t, err)
	fill(t, d, 10, time.Millisecond)
	require.NoError(t, d.Close())

	d, err = Open(root, "re", WithConfig(smallConfig(4, true)))
	require.NoError(t, err)
	defer d.Close()
	require.NotNil(t, d.Index())
	require.EqualValues(t, 10, d.Index().TotalPackets)
	require.False(t, d.IndexManager().NeedsRebuild())
}

func TestOpen_CorruptSidecarIsNotFatal(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root, "cs", WithConfig(smallConfig(4, false)))
	require.NoError(t, err)
	fill(t, d, 6, time.Millisecond)
	require.NoError(t, os.WriteFile(index.SidecarPath(d.Dir(), "cs"), []byte("nope"), 0o644))

	d, err = Open(root, "cs", WithConfig(smallConfig(4, true)))
	require.NoError(t, err)
	defer d.Close()
	require.NotNil(t, d.Index())
	require.EqualValues(t, 6, d.Index().TotalPackets)
}

func TestSeekToTimestamp(t *testing.T) {
	for _, autoIndex := range []bool{true, false} {
		name := "scan"
		if autoIndex {
			name = "indexed"
		}
		t.Run(name, func(t *testing.T) {
			d, err := Open(t.TempDir(), "seek", WithConfig(smallConfig(3, autoIndex)))
			require.NoError(t, err)
			defer d.Close()
			fill(t, d, 10, time.Millisecond)
			require.Equal(t, autoIndex, d.Index() != nil)

			target := baseTS + 6*uint64(time.Millisecond)
			ok, err := d.SeekToTimestamp(target)
			require.NoError(t, err)
			require.True(t, ok)
			rec, err := d.ReadNext()
			require.NoError(t, err)
			require.Equal(t, target, rec.Timestamp)

			// Past the end the index still finds the last record; a scan finds none.
			ok, err = d.SeekToTimestamp(baseTS + uint64(time.Hour))
			require.NoError(t, err)
			require.Equal(t, autoIndex, ok)
		})
	}
}

func TestSeekToByte(t *testing.T) {
	d, err := Open(t.TempDir(), "sb", WithConfig(smallConfig(3, false)))
	require.NoError(t, err)
	defer d.Close()

	var positions []storage.Position
	for i := 0; i < 5; i++ {
		p, err := d.Write(baseTS+uint64(i), []byte{byte(i)})
		require.NoError(t, err)
		positions = append(positions, p)
	}
	require.NoError(t, d.Finalize())

	require.NoError(t, d.SeekToByte(positions[4].FileIndex, positions[4].Offset))
	rec, pos, err := d.ReadNextAt()
	require.NoError(t, err)
	require.Equal(t, byte(4), rec.Payload[0])
	require.Equal(t, positions[4], pos)

	require.True(t, errors.Is(d.SeekToByte(0, 3), errs.InvalidArgument))

	require.NoError(t, d.Rewind())
	rec, err = d.ReadNext()
	require.NoError(t, err)
	require.Equal(t, byte(0), rec.Payload[0])
}

func TestInfoWithoutIndex(t *testing.T) {
	d, err := Open(t.TempDir(), "noidx", WithConfig(smallConfig(2, false)))
	require.NoError(t, err)
	defer d.Close()
	fill(t, d, 5, time.Second)

	info, err := d.Info()
	require.NoError(t, err)
	require.False(t, info.Indexed)
	require.Equal(t, 3, info.FileCount)
	require.EqualValues(t, 5, info.TotalRecords)
	require.Equal(t, baseTS, info.StartTimestamp)
	require.Equal(t, baseTS+4*uint64(time.Second), info.EndTimestamp)
	require.Len(t, info.Files, 3)
	require.EqualValues(t, 2, info.Files[0].Records)

	_, err = os.Stat(index.SidecarPath(d.Dir(), "noidx"))
	require.True(t, os.IsNotExist(err))
}

func TestList(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"b", "a"} {
		d, err := Open(root, n)
		require.NoError(t, err)
		fill(t, d, 1, time.Millisecond)
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), nil, 0o644))

	names, err := List(root)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, names)
}
