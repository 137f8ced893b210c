package fsutil

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatpak/repo-summary/hash"
)

func digestFor(s string) hash.Digest { return hash.Sum([]byte(s)) }

func TestWriteFileThenReadBackRoundTrips(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, WriteFile(fs, SummariesDir, "x.gz", []byte("hello"), false))

	f, err := fs.Open(fs.Join(SummariesDir, "x.gz"))
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 5)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestAtomicWriterAbortLeavesNoFinalFile(t *testing.T) {
	fs := memfs.New()
	w, err := Create(fs, SummariesDir, "x.gz", false)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	_, err = fs.Open(fs.Join(SummariesDir, "x.gz"))
	assert.Error(t, err)
}

func TestSummariesStoreRoundTripsGzSubSummary(t *testing.T) {
	fs := memfs.New()
	store := SummariesStore{FS: fs}
	digest := digestFor("sub")
	ctx := context.Background()

	require.NoError(t, store.WriteSubSummary(ctx, digest, []byte("raw-summary-bytes")))

	gz, ok, err := store.ReadGzSubSummary(ctx, digest)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, gz)

	raw, ok, err := store.LoadSubSummaryBytes(ctx, digest)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "raw-summary-bytes", string(raw))
}

func TestSummariesStoreWriteSubSummarySkipsExistingNonEmptyFile(t *testing.T) {
	fs := memfs.New()
	store := SummariesStore{FS: fs}
	digest := digestFor("sub")
	ctx := context.Background()

	require.NoError(t, store.WriteSubSummary(ctx, digest, []byte("first")))
	require.NoError(t, store.WriteSubSummary(ctx, digest, []byte("second")))

	raw, ok, err := store.LoadSubSummaryBytes(ctx, digest)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", string(raw))
}

func TestSummariesStoreWriteDeltaThenList(t *testing.T) {
	fs := memfs.New()
	store := SummariesStore{FS: fs}
	from, to := digestFor("a"), digestFor("b")
	ctx := context.Background()

	require.NoError(t, store.WriteDelta(ctx, from, to, []byte("delta-bytes")))

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, DeltaName(from, to))
}

func TestSummariesStoreMissingFileReturnsNotOK(t *testing.T) {
	fs := memfs.New()
	store := SummariesStore{FS: fs}
	_, ok, err := store.ReadGzSubSummary(context.Background(), digestFor("absent"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSummariesStoreListOnMissingDirReturnsEmpty(t *testing.T) {
	fs := memfs.New()
	store := SummariesStore{FS: fs}
	names, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSummariesStoreRemoveDeletesFile(t *testing.T) {
	fs := memfs.New()
	store := SummariesStore{FS: fs}
	digest := digestFor("sub")
	ctx := context.Background()
	require.NoError(t, store.WriteSubSummary(ctx, digest, []byte("raw")))

	require.NoError(t, store.Remove(ctx, SubSummaryName(digest)))
	_, ok, err := store.ReadGzSubSummary(ctx, digest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLayoutNameBuilders(t *testing.T) {
	from, to := digestFor("x"), digestFor("y")
	assert.Equal(t, to.Hex()+".gz", SubSummaryName(to))
	assert.Equal(t, from.Hex()+"-"+to.Hex()+".delta", DeltaName(from, to))
	assert.Equal(t, to.Hex()+".idx.sig", IndexSigName(to))
}
