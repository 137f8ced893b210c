package sumindex

import (
	"bytes"
	"compress/gzip"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatpak/repo-summary/cache"
	"github.com/flatpak/repo-summary/hash"
	"github.com/flatpak/repo-summary/summary"
	"github.com/flatpak/repo-summary/variant"
)

type fakeGzSource struct {
	files map[hash.Digest][]byte
}

func (f fakeGzSource) ReadGzSubSummary(ctx context.Context, digest hash.Digest) ([]byte, bool, error) {
	b, ok := f.files[digest]
	return b, ok, nil
}

func gzipBytes(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(b)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFastLoaderLoadsRefEntriesFromGzippedSubSummary(t *testing.T) {
	commitDigest := digestFor("commit-x")
	refMap := variant.NewMap()
	meta := variant.NewMap()
	meta.Put("xa.data", variant.Tuple(variant.BEUint64(10), variant.BEUint64(20), variant.String("<m/>")))
	refMap.Put("app/a/x86_64/stable", variant.Tuple(variant.Uint64(500), variant.Bytes(commitDigest.Bytes()), variant.MapValue(meta)))

	sum := &summary.Summary{Refs: refMap, Metadata: variant.NewMap()}
	raw, err := summary.Encode(sum)
	require.NoError(t, err)

	subDigest := digestFor("sub-x86_64")
	source := fakeGzSource{files: map[hash.Digest][]byte{subDigest: gzipBytes(t, raw)}}
	loader := FastLoader{Source: source}

	entries, ok, err := loader.LoadRefEntries(context.Background(), subDigest)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, entries, "app/a/x86_64/stable")
	assert.Equal(t, uint64(500), entries["app/a/x86_64/stable"].CommitSize)
	assert.Equal(t, commitDigest, entries["app/a/x86_64/stable"].CommitDigest)
}

func TestFastLoaderMissingFileReturnsNotOK(t *testing.T) {
	loader := FastLoader{Source: fakeGzSource{files: map[hash.Digest][]byte{}}}
	_, ok, err := loader.LoadRefEntries(context.Background(), digestFor("absent"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFastLoaderFeedsCachePopulateFast(t *testing.T) {
	commitDigest := digestFor("commit-y")
	refMap := variant.NewMap()
	meta := variant.NewMap()
	meta.Put("xa.data", variant.Tuple(variant.BEUint64(1), variant.BEUint64(2), variant.String("<m/>")))
	refMap.Put("runtime/b/x86_64/stable", variant.Tuple(variant.Uint64(1), variant.Bytes(commitDigest.Bytes()), variant.MapValue(meta)))
	sum := &summary.Summary{Refs: refMap, Metadata: variant.NewMap()}
	raw, err := summary.Encode(sum)
	require.NoError(t, err)

	subDigest := digestFor("sub-arch")
	loader := FastLoader{Source: fakeGzSource{files: map[hash.Digest][]byte{subDigest: gzipBytes(t, raw)}}}

	idx := &Index{
		SubSummaries: map[string]*Entry{"x86_64": {CurrentDigest: subDigest}},
		Metadata:     variant.NewMap(),
	}
	idx.Metadata.Put("xa.cache-version", variant.Uint32(cache.ExpectedCacheVersion))

	c, err := cache.PopulateFast(context.Background(), idx, loader)
	require.NoError(t, err)
	assert.True(t, c.Has(commitDigest))
}
