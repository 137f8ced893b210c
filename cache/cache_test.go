package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatpak/repo-summary/hash"
	"github.com/flatpak/repo-summary/store"
	"github.com/flatpak/repo-summary/variant"
)

func digestFor(s string) hash.Digest { return hash.Sum([]byte(s)) }

func TestCachePutGetHas(t *testing.T) {
	c := New()
	d := digestFor("commit-a")
	assert.False(t, c.Has(d))

	c.Put(d, &Data{InstalledSize: 10, DownloadSize: 5})
	assert.True(t, c.Has(d))

	got, ok := c.Get(d)
	require.True(t, ok)
	assert.Equal(t, uint64(10), got.InstalledSize)
}

func TestDataAddSubsetAccumulatesAcrossRefs(t *testing.T) {
	d := &Data{}
	d.AddSubset("stable")
	d.AddSubset("beta")
	d.AddSubset("stable")
	assert.Len(t, d.Subsets, 2)
	_, ok := d.Subsets["beta"]
	assert.True(t, ok)
}

func TestDataEqualIsSetInsensitiveOnSubsets(t *testing.T) {
	a := &Data{InstalledSize: 1, Sparse: &Sparse{}}
	a.AddSubset("x")
	a.AddSubset("y")

	b := &Data{InstalledSize: 1, Sparse: &Sparse{}}
	b.AddSubset("y")
	b.AddSubset("x")

	assert.True(t, a.Equal(b))
}

func TestCacheDigestsSortedAscending(t *testing.T) {
	c := New()
	c.Put(digestFor("z"), &Data{})
	c.Put(digestFor("a"), &Data{})
	c.Put(digestFor("m"), &Data{})

	digests := c.Digests()
	require.Len(t, digests, 3)
	for i := 1; i < len(digests); i++ {
		assert.True(t, digests[i-1].Hex() < digests[i].Hex())
	}
}

// fakeIndexSource and fakeLoader implement the fast-path seams.

type fakeIndexSource struct {
	version   uint32
	hasVer    bool
	subsByArc map[string]hash.Digest
}

func (f fakeIndexSource) CacheVersion() (uint32, bool)            { return f.version, f.hasVer }
func (f fakeIndexSource) SubSummaryDigests() map[string]hash.Digest { return f.subsByArc }

type fakeLoader struct {
	entries map[hash.Digest]map[string]RefEntry
}

func (f fakeLoader) LoadRefEntries(ctx context.Context, digest hash.Digest) (map[string]RefEntry, bool, error) {
	e, ok := f.entries[digest]
	return e, ok, nil
}

func refMetadata(t *testing.T, installed, download uint64, metadataText string) *variant.Map {
	t.Helper()
	m := variant.NewMap()
	m.Put("xa.data", variant.Tuple(
		variant.BEUint64(installed),
		variant.BEUint64(download),
		variant.String(metadataText),
	))
	m.Put("eol", variant.String("2030-01-01"))
	return m
}

func TestPopulateFastRejectsMissingCacheVersion(t *testing.T) {
	idx := fakeIndexSource{hasVer: false}
	_, err := PopulateFast(context.Background(), idx, fakeLoader{})
	assert.ErrorIs(t, err, ErrFastPathInvalid)
}

func TestPopulateFastRejectsVersionMismatch(t *testing.T) {
	idx := fakeIndexSource{version: 99, hasVer: true}
	_, err := PopulateFast(context.Background(), idx, fakeLoader{})
	assert.ErrorIs(t, err, ErrFastPathInvalid)
}

func TestPopulateFastBuildsCacheFromSubSummaries(t *testing.T) {
	subDigest := digestFor("sub-x86_64")
	commitDigest := digestFor("commit-1")

	idx := fakeIndexSource{
		version: ExpectedCacheVersion,
		hasVer:  true,
		subsByArc: map[string]hash.Digest{
			"stable-x86_64": subDigest,
		},
	}
	loader := fakeLoader{
		entries: map[hash.Digest]map[string]RefEntry{
			subDigest: {
				"app/org.example.App/x86_64/stable": {
					CommitSize:   1234,
					CommitDigest: commitDigest,
					Metadata:     refMetadata(t, 100, 50, "<metadata/>"),
				},
			},
		},
	}

	c, err := PopulateFast(context.Background(), idx, loader)
	require.NoError(t, err)
	require.True(t, c.Has(commitDigest))

	d, _ := c.Get(commitDigest)
	assert.Equal(t, uint64(100), d.InstalledSize)
	assert.Equal(t, uint64(50), d.DownloadSize)
	assert.Equal(t, "<metadata/>", d.MetadataText)
	assert.Equal(t, "2030-01-01", d.Sparse.EOL)
	_, hasStable := d.Subsets["stable"]
	assert.True(t, hasStable)
}

func TestPopulateFastPreservesExtraDataTotalFromEdsTuple(t *testing.T) {
	subDigest := digestFor("sub-x86_64-extra")
	commitDigest := digestFor("commit-extra")

	m := refMetadata(t, 100, 50, "<metadata/>")
	m.Put("eds", variant.Tuple(variant.Uint32(2), variant.BEUint64(777)))

	idx := fakeIndexSource{
		version: ExpectedCacheVersion,
		hasVer:  true,
		subsByArc: map[string]hash.Digest{
			"stable-x86_64": subDigest,
		},
	}
	loader := fakeLoader{
		entries: map[hash.Digest]map[string]RefEntry{
			subDigest: {
				"app/org.example.App/x86_64/stable": {
					CommitSize:   1234,
					CommitDigest: commitDigest,
					Metadata:     m,
				},
			},
		},
	}

	c, err := PopulateFast(context.Background(), idx, loader)
	require.NoError(t, err)
	require.True(t, c.Has(commitDigest))

	d, _ := c.Get(commitDigest)
	require.NotNil(t, d.Sparse)
	require.Len(t, d.Sparse.ExtraData, 2)
	assert.Equal(t, uint64(777), d.Sparse.ExtraDataTotal,
		"fast path must preserve the eds tuple's decoded total rather than recompute it from the lossy ExtraData slice")
}

func TestPopulateFastMissingSubSummaryInvalidates(t *testing.T) {
	subDigest := digestFor("sub-missing")
	idx := fakeIndexSource{
		version:   ExpectedCacheVersion,
		hasVer:    true,
		subsByArc: map[string]hash.Digest{"x86_64": subDigest},
	}
	_, err := PopulateFast(context.Background(), idx, fakeLoader{entries: map[hash.Digest]map[string]RefEntry{}})
	assert.ErrorIs(t, err, ErrFastPathInvalid)
}

// fakeCommitReader/fakeTreeWalker implement the slow-path seams.

type fakeCommitReader struct {
	commits map[hash.Digest]store.Commit
}

func (f fakeCommitReader) ReadCommit(ctx context.Context, digest hash.Digest) (store.Commit, error) {
	return f.commits[digest], nil
}

type fakeTreeWalker struct {
	installed, download uint64
	metadataText        string
	hasMetadata         bool
}

func (f fakeTreeWalker) Metadata(ctx context.Context, root hash.Digest) (string, bool, error) {
	return f.metadataText, f.hasMetadata, nil
}

func (f fakeTreeWalker) Sizes(ctx context.Context, root hash.Digest) (uint64, uint64, error) {
	return f.installed, f.download, nil
}

func TestPopulateSlowPrefersCommitMetadataOverTreeWalk(t *testing.T) {
	root := digestFor("root-1")
	commitDigest := digestFor("commit-slow-1")

	reader := fakeCommitReader{commits: map[hash.Digest]store.Commit{
		commitDigest: {
			RootTree: root,
			Size:     999,
			Metadata: store.CommitMetadata{
				HasAppMetadata:   true,
				AppMetadata:      "<from-commit/>",
				HasInstalledSize: true,
				InstalledSize:    500,
				HasDownloadSize:  true,
				DownloadSize:     200,
			},
		},
	}}
	walker := fakeTreeWalker{installed: 111111, download: 222222}

	c := New()
	err := PopulateSlow(context.Background(), c, map[string]hash.Digest{"app/a/x86_64/stable": commitDigest}, reader, walker)
	require.NoError(t, err)

	d, ok := c.Get(commitDigest)
	require.True(t, ok)
	assert.Equal(t, uint64(500), d.InstalledSize)
	assert.Equal(t, uint64(200), d.DownloadSize)
	assert.Equal(t, "<from-commit/>", d.MetadataText)
}

func TestPopulateSlowFallsBackToTreeWalk(t *testing.T) {
	root := digestFor("root-2")
	commitDigest := digestFor("commit-slow-2")

	reader := fakeCommitReader{commits: map[hash.Digest]store.Commit{
		commitDigest: {RootTree: root, Metadata: store.CommitMetadata{}},
	}}
	walker := fakeTreeWalker{installed: 321, download: 123, metadataText: "<tree-meta/>", hasMetadata: true}

	c := New()
	err := PopulateSlow(context.Background(), c, map[string]hash.Digest{"runtime/b/x86_64/stable": commitDigest}, reader, walker)
	require.NoError(t, err)

	d, _ := c.Get(commitDigest)
	assert.Equal(t, uint64(321), d.InstalledSize)
	assert.Equal(t, uint64(123), d.DownloadSize)
	assert.Equal(t, "<tree-meta/>", d.MetadataText)
}

func TestPopulateSlowAddsExtraDataDownloadSizeToTotal(t *testing.T) {
	root := digestFor("root-3")
	commitDigest := digestFor("commit-slow-3")

	reader := fakeCommitReader{commits: map[hash.Digest]store.Commit{
		commitDigest: {
			RootTree: root,
			Metadata: store.CommitMetadata{
				HasInstalledSize: true,
				InstalledSize:    10,
				HasDownloadSize:  true,
				DownloadSize:     20,
				ExtraData: []store.ExtraDataSource{
					{Name: "blob-1", DownloadSize: 30},
					{Name: "blob-2", DownloadSize: 40},
				},
			},
		},
	}}
	walker := fakeTreeWalker{}

	c := New()
	err := PopulateSlow(context.Background(), c, map[string]hash.Digest{"app/c/x86_64/stable": commitDigest}, reader, walker)
	require.NoError(t, err)

	d, _ := c.Get(commitDigest)
	assert.Equal(t, uint64(20+30+40), d.DownloadSize)
	require.Len(t, d.Sparse.ExtraData, 2)
	assert.Equal(t, "blob-1", d.Sparse.ExtraData[0].Name)
}

func TestPopulateSlowSkipsAlreadyCachedCommits(t *testing.T) {
	commitDigest := digestFor("commit-precached")
	c := New()
	c.Put(commitDigest, &Data{InstalledSize: 777})

	reader := fakeCommitReader{commits: map[hash.Digest]store.Commit{}}
	err := PopulateSlow(context.Background(), c, map[string]hash.Digest{"app/d/x86_64/stable": commitDigest}, reader, fakeTreeWalker{})
	require.NoError(t, err)

	d, _ := c.Get(commitDigest)
	assert.Equal(t, uint64(777), d.InstalledSize)
}

func TestPopulateSlowRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New()
	err := PopulateSlow(ctx, c, map[string]hash.Digest{"app/e/x86_64/stable": digestFor("commit-cancelled")}, fakeCommitReader{}, fakeTreeWalker{})
	assert.ErrorIs(t, err, context.Canceled)
}
