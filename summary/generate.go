package summary

import (
	"strings"

	"github.com/flatpak/repo-summary/cache"
	"github.com/flatpak/repo-summary/hash"
	"github.com/flatpak/repo-summary/refs"
	"github.com/flatpak/repo-summary/variant"
)

// RepoMetadata carries the repo-level metadata keys listed in §6 that come
// from repository configuration rather than from the ref/cache inputs.
type RepoMetadata struct {
	Mode                 string
	TombstoneCommits     bool
	CollectionID         string
	Title                string
	Comment              string
	Description          string
	Homepage             string
	Icon                 string
	RedirectURL          string
	DefaultBranch        string
	DeployCollectionID   bool
	AuthenticatorName    string
	HasAuthenticator     bool
	AuthenticatorInstall bool
	AuthenticatorOptions map[string]string
	GPGKeys              []byte
}

// Input gathers everything Generate needs to build one summary value
// (§4.4): the ref set, the commit metadata cache, the static-delta
// manifest, the subset/arch filters, and the legacy/modern shape switch.
type Input struct {
	Refs         map[string]hash.Digest
	Cache        *cache.Cache
	StaticDeltas map[string]hash.Digest // delta name -> superblock digest
	SubsetFilter string                 // "" selects the default subset
	ArchFilter   []string               // nil/empty means no arch filtering
	Legacy       bool
	LastModified uint64
	CacheVersion uint32
	Repo         RepoMetadata
}

const summaryVersion uint32 = 1

// Generate builds one Summary from in, applying the arch and subset
// filters of §4.4 and choosing the legacy or modern per-ref metadata
// shape.
func Generate(in Input) (*Summary, error) {
	names := make([]string, 0, len(in.Refs))
	for name := range in.Refs {
		names = append(names, name)
	}
	refs.SortStrings(names)

	archFilter := archFilterSet(in.ArchFilter)

	refMap := variant.NewMap()
	survivingDigests := make(map[hash.Digest]struct{})

	for _, name := range names {
		r := refs.Parse(name)
		if !archSurvives(r, archFilter) {
			continue
		}
		if !subsetSurvives(r, name, in.Cache, in.Refs[name], in.SubsetFilter) {
			continue
		}

		digest := in.Refs[name]
		survivingDigests[digest] = struct{}{}

		entry := buildRefEntry(r, digest, in.Cache, in.Legacy)
		refMap.Put(name, entry)
	}

	metadata := buildRepoMetadata(in, survivingDigests)

	return &Summary{Refs: refMap, Metadata: metadata}, nil
}

func archFilterSet(arches []string) map[string]struct{} {
	if len(arches) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(arches))
	for _, a := range arches {
		set[a] = struct{}{}
	}
	return set
}

// archSurvives implements §4.4 step 2: refs with no arch segment always
// survive; otherwise the ref's arch must be in the filter, when a filter
// is configured.
func archSurvives(r refs.Ref, archFilter map[string]struct{}) bool {
	if archFilter == nil {
		return true
	}
	if r.Arch() == "" {
		return true
	}
	_, ok := archFilter[r.Arch()]
	return ok
}

// subsetSurvives implements §4.4 step 3.
func subsetSurvives(r refs.Ref, name string, c *cache.Cache, digest hash.Digest, subsetFilter string) bool {
	if subsetFilter == "" {
		if r.Kind() == refs.KindAppstream && r.Subset() != "" {
			return false
		}
		return true
	}

	if r.Kind() == refs.KindAppstream {
		if r.IsLegacyAppstream() {
			return false
		}
		return r.Subset() == subsetFilter
	}
	if r.Kind() == refs.KindApp || r.Kind() == refs.KindRuntime {
		d, ok := c.Get(digest)
		if !ok {
			return false
		}
		_, has := d.Subsets[subsetFilter]
		return has
	}
	return false
}

// buildRefEntry implements §4.4 step 5: the ref entry's value is
// tuple(commit_size, commit_digest, metadata_map), where metadata_map
// inlines xa.data and sparse keys for qualifying refs in the modern shape,
// and just the legacy timestamp key in the legacy shape.
func buildRefEntry(r refs.Ref, digest hash.Digest, c *cache.Cache, legacy bool) variant.Value {
	meta := variant.NewMap()

	d, ok := c.Get(digest)
	if !ok {
		d = &cache.Data{}
	}

	if r.HasCacheData() {
		if legacy {
			meta.Put("ostree.commit.timestamp", variant.BEUint64(d.CommitTimestamp))
		} else {
			meta.Put("xa.data", variant.Tuple(
				variant.BEUint64(d.InstalledSize),
				variant.BEUint64(d.DownloadSize),
				variant.String(d.MetadataText),
			))
			putSparse(meta, d.Sparse)
			meta.Put("ostree.commit.timestamp2", variant.BEUint64(d.CommitTimestamp))
		}
	}

	return variant.Tuple(variant.Uint64(d.CommitSize), variant.Bytes(digest.Bytes()), variant.MapValue(meta))
}

// putSparse inlines a cache entry's sparse fields directly into a per-ref
// metadata map (modern shape) or a sub-map keyed by commit hex (legacy
// xa.sparse-cache), per §4.3's CommitData.sparse / §6's sparse key set.
func putSparse(m *variant.Map, s *cache.Sparse) {
	if s == nil {
		return
	}
	if s.EOL != "" {
		m.Put("eol", variant.String(s.EOL))
	}
	if s.EOLRebase != "" {
		m.Put("eolr", variant.String(s.EOLRebase))
	}
	if s.TokenType != nil {
		m.Put("tt", variant.Uint32(uint32(*s.TokenType)))
	}
	if len(s.ExtraData) > 0 {
		m.Put("eds", variant.Tuple(variant.Uint32(uint32(len(s.ExtraData))), variant.BEUint64(s.ExtraDataTotal)))
	}
	for k, v := range s.Extra {
		m.Put(k, variant.String(v))
	}
}

func hasSparseData(s *cache.Sparse) bool {
	if s == nil {
		return false
	}
	return s.EOL != "" || s.EOLRebase != "" || s.TokenType != nil || len(s.ExtraData) > 0 || len(s.Extra) > 0
}

// buildRepoMetadata implements §4.4 step 6 and §4.4 step 7 (delta
// filtering), producing the repo-level metadata map described in §6.
func buildRepoMetadata(in Input, survivingDigests map[hash.Digest]struct{}) *variant.Map {
	m := variant.NewMap()

	m.Put("ostree.summary.mode", variant.String(in.Repo.Mode))
	m.Put("ostree.summary.tombstone-commits", variant.Bool(in.Repo.TombstoneCommits))
	m.Put("ostree.summary.indexed-deltas", variant.Bool(true))
	m.Put("ostree.summary.last-modified", variant.BEUint64(in.LastModified))
	if in.Repo.CollectionID != "" {
		m.Put("ostree.summary.collection-id", variant.String(in.Repo.CollectionID))
	}

	deltaMap := variant.NewMap()
	for name, superblock := range in.StaticDeltas {
		target, err := deltaTarget(name)
		if err != nil {
			continue
		}
		if _, ok := survivingDigests[target]; !ok {
			continue
		}
		deltaMap.Put(name, variant.Bytes(superblock.Bytes()))
	}
	m.Put("ostree.static-deltas", variant.MapValue(deltaMap))

	putIfNotEmpty := func(key, val string) {
		if val != "" {
			m.Put(key, variant.String(val))
		}
	}
	putIfNotEmpty("xa.title", in.Repo.Title)
	putIfNotEmpty("xa.comment", in.Repo.Comment)
	putIfNotEmpty("xa.description", in.Repo.Description)
	putIfNotEmpty("xa.homepage", in.Repo.Homepage)
	putIfNotEmpty("xa.icon", in.Repo.Icon)
	putIfNotEmpty("xa.redirect-url", in.Repo.RedirectURL)
	putIfNotEmpty("xa.default-branch", in.Repo.DefaultBranch)

	if in.Repo.DeployCollectionID {
		m.Put("xa.deploy-collection-id", variant.Bool(true))
	}
	if in.Repo.HasAuthenticator {
		putIfNotEmpty("xa.authenticator-name", in.Repo.AuthenticatorName)
		m.Put("xa.authenticator-install", variant.Bool(in.Repo.AuthenticatorInstall))
		for k, v := range in.Repo.AuthenticatorOptions {
			m.Put("xa.authenticator-options."+k, variant.String(v))
		}
	}
	if len(in.Repo.GPGKeys) > 0 {
		m.Put("xa.gpg-keys", variant.Bytes(in.Repo.GPGKeys))
	}

	m.Put("xa.cache-version", variant.Uint32(in.CacheVersion))

	if in.Legacy {
		xaCache := variant.NewMap()
		xaSparseCache := variant.NewMap()
		for digest := range survivingDigests {
			d, ok := in.Cache.Get(digest)
			if !ok {
				continue
			}
			xaCache.Put(digest.Hex(), variant.Tuple(
				variant.BEUint64(d.InstalledSize),
				variant.BEUint64(d.DownloadSize),
				variant.String(d.MetadataText),
			))
			if hasSparseData(d.Sparse) {
				sparseEntry := variant.NewMap()
				putSparse(sparseEntry, d.Sparse)
				xaSparseCache.Put(digest.Hex(), variant.MapValue(sparseEntry))
			}
		}
		m.Put("xa.cache", variant.MapValue(xaCache))
		m.Put("xa.sparse-cache", variant.MapValue(xaSparseCache))
	} else {
		m.Put("xa.summary-version", variant.Uint32(summaryVersion))
	}

	return m
}

// deltaTarget extracts the TO commit digest from an OSTree static-delta
// name of the shape "[FROM-]TO" (§4.2, §4.4 step 7).
func deltaTarget(name string) (hash.Digest, error) {
	if i := strings.LastIndex(name, "-"); i >= 0 && len(name)-i-1 == hash.HexSize {
		return hash.FromHex(name[i+1:])
	}
	return hash.FromHex(name)
}
