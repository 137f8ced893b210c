// Package reposummary is the root orchestrator: it sequences cache
// population, legacy and modern summary generation, summary index
// generation, signing, atomic install, and garbage collection into the
// single Update entry point of §4.8.
package reposummary

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/flatpak/repo-summary/cache"
	"github.com/flatpak/repo-summary/config"
	"github.com/flatpak/repo-summary/fsutil"
	"github.com/flatpak/repo-summary/gc"
	"github.com/flatpak/repo-summary/hash"
	"github.com/flatpak/repo-summary/refs"
	"github.com/flatpak/repo-summary/sign"
	"github.com/flatpak/repo-summary/store"
	"github.com/flatpak/repo-summary/sumindex"
	"github.com/flatpak/repo-summary/summary"
	"github.com/flatpak/repo-summary/trace"
)

// Repository wires the external collaborators (§1: object database,
// installation, and static-delta machinery live outside this module) and
// the repository configuration into one Update entry point.
type Repository struct {
	// FS is the repository's root directory: summary, summary.idx,
	// summary.idx.sig, summary.sig, and the summaries/ subdirectory all
	// live here.
	FS billy.Filesystem
	// Sync requests a durability sync (fdatasync/FlushFileBuffers) before
	// every atomic rename (§4.2).
	Sync bool

	RefLister         store.RefLister
	CommitReader      store.CommitReader
	TreeWalker        store.TreeWalker
	StaticDeltaLister store.StaticDeltaLister

	// Config is the reconciled repository configuration (§6); callers
	// typically build this with config.Load.
	Config *config.Config
	// CollectionID is the repository's OSTree collection ID, a core.*
	// config concern this module's config package doesn't itself parse
	// (§1 places the underlying object-store/repo-config reader out of
	// scope); pass "" if the repository has none configured.
	CollectionID string

	// Signer produces the detached signature over the index bytes. Nil
	// disables signing (§4.8 step 9 is then skipped).
	Signer sign.Signer

	// DisableIndex, when true, skips steps 6, 7, 9, and 11 of §4.8: only
	// the legacy compat summary is (re)written.
	DisableIndex bool

	// Now returns the current time as seconds since the epoch, captured
	// once per run for the last-modified metadata key (§5: "not sensitive
	// to iteration duration"). Defaults to time.Now().Unix().
	Now func() uint64
}

// Result reports what one Update run did.
type Result struct {
	RefCount     int
	SubSummaries int
	Signed       bool
	IndexSkipped bool
	GCRemoved    []string
	GCWarned     []string
}

func (r *Repository) now() uint64 {
	if r.Now != nil {
		return r.Now()
	}
	return uint64(time.Now().Unix())
}

const (
	rootSummaryName    = "summary"
	rootSummarySigName = "summary.sig"
	rootIndexName      = "summary.idx"
	rootIndexSigName   = "summary.idx.sig"
)

// Update runs one full §4.8 sequence against the wired collaborators.
func (r *Repository) Update(ctx context.Context) (*Result, error) {
	lastModified := r.now()
	summaries := fsutil.SummariesStore{FS: r.FS, Sync: r.Sync}

	// Step 1: list refs.
	refMap, err := r.RefLister.ListRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: listing refs: %w", trace.Cache, err)
	}
	trace.Cache.Printf("listed %d refs", len(refMap))

	// Step 2: load prior index and try the fast cache path.
	priorBytes, hasPrior, err := r.readRoot(rootIndexName)
	if err != nil {
		return nil, fmt.Errorf("%s: reading prior index: %w", trace.Cache, err)
	}
	var priorIndex *sumindex.Index
	var priorDigest hash.Digest
	if hasPrior {
		priorDigest = hash.Sum(priorBytes)
		priorIndex, err = sumindex.Decode(priorBytes)
		if err != nil {
			trace.Cache.Printf("prior index unreadable, falling back to slow path: %v", err)
			hasPrior = false
			priorIndex = nil
		}
	}

	c := cache.New()
	if priorIndex != nil {
		fast, err := cache.PopulateFast(ctx, priorIndex, sumindex.FastLoader{Source: summaries})
		if err != nil {
			trace.Cache.Printf("fast path invalidated, falling back to slow path: %v", err)
		} else {
			c = fast
		}
	}

	// Step 3: list static deltas.
	deltaNames, err := r.StaticDeltaLister.ListStaticDeltas(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: listing static deltas: %w", trace.Cache, err)
	}
	staticDeltas := make(map[string]hash.Digest, len(deltaNames))
	for _, name := range deltaNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		digest, err := r.StaticDeltaLister.SuperblockDigest(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%s: superblock digest for %s: %w", trace.Cache, name, err)
		}
		staticDeltas[name] = digest
	}

	// Step 4: slow-path the rest, accumulating arches and subsets seen.
	if err := cache.PopulateSlow(ctx, c, refMap, r.CommitReader, r.TreeWalker); err != nil {
		return nil, fmt.Errorf("%s: %w", trace.Cache, err)
	}

	arches, subsets := seenArchesAndSubsets(refMap, c)

	repoMeta, err := r.repoMetadata()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", trace.Generate, err)
	}

	baseInput := summary.Input{
		Refs:         refMap,
		Cache:        c,
		StaticDeltas: staticDeltas,
		LastModified: lastModified,
		CacheVersion: cache.ExpectedCacheVersion,
		Repo:         repoMeta,
	}

	// Step 5: legacy summary.
	legacyInput := baseInput
	legacyInput.SubsetFilter = ""
	legacyInput.ArchFilter = r.Config.Flatpak.SummaryArches
	legacyInput.Legacy = true
	legacySummary, err := summary.Generate(legacyInput)
	if err != nil {
		return nil, fmt.Errorf("%s: generating legacy summary: %w", trace.Generate, err)
	}
	legacyBytes, err := summary.Encode(legacySummary)
	if err != nil {
		return nil, fmt.Errorf("%s: encoding legacy summary: %w", trace.Generate, err)
	}

	res := &Result{RefCount: len(refMap)}

	if r.DisableIndex {
		if err := r.installLegacyOnly(legacyBytes); err != nil {
			return nil, err
		}
		res.IndexSkipped = true
		return res, nil
	}

	// Step 6: one modern sub-summary per (subset, arch) pair.
	generated := make(map[string]sumindex.GeneratedSubSummary)
	for _, subset := range sortedKeys(subsets) {
		for _, arch := range sortedKeys(arches) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			in := baseInput
			in.SubsetFilter = subset
			in.ArchFilter = []string{arch}
			in.Legacy = false

			sub, err := summary.Generate(in)
			if err != nil {
				return nil, fmt.Errorf("%s: generating sub-summary %s/%s: %w", trace.Generate, subset, arch, err)
			}
			subBytes, ranges, err := summary.EncodeWithRanges(sub)
			if err != nil {
				return nil, fmt.Errorf("%s: encoding sub-summary %s/%s: %w", trace.Generate, subset, arch, err)
			}
			digest := hash.Sum(subBytes)

			if err := summaries.WriteSubSummary(ctx, digest, subBytes); err != nil {
				return nil, fmt.Errorf("%s: writing sub-summary %s/%s: %w", trace.Generate, subset, arch, err)
			}

			name := refs.SubSummaryName(subset, arch)
			generated[name] = sumindex.GeneratedSubSummary{Digest: digest, Bytes: subBytes, Ranges: ranges}
		}
	}
	res.SubSummaries = len(generated)

	// Step 7: summary index.
	idxInput := sumindex.Input{
		Generated:    generated,
		Prior:        priorIndex,
		MaxHistory:   int(r.Config.Flatpak.SummaryHistoryLength),
		CacheVersion: cache.ExpectedCacheVersion,
		LastModified: lastModified,
	}
	newIndex, err := sumindex.Generate(ctx, idxInput, summaries, summaries)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", trace.Index, err)
	}
	idxBytes, err := sumindex.Encode(newIndex)
	if err != nil {
		return nil, fmt.Errorf("%s: encoding index: %w", trace.Index, err)
	}
	idxDigest := hash.Sum(idxBytes)

	// Step 8: OSTree static-delta index recompute is delegated to the
	// object-store layer (§1, §4.8 step 8) — nothing to do here.

	// Step 9: sign, if configured.
	var sigText string
	if r.Signer != nil {
		sigText, err = r.Signer.Sign(idxBytes)
		if err != nil {
			return nil, fmt.Errorf("%s: signing index: %w", trace.Sign, err)
		}
		res.Signed = true
	}

	// Step 10: atomic install.
	if err := r.install(legacyBytes, idxBytes, sigText); err != nil {
		return nil, err
	}

	// Step 11: GC.
	referenced := make(map[hash.Digest]struct{}, len(generated))
	generatedThisRun := make(map[hash.Digest]struct{}, len(generated))
	for _, g := range generated {
		referenced[g.Digest] = struct{}{}
		generatedThisRun[g.Digest] = struct{}{}
	}
	for _, entry := range newIndex.SubSummaries {
		for _, h := range entry.History {
			referenced[h] = struct{}{}
		}
	}
	gcResult, err := gc.Run(ctx, summaries, gc.Input{
		Referenced:          referenced,
		GeneratedThisRun:    generatedThisRun,
		CurrentIndexDigest:  idxDigest,
		PreviousIndexDigest: priorDigest,
		HasPrevious:         hasPrior,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", trace.GC, err)
	}
	res.GCRemoved = gcResult.Removed
	res.GCWarned = gcResult.Warned

	return res, nil
}

// installLegacyOnly implements §4.8 step 10 for a disable_index run: only
// the legacy summary is replaced, and the stale detached summary.sig is
// removed (signing and the index files are skipped entirely per the
// disable_index flag, §6).
func (r *Repository) installLegacyOnly(legacyBytes []byte) error {
	if err := fsutil.WriteFile(r.FS, ".", rootSummaryName, legacyBytes, r.Sync); err != nil {
		return fmt.Errorf("%s: installing summary: %w", trace.Install, err)
	}
	if err := r.removeIfExists(rootSummarySigName); err != nil {
		return fmt.Errorf("%s: removing stale summary.sig: %w", trace.Install, err)
	}
	return nil
}

// install implements §4.8 step 10: atomically replace summary.idx (and
// write summary.idx.sig and the digested summaries/{D}.idx.sig when
// signed), the legacy summary, and unlink the stale detached summary.sig.
func (r *Repository) install(legacyBytes, idxBytes []byte, sigText string) error {
	if err := fsutil.WriteFile(r.FS, ".", rootIndexName, idxBytes, r.Sync); err != nil {
		return fmt.Errorf("%s: installing summary.idx: %w", trace.Install, err)
	}
	if err := fsutil.WriteFile(r.FS, ".", rootSummaryName, legacyBytes, r.Sync); err != nil {
		return fmt.Errorf("%s: installing summary: %w", trace.Install, err)
	}

	if sigText != "" {
		if err := fsutil.WriteFile(r.FS, ".", rootIndexSigName, []byte(sigText), r.Sync); err != nil {
			return fmt.Errorf("%s: installing summary.idx.sig: %w", trace.Install, err)
		}
		digest := hash.Sum(idxBytes)
		if err := fsutil.WriteFile(r.FS, fsutil.SummariesDir, fsutil.IndexSigName(digest), []byte(sigText), r.Sync); err != nil {
			return fmt.Errorf("%s: installing summaries/%s: %w", trace.Install, fsutil.IndexSigName(digest), err)
		}
	}

	if err := r.removeIfExists(rootSummarySigName); err != nil {
		return fmt.Errorf("%s: removing stale summary.sig: %w", trace.Install, err)
	}
	return nil
}

func (r *Repository) removeIfExists(name string) error {
	if err := r.FS.Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (r *Repository) readRoot(name string) ([]byte, bool, error) {
	f, err := r.FS.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, false, err
	}
	return buf, true, nil
}

func (r *Repository) repoMetadata() (summary.RepoMetadata, error) {
	gpgKeys, err := r.Config.Flatpak.GPGKeys()
	if err != nil {
		return summary.RepoMetadata{}, err
	}
	f := r.Config.Flatpak
	return summary.RepoMetadata{
		Mode:                 r.Config.Core.Mode,
		TombstoneCommits:     r.Config.Core.TombstoneCommits,
		CollectionID:         r.CollectionID,
		Title:                f.Title,
		Comment:              f.Comment,
		Description:          f.Description,
		Homepage:             f.Homepage,
		Icon:                 f.Icon,
		RedirectURL:          f.RedirectURL,
		DefaultBranch:        f.DefaultBranch,
		DeployCollectionID:   f.DeployCollectionID,
		AuthenticatorName:    f.AuthenticatorName,
		HasAuthenticator:     f.AuthenticatorName != "" || f.HasAuthenticatorInstall,
		AuthenticatorInstall: f.AuthenticatorInstall,
		AuthenticatorOptions: f.AuthenticatorOptions,
		GPGKeys:              gpgKeys,
	}, nil
}

// seenArchesAndSubsets implements §4.8 step 4's accumulation: every ref's
// own arch segment, every appstream2 ref's encoded subset, and every
// cached commit's xa.subsets membership, with the default subset always
// present.
func seenArchesAndSubsets(refMap map[string]hash.Digest, c *cache.Cache) (arches, subsets map[string]struct{}) {
	arches = map[string]struct{}{}
	subsets = map[string]struct{}{"": {}}

	for name := range refMap {
		r := refs.Parse(name)
		if r.Arch() != "" {
			arches[r.Arch()] = struct{}{}
		}
		if r.Kind() == refs.KindAppstream && r.Subset() != "" {
			subsets[r.Subset()] = struct{}{}
		}
	}
	for _, digest := range c.Digests() {
		d, ok := c.Get(digest)
		if !ok {
			continue
		}
		for s := range d.Subsets {
			subsets[s] = struct{}{}
		}
	}
	return arches, subsets
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	refs.SortStrings(out)
	return out
}
