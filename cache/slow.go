package cache

import (
	"context"
	"fmt"

	"github.com/flatpak/repo-summary/hash"
	"github.com/flatpak/repo-summary/store"
	"github.com/flatpak/repo-summary/trace"
)

// PopulateSlow implements the object-store-walking path of §4.3: for every
// ref digest not already present in c, read the commit object and either
// take installed/download size and metadata text straight from the commit
// metadata, or walk the tree to compute them.
//
// Cancellation is checked via ctx.Err() between ref iterations and before
// each blocking tree walk, per §5.
func PopulateSlow(ctx context.Context, c *Cache, digests map[string]hash.Digest, reader store.CommitReader, walker store.TreeWalker) error {
	seen := make(map[hash.Digest]struct{}, len(digests))
	for _, digest := range digests {
		if _, dup := seen[digest]; dup {
			continue
		}
		seen[digest] = struct{}{}

		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Has(digest) {
			continue
		}

		trace.Cache.Printf("slow path: reading commit %s", digest)
		if err := populateOne(ctx, c, digest, reader, walker); err != nil {
			return fmt.Errorf("cache: slow path: commit %s: %w", digest, err)
		}
	}
	return nil
}

func populateOne(ctx context.Context, c *Cache, digest hash.Digest, reader store.CommitReader, walker store.TreeWalker) error {
	commit, err := reader.ReadCommit(ctx, digest)
	if err != nil {
		return fmt.Errorf("reading commit: %w", err)
	}

	d := &Data{
		CommitSize:      commit.Size,
		CommitTimestamp: commit.Timestamp,
	}

	md := commit.Metadata

	if md.HasAppMetadata {
		d.MetadataText = md.AppMetadata
	} else if text, ok, err := walker.Metadata(ctx, commit.RootTree); err != nil {
		return fmt.Errorf("reading tree metadata file: %w", err)
	} else if ok {
		d.MetadataText = text
	}

	extraDownload := uint64(0)
	for _, ed := range md.ExtraData {
		extraDownload += ed.DownloadSize
	}

	if md.HasInstalledSize && md.HasDownloadSize {
		d.InstalledSize = md.InstalledSize
		d.DownloadSize = md.DownloadSize + extraDownload
	} else {
		// guard blocking tree walk reads against cancellation.
		installed, download, err := walkSizesCancelable(ctx, walker, commit.RootTree)
		if err != nil {
			return fmt.Errorf("walking tree sizes: %w", err)
		}
		if md.HasInstalledSize {
			installed = md.InstalledSize
		}
		if md.HasDownloadSize {
			download = md.DownloadSize
		}
		d.InstalledSize = installed
		d.DownloadSize = download + extraDownload
	}

	for _, s := range md.Subsets {
		d.AddSubset(s)
	}

	sparse := &Sparse{EOL: md.EOL, EOLRebase: md.EOLRebase, TokenType: md.TokenType}
	for _, ed := range md.ExtraData {
		sparse.ExtraData = append(sparse.ExtraData, ExtraData{
			Name:          ed.Name,
			DownloadSize:  ed.DownloadSize,
			InstalledSize: ed.InstalledSize,
			SHA256:        ed.SHA256,
			URI:           ed.URI,
		})
		sparse.ExtraDataTotal += ed.DownloadSize
	}
	d.Sparse = sparse

	c.Put(digest, d)
	return nil
}

// walkSizesCancelable checks ctx.Err() before handing the tree walk to
// walker.Sizes, which itself receives ctx; no reader wrapping is involved.
func walkSizesCancelable(ctx context.Context, walker store.TreeWalker, root hash.Digest) (installed, download uint64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	return walker.Sizes(ctx, root)
}
