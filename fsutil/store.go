package fsutil

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"

	"github.com/flatpak/repo-summary/hash"
)

// SummariesStore is the filesystem-backed implementation of the summaries/
// directory the root orchestrator wires into gc.Directory and into
// sumindex's BytesSource/GzSource/DeltaWriter seams. Callers that only need
// one of those roles can embed or wrap it; this type implements all of
// them since they all reduce to reading/writing files under SummariesDir.
type SummariesStore struct {
	FS   billy.Filesystem
	Sync bool // whether writes fdatasync before the rename
}

func (s SummariesStore) dir() string { return SummariesDir }

// List implements gc.Directory.
func (s SummariesStore) List(ctx context.Context) ([]string, error) {
	infos, err := s.FS.ReadDir(s.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fsutil: listing %s: %w", s.dir(), err)
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		names = append(names, fi.Name())
	}
	return names, nil
}

// Remove implements gc.Directory.
func (s SummariesStore) Remove(ctx context.Context, name string) error {
	path, err := SummariesPath(name)
	if err != nil {
		return err
	}
	return s.FS.Remove(path)
}

// ReadGzSubSummary implements sumindex.GzSource.
func (s SummariesStore) ReadGzSubSummary(ctx context.Context, digest hash.Digest) ([]byte, bool, error) {
	return s.readFile(SubSummaryName(digest))
}

// LoadSubSummaryBytes implements sumindex.BytesSource. The generator needs
// the decompressed bytes to diff against, not the gzip container.
func (s SummariesStore) LoadSubSummaryBytes(ctx context.Context, digest hash.Digest) ([]byte, bool, error) {
	gz, ok, err := s.readFile(SubSummaryName(digest))
	if err != nil || !ok {
		return nil, ok, err
	}
	return ungzip(gz)
}

// WriteDelta implements sumindex.DeltaWriter.
func (s SummariesStore) WriteDelta(ctx context.Context, from, to hash.Digest, compressed []byte) error {
	return s.writeFile(DeltaName(from, to), compressed)
}

// WriteSubSummary gzips and atomically writes a generated sub-summary's
// bytes to summaries/{digest}.gz, unless a non-empty file is already there
// (§4.8 step 6: "unless a non-empty file already exists there").
func (s SummariesStore) WriteSubSummary(ctx context.Context, digest hash.Digest, raw []byte) error {
	name := SubSummaryName(digest)
	if existing, ok, err := s.readFile(name); err != nil {
		return err
	} else if ok && len(existing) > 0 {
		return nil
	}

	gz, err := gzipBytes(raw)
	if err != nil {
		return err
	}
	return s.writeFile(name, gz)
}

func (s SummariesStore) readFile(name string) ([]byte, bool, error) {
	path, err := SummariesPath(name)
	if err != nil {
		return nil, false, err
	}
	f, err := s.FS.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fsutil: opening %s: %w", path, err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, false, fmt.Errorf("fsutil: reading %s: %w", path, err)
	}
	return b, true, nil
}

func (s SummariesStore) writeFile(name string, b []byte) error {
	return WriteFile(s.FS, s.dir(), name, b, s.Sync)
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ungzip(b []byte) ([]byte, bool, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, false, err
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}
