package fsutil

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
)

// AtomicWriter writes to a temp file alongside the target path and renames
// it into place on Commit, matching the teacher's PackWriter/ObjectWriter
// tempfile-then-rename shape (§4.2: "all writes go through a temp-file-
// then-rename primitive"). If Commit is never called the temp file is left
// behind for Abort to clean up; if the writer is simply dropped without
// either, nothing at the final path is disturbed.
type AtomicWriter struct {
	fs    billy.Filesystem
	dir   string
	final string
	f     billy.File
	sync  bool
}

// Create opens a new AtomicWriter for the file dir/name. withSync requests
// an fdatasync (or platform equivalent) of the temp file before the rename,
// so the data is durable before the name swap is visible.
func Create(fs billy.Filesystem, dir, name string, withSync bool) (*AtomicWriter, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fsutil: creating %s: %w", dir, err)
	}

	f, err := fs.TempFile(dir, "tmp-"+name+"-")
	if err != nil {
		return nil, fmt.Errorf("fsutil: opening temp file for %s: %w", name, err)
	}
	return &AtomicWriter{
		fs:    fs,
		dir:   dir,
		final: fs.Join(dir, name),
		f:     f,
		sync:  withSync,
	}, nil
}

// Write implements io.Writer against the temp file.
func (w *AtomicWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

// Commit flushes, optionally syncs, closes, and renames the temp file into
// place. A reader that opened the old file by path before the rename keeps
// reading the old inode's bytes until it closes (§4.2's "tolerates
// concurrent readers of the old file").
func (w *AtomicWriter) Commit() error {
	if w.sync {
		if err := fdatasync(w.f); err != nil {
			_ = w.f.Close()
			_ = w.fs.Remove(w.f.Name())
			return fmt.Errorf("fsutil: syncing %s: %w", w.final, err)
		}
	}

	if err := w.f.Close(); err != nil {
		_ = w.fs.Remove(w.f.Name())
		return fmt.Errorf("fsutil: closing temp file for %s: %w", w.final, err)
	}

	if err := w.fs.Rename(w.f.Name(), w.final); err != nil {
		return fmt.Errorf("fsutil: renaming into %s: %w", w.final, err)
	}

	fixPermissions(w.fs, w.final)
	return nil
}

// Abort closes and removes the temp file without touching the final path.
func (w *AtomicWriter) Abort() error {
	_ = w.f.Close()
	return w.fs.Remove(w.f.Name())
}

// WriteFile is the one-shot convenience form: write b to dir/name
// atomically, syncing first if withSync.
func WriteFile(fs billy.Filesystem, dir, name string, b []byte, withSync bool) error {
	w, err := Create(fs, dir, name, withSync)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		_ = w.Abort()
		return fmt.Errorf("fsutil: writing %s: %w", name, err)
	}
	return w.Commit()
}

// fixPermissions mirrors the teacher's writers.go: make the final file
// read-only where the filesystem supports chmod (no-op on platforms/
// backends that don't).
func fixPermissions(fs billy.Filesystem, path string) {
	if chmodFS, ok := fs.(billy.Chmod); ok {
		_ = chmodFS.Chmod(path, 0o444)
	}
}
