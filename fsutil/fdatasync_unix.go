//go:build !windows

package fsutil

import (
	"github.com/go-git/go-billy/v5"
	"golang.org/x/sys/unix"
)

// fdatasyncer is implemented by billy.File backends (osfs) that expose the
// underlying file descriptor.
type fdatasyncer interface {
	Fd() uintptr
}

// fdatasync flushes f's data to durable storage. Filesystem backends that
// don't expose a real file descriptor (in-memory fakes) are a no-op.
func fdatasync(f billy.File) error {
	fd, ok := f.(fdatasyncer)
	if !ok {
		return nil
	}
	return unix.Fdatasync(int(fd.Fd()))
}
