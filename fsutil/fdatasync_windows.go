//go:build windows

package fsutil

import (
	"github.com/go-git/go-billy/v5"
	"golang.org/x/sys/windows"
)

type fdatasyncer interface {
	Fd() uintptr
}

// fdatasync flushes f's data to durable storage via FlushFileBuffers, the
// Windows equivalent of fdatasync. Backends without a real handle are a
// no-op.
func fdatasync(f billy.File) error {
	fd, ok := f.(fdatasyncer)
	if !ok {
		return nil
	}
	return windows.FlushFileBuffers(windows.Handle(fd.Fd()))
}
