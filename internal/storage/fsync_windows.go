//go:build windows

// internal/storage/fsync_windows.go
package storage

import "os"

// fdatasync falls back to a full file sync on Windows, which has no
// data-only flush syscall exposed the way fsync/fdatasync does on Unix.
func fdatasync(f *os.File) error {
	return f.Sync()
}
