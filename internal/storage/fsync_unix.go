//go:build !windows

// internal/storage/fsync_unix.go
package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync flushes f's data (and enough metadata to read it back) without
// the full metadata sync a plain os.File.Sync performs, the same trade the
// teacher's durability path makes. Grounded on the advisory-lock package's
// sibling use of golang.org/x/sys/unix (tur/pkg/turdb/lock_unix.go); this
// re-aims the same dependency at the Pager's durability boundary instead of
// mmap duty, which this engine does not use (see internal/storage/pager.go).
func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
