//go:build !windows

// internal/storage/lock_unix.go
package storage

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// LockFile acquires a non-blocking exclusive advisory lock on f, enforcing
// the single-writer model at the process level: the engine never arbitrates
// concurrent writers internally, so Open fails fast instead. Grounded on
// tur/pkg/turdb/lock_unix.go, carried over unchanged in mechanism since the
// flock semantics it wraps have nothing to do with the mmap-vs-seek choice
// elsewhere in the Pager.
func LockFile(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return fmt.Errorf("flock %s: %w", f.Name(), ErrDatabaseLocked)
		}
		return err
	}
	return nil
}

// UnlockFile releases the lock acquired by LockFile.
func UnlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
