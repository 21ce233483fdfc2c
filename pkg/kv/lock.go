// pkg/kv/lock.go
package kv

import (
	"os"

	"bptreekv/internal/storage"
)

// acquireLock opens (creating if needed) the sidecar lock file at path and
// takes storage.LockFile's non-blocking advisory exclusive lock on it, the
// single-writer guard a Database holds for its entire lifetime.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := storage.LockFile(f); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// releaseLock unlocks and closes a lock file acquired by acquireLock. It is
// safe to call with a nil file.
func releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}
	storage.UnlockFile(f)
	return f.Close()
}
