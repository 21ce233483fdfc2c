//go:build windows

// internal/storage/lock_windows.go
package storage

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

var (
	modkernel32      = syscall.NewLazyDLL("kernel32.dll")
	procLockFileEx   = modkernel32.NewProc("LockFileEx")
	procUnlockFileEx = modkernel32.NewProc("UnlockFileEx")
)

const (
	lockfileExclusiveLock   = 0x00000002
	lockfileFailImmediately = 0x00000001
)

// LockFile acquires a non-blocking exclusive advisory lock on f. Grounded on
// tur/pkg/turdb/lock_windows.go, unchanged.
func LockFile(f *os.File) error {
	var overlapped syscall.Overlapped
	r1, _, err := procLockFileEx.Call(
		uintptr(f.Fd()),
		uintptr(lockfileExclusiveLock|lockfileFailImmediately),
		0,
		1,
		0,
		uintptr(unsafe.Pointer(&overlapped)),
	)
	if r1 == 0 {
		if errno, ok := err.(syscall.Errno); ok && errno == 33 {
			return fmt.Errorf("flock %s: %w", f.Name(), ErrDatabaseLocked)
		}
		return err
	}
	return nil
}

// UnlockFile releases the lock acquired by LockFile.
func UnlockFile(f *os.File) error {
	var overlapped syscall.Overlapped
	r1, _, err := procUnlockFileEx.Call(uintptr(f.Fd()), 0, 1, 0, uintptr(unsafe.Pointer(&overlapped)))
	if r1 == 0 {
		return err
	}
	return nil
}
