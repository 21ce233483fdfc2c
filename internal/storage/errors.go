// internal/storage/errors.go
package storage

import "errors"

// Error kinds surfaced by the storage and btree layers. Most failure paths
// return one of these, wrapped with fmt.Errorf("...: %w", ErrX) where extra
// context helps; failures to open, sync or lock a file are returned as the
// underlying OS error. Nothing is swallowed and nothing is retried
// internally.
var (
	// ErrBadRead covers reads past end of file, malformed serialized
	// payloads, and missing slots.
	ErrBadRead = errors.New("bad read")

	// ErrBadWrite covers serializer refusals and underlying file write
	// failures.
	ErrBadWrite = errors.New("bad write")

	// ErrBadAlloc covers allocator exhaustion and unsupported free.
	ErrBadAlloc = errors.New("bad alloc")

	// ErrBadIndVector covers an indirection vector found inconsistent on
	// load.
	ErrBadIndVector = errors.New("bad indirection vector")

	// ErrHeaderMismatch covers magic or page-size mismatch on load.
	ErrHeaderMismatch = errors.New("header mismatch")

	// ErrInsertedNothing reports that insert found the key already
	// present and left the tree untouched.
	ErrInsertedNothing = errors.New("inserted nothing")

	// ErrRemovedNothing reports that remove found no matching key.
	ErrRemovedNothing = errors.New("removed nothing")

	// ErrNoSuchEntry reports that update found no matching key.
	ErrNoSuchEntry = errors.New("no such entry")

	// ErrDatabaseLocked reports that another process already holds the
	// advisory single-writer lock on this database's files.
	ErrDatabaseLocked = errors.New("database locked by another process")
)
