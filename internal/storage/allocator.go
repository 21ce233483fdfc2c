// internal/storage/allocator.go
package storage

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Allocator hands out whole-page Positions and reclaims them. A page size is
// fixed at construction; every Alloc advances in units of that size. Encode
// and Decode round-trip the allocator's state (Pager.Save and Pager.Load keep
// it in a sidecar file) so a reopened database resumes handing out the same positions it would have
// had it never closed, grounded on tur/pkg/pager.Pager's own free-list
// persistence and original_source's Pager_test.cpp "Persistent pager" cases.
type Allocator interface {
	// Alloc returns a fresh Position, or an error wrapping ErrBadAlloc if
	// none remain.
	Alloc() (Position, error)

	// Free returns pos to the allocator. Some variants (Stack) never
	// support reuse and always fail with ErrBadAlloc.
	Free(pos Position) error

	// Encode serializes the allocator's state into a byte slice suitable
	// for storing in a single page's inner region.
	Encode() []byte

	// Decode restores the allocator's state from bytes previously produced
	// by Encode.
	Decode(data []byte) error
}

// StackAllocator is a monotonic bump allocator: Alloc always returns the
// current cursor and advances it by one page, Free always fails. Grounded on
// original_source's StackSpaceAllocator (src/core/storage/Pager.h), which
// never reclaims a freed page either.
type StackAllocator struct {
	pageSize int64
	cursor   Position
}

// NewStackAllocator returns a StackAllocator starting at position 0.
func NewStackAllocator(pageSize int64) *StackAllocator {
	return &StackAllocator{pageSize: pageSize}
}

// Cursor returns the next position Alloc would return.
func (a *StackAllocator) Cursor() Position { return a.cursor }

func (a *StackAllocator) Alloc() (Position, error) {
	p := a.cursor
	a.cursor += Position(a.pageSize)
	return p, nil
}

func (a *StackAllocator) Free(pos Position) error {
	return fmt.Errorf("stack allocator does not support free: %w", ErrBadAlloc)
}

func (a *StackAllocator) Encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(a.cursor))
	return buf
}

func (a *StackAllocator) Decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("stack allocator state truncated: %w", ErrBadRead)
	}
	a.cursor = Position(binary.LittleEndian.Uint64(data))
	return nil
}

// FreeListAllocator hands out pages from a sorted-descending free list
// before falling back to a monotonically advancing cursor, with an optional
// soft limit on the number of pages ever handed out. Freed positions are
// kept sorted descending and handed back out highest first, so pages freed
// in ascending order are reused most recently freed first, matching original_source's std::vector<Position> freelist kept sorted in
// descending order (Pager_test.cpp "Page free list"). Grounded structurally
// on tur/pkg/pager/freelist.go, adapted from page-numbers to Positions and
// from a trunk-page on-disk format to a single encoded blob the Pager
// writes to a sidecar file.
type FreeListAllocator struct {
	pageSize int64
	next     Position
	limit    int64 // 0 means unlimited
	freelist []Position
}

// NewFreeListAllocator returns an empty FreeListAllocator. limit is the
// maximum number of distinct pages it will ever hand out (0 = unlimited).
func NewFreeListAllocator(pageSize int64, limit int64) *FreeListAllocator {
	return &FreeListAllocator{pageSize: pageSize, limit: limit}
}

// Next returns the first never-yet-allocated position.
func (a *FreeListAllocator) Next() Position { return a.next }

// Limit returns the configured soft limit (0 = unlimited).
func (a *FreeListAllocator) Limit() int64 { return a.limit }

// Freelist returns the current free positions, sorted descending (highest
// first), the same order Alloc will hand them back out in.
func (a *FreeListAllocator) Freelist() []Position {
	out := make([]Position, len(a.freelist))
	copy(out, a.freelist)
	return out
}

func (a *FreeListAllocator) Alloc() (Position, error) {
	if len(a.freelist) > 0 {
		p := a.freelist[0]
		a.freelist = a.freelist[1:]
		return p, nil
	}
	if a.limit > 0 && int64(a.next)/a.pageSize >= a.limit {
		return Poison, fmt.Errorf("allocator limit reached: %w", ErrBadAlloc)
	}
	p := a.next
	a.next += Position(a.pageSize)
	return p, nil
}

func (a *FreeListAllocator) Free(pos Position) error {
	i := sort.Search(len(a.freelist), func(i int) bool { return a.freelist[i] <= pos })
	a.freelist = append(a.freelist, 0)
	copy(a.freelist[i+1:], a.freelist[i:])
	a.freelist[i] = pos
	return nil
}

func (a *FreeListAllocator) Encode() []byte {
	buf := make([]byte, 16+8*len(a.freelist))
	binary.LittleEndian.PutUint64(buf[0:], uint64(a.next))
	binary.LittleEndian.PutUint64(buf[8:], uint64(len(a.freelist)))
	for i, p := range a.freelist {
		binary.LittleEndian.PutUint64(buf[16+8*i:], uint64(p))
	}
	return buf
}

func (a *FreeListAllocator) Decode(data []byte) error {
	if len(data) < 16 {
		return fmt.Errorf("freelist allocator state truncated: %w", ErrBadRead)
	}
	a.next = Position(binary.LittleEndian.Uint64(data[0:]))
	n := binary.LittleEndian.Uint64(data[8:])
	if uint64(len(data)) < 16+8*n {
		return fmt.Errorf("freelist allocator state truncated: %w", ErrBadRead)
	}
	a.freelist = make([]Position, n)
	for i := range a.freelist {
		a.freelist[i] = Position(binary.LittleEndian.Uint64(data[16+8*i:]))
	}
	return nil
}
