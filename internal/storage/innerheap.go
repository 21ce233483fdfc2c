// internal/storage/innerheap.go
package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"
)

// innerAlign is the byte alignment every inner allocation is rounded up to.
const innerAlign = 4

// InnerHeap is a growth-only byte-range allocator over a single file,
// reserving PageHeaderSize bytes at the front before the first allocation.
// It backs variable-sized payloads (indirection vector entries) the way
// original_source's Pager::alloc_inner/free_inner do: a monotonically
// advancing high-water mark, with freed ranges coalesced into a sorted
// freelist and reused by a first-fit search before the mark is advanced
// again. original_source's own tests only exercise the growth path (the
// free_inner assertions are commented out), so the reuse and coalescing
// behavior here is this engine's own completion of that design, chosen
// over a log-structured always-append heap because the teacher's
// freelist-trunk allocator (tur/pkg/pager/freelist.go) already establishes
// the idiom of reusing freed ranges rather than leaking them.
type InnerHeap struct {
	file   *os.File
	cursor int64
	maxUse int64
	free   []freeRange
}

type freeRange struct {
	offset int64
	size   int64
}

// OpenInnerHeap opens or creates path as a content heap.
func OpenInnerHeap(path string) (*InnerHeap, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open content heap %s: %w", path, err)
	}
	return &InnerHeap{file: f, cursor: PageHeaderSize, maxUse: PageHeaderSize}, nil
}

// Close closes the underlying file.
func (h *InnerHeap) Close() error { return h.file.Close() }

// MaxBytesUsed returns the high-water mark of bytes ever in use, including
// the reserved header.
func (h *InnerHeap) MaxBytesUsed() int64 { return h.maxUse }

func align(n int64) int64 {
	if r := n % innerAlign; r != 0 {
		n += innerAlign - r
	}
	return n
}

// Alloc reserves size bytes and returns their starting offset, reusing a
// freed range by first fit when one is large enough before growing the
// heap. Reused ranges larger than requested are split, with the remainder
// kept free.
func (h *InnerHeap) Alloc(size int64) (int64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("alloc_inner of non-positive size: %w", ErrBadAlloc)
	}
	size = align(size)

	for i, r := range h.free {
		if r.size < size {
			continue
		}
		offset := r.offset
		if r.size == size {
			h.free = append(h.free[:i], h.free[i+1:]...)
		} else {
			h.free[i] = freeRange{offset: r.offset + size, size: r.size - size}
		}
		return offset, nil
	}

	offset := h.cursor
	h.cursor += size
	if h.cursor > h.maxUse {
		h.maxUse = h.cursor
	}
	return offset, nil
}

// Free releases the size bytes starting at offset, coalescing with any
// adjacent free ranges so fragmentation does not accumulate across a long
// sequence of allocs and frees.
func (h *InnerHeap) Free(offset, size int64) error {
	if size <= 0 {
		return fmt.Errorf("free_inner of non-positive size: %w", ErrBadAlloc)
	}
	size = align(size)

	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].offset >= offset })
	h.free = append(h.free, freeRange{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = freeRange{offset: offset, size: size}

	// Merge with the following range first so index i stays valid, then
	// with the preceding one.
	if i+1 < len(h.free) && h.free[i].offset+h.free[i].size == h.free[i+1].offset {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].offset+h.free[i-1].size == h.free[i].offset {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
	return nil
}

// ReadAt reads n bytes at offset.
func (h *InnerHeap) ReadAt(offset, n int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := h.file.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("read content heap at %d: %w", offset, ErrBadRead)
	}
	return buf, nil
}

// WriteAt writes data at offset.
func (h *InnerHeap) WriteAt(offset int64, data []byte) error {
	if _, err := h.file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("write content heap at %d: %w", offset, ErrBadWrite)
	}
	return nil
}

// Sync fsyncs the underlying file.
func (h *InnerHeap) Sync() error { return h.file.Sync() }

// Encode serializes cursor, high-water mark, and free ranges for
// persistence alongside a tree Header.
func (h *InnerHeap) Encode() []byte {
	buf := make([]byte, 24+16*len(h.free))
	binary.LittleEndian.PutUint64(buf[0:], uint64(h.cursor))
	binary.LittleEndian.PutUint64(buf[8:], uint64(h.maxUse))
	binary.LittleEndian.PutUint64(buf[16:], uint64(len(h.free)))
	for i, r := range h.free {
		binary.LittleEndian.PutUint64(buf[24+16*i:], uint64(r.offset))
		binary.LittleEndian.PutUint64(buf[24+16*i+8:], uint64(r.size))
	}
	return buf
}

// Decode restores state previously produced by Encode.
func (h *InnerHeap) Decode(data []byte) error {
	if len(data) < 24 {
		return fmt.Errorf("content heap state truncated: %w", ErrBadRead)
	}
	h.cursor = int64(binary.LittleEndian.Uint64(data[0:]))
	h.maxUse = int64(binary.LittleEndian.Uint64(data[8:]))
	n := binary.LittleEndian.Uint64(data[16:])
	if uint64(len(data)) < 24+16*n {
		return fmt.Errorf("content heap state truncated: %w", ErrBadRead)
	}
	h.free = make([]freeRange, n)
	for i := range h.free {
		h.free[i] = freeRange{
			offset: int64(binary.LittleEndian.Uint64(data[24+16*i:])),
			size:   int64(binary.LittleEndian.Uint64(data[24+16*i+8:])),
		}
	}
	return nil
}
