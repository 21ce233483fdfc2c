// internal/storage/allocator_test.go
package storage

import (
	"errors"
	"testing"
)

func TestFreeListAllocatorReusesInReverseFreeOrder(t *testing.T) {
	const pageSize = 100
	a := NewFreeListAllocator(pageSize, 0)

	var allocated []Position
	for i := 0; i < 10; i++ {
		p, err := a.Alloc()
		if err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
		allocated = append(allocated, p)
	}

	freed := []Position{0, 2 * pageSize, 4 * pageSize, 6 * pageSize, 8 * pageSize}
	for _, p := range freed {
		if err := a.Free(p); err != nil {
			t.Fatalf("free %v: %v", p, err)
		}
	}

	want := []Position{8 * pageSize, 6 * pageSize, 4 * pageSize, 2 * pageSize, 0}
	for i, w := range want {
		got, err := a.Alloc()
		if err != nil {
			t.Fatalf("alloc after free %d: %v", i, err)
		}
		if got != w {
			t.Fatalf("alloc %d = %v, want %v", i, got, w)
		}
	}

	// The freelist is exhausted; the next alloc must resume past the
	// highest position ever handed out.
	got, err := a.Alloc()
	if err != nil {
		t.Fatalf("alloc past freelist: %v", err)
	}
	if got != allocated[len(allocated)-1]+pageSize {
		t.Fatalf("alloc past freelist = %v, want %v", got, allocated[len(allocated)-1]+pageSize)
	}
}

func TestStackAllocatorFreeAlwaysFails(t *testing.T) {
	a := NewStackAllocator(64)
	p, err := a.Alloc()
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if err := a.Free(p); !errors.Is(err, ErrBadAlloc) {
		t.Fatalf("free = %v, want ErrBadAlloc", err)
	}
}

func TestStackAllocatorMonotonic(t *testing.T) {
	a := NewStackAllocator(64)
	var prev Position = -64
	for i := 0; i < 20; i++ {
		p, err := a.Alloc()
		if err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
		if p != prev+64 {
			t.Fatalf("alloc %d = %v, want %v", i, p, prev+64)
		}
		prev = p
	}
}

func TestFreeListAllocatorEncodeDecodeRoundTrip(t *testing.T) {
	a := NewFreeListAllocator(128, 0)
	for i := 0; i < 5; i++ {
		if _, err := a.Alloc(); err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
	}
	if err := a.Free(Position(128)); err != nil {
		t.Fatalf("free: %v", err)
	}
	if err := a.Free(Position(0)); err != nil {
		t.Fatalf("free: %v", err)
	}

	data := a.Encode()
	b := NewFreeListAllocator(128, 0)
	if err := b.Decode(data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Next() != a.Next() {
		t.Fatalf("next = %v, want %v", b.Next(), a.Next())
	}
	if len(b.Freelist()) != len(a.Freelist()) {
		t.Fatalf("freelist length = %d, want %d", len(b.Freelist()), len(a.Freelist()))
	}
	for i, p := range a.Freelist() {
		if b.Freelist()[i] != p {
			t.Fatalf("freelist[%d] = %v, want %v", i, b.Freelist()[i], p)
		}
	}
}

func TestStackAllocatorEncodeDecodeRoundTrip(t *testing.T) {
	a := NewStackAllocator(64)
	for i := 0; i < 7; i++ {
		if _, err := a.Alloc(); err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
	}
	data := a.Encode()
	b := NewStackAllocator(64)
	if err := b.Decode(data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Cursor() != a.Cursor() {
		t.Fatalf("cursor = %v, want %v", b.Cursor(), a.Cursor())
	}
}
