// internal/indirect/vector.go
package indirect

import (
	"encoding/binary"
	"fmt"
	"os"

	"bptreekv/internal/storage"
)

// Slot records where one value lives in the content heap.
type Slot struct {
	Pos  int64
	Size int64
}

// SlotID is the index of a Slot; also what a leaf value in the tree holds
// in place of the value itself, when a tree is configured to store
// variable-sized payloads out of line.
type SlotID uint64

// Vector maps slot IDs to variable-sized byte payloads stored in a
// storage.InnerHeap. Removing a slot shifts every later slot's ID down by
// one -- no tombstones -- exactly matching original_source's
// IndirectionVector::remove_slot, which erases the slot from its backing
// std::vector outright rather than leaving a hole. That means a caller
// that stores a SlotID inside tree values (the usual use) must update
// every stored SlotID >= n after a remove; Vector reports the shifted IDs
// so the caller (the kv façade) can do that.
type Vector struct {
	heap       *storage.InnerHeap
	slots      []Slot
	headerPath string
}

// Open opens or creates a Vector backed by heapPath for payload storage and
// headerPath for the slot table.
func Open(heapPath, headerPath string) (*Vector, error) {
	heap, err := storage.OpenInnerHeap(heapPath)
	if err != nil {
		return nil, err
	}
	return &Vector{heap: heap, headerPath: headerPath}, nil
}

// Close closes the backing heap file.
func (v *Vector) Close() error { return v.heap.Close() }

// Len returns the number of slots currently allocated.
func (v *Vector) Len() int { return len(v.slots) }

// Get returns the payload stored at slot id.
func (v *Vector) Get(id SlotID) ([]byte, error) {
	if uint64(id) >= uint64(len(v.slots)) {
		return nil, fmt.Errorf("slot %d out of bounds: %w", id, storage.ErrBadIndVector)
	}
	slot := v.slots[id]
	return v.heap.ReadAt(slot.Pos, slot.Size)
}

// Set allocates a fresh slot holding val and returns its id.
func (v *Vector) Set(val []byte) (SlotID, error) {
	pos, err := v.heap.Alloc(int64(len(val)))
	if err != nil {
		return 0, err
	}
	if err := v.heap.WriteAt(pos, val); err != nil {
		return 0, err
	}
	v.slots = append(v.slots, Slot{Pos: pos, Size: int64(len(val))})
	return SlotID(len(v.slots) - 1), nil
}

// Replace overwrites the payload at slot id, freeing its old storage and
// allocating fresh storage for the new value (the heap is growth-only per
// range, so an in-place grow is not attempted even when the new value is
// smaller).
func (v *Vector) Replace(id SlotID, val []byte) error {
	if uint64(id) >= uint64(len(v.slots)) {
		return fmt.Errorf("slot %d out of bounds: %w", id, storage.ErrBadIndVector)
	}
	old := v.slots[id]
	newPos, err := v.heap.Alloc(int64(len(val)))
	if err != nil {
		return err
	}
	if err := v.heap.Free(old.Pos, old.Size); err != nil {
		return err
	}
	if err := v.heap.WriteAt(newPos, val); err != nil {
		return err
	}
	v.slots[id] = Slot{Pos: newPos, Size: int64(len(val))}
	return nil
}

// Remove frees the storage behind slot id and deletes it from the slot
// table, shifting every later slot down by one ID. It returns the list of
// slot IDs that moved, in their new order, so a caller indexing into the
// vector by ID (such values embedded in tree leaves) can renumber them.
func (v *Vector) Remove(id SlotID) ([]SlotID, error) {
	if uint64(id) >= uint64(len(v.slots)) {
		return nil, fmt.Errorf("slot %d out of bounds: %w", id, storage.ErrBadIndVector)
	}
	slot := v.slots[id]
	if err := v.heap.Free(slot.Pos, slot.Size); err != nil {
		return nil, err
	}
	v.slots = append(v.slots[:id], v.slots[id+1:]...)

	shifted := make([]SlotID, 0, len(v.slots)-int(id))
	for i := id; i < SlotID(len(v.slots)); i++ {
		shifted = append(shifted, i)
	}
	return shifted, nil
}

// Save persists the slot table and the backing heap's allocator state.
func (v *Vector) Save() error {
	if err := v.heap.Sync(); err != nil {
		return err
	}
	buf := make([]byte, 4+16*len(v.slots))
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(v.slots)))
	for i, s := range v.slots {
		binary.LittleEndian.PutUint64(buf[4+16*i:], uint64(s.Pos))
		binary.LittleEndian.PutUint64(buf[4+16*i+8:], uint64(s.Size))
	}
	if err := os.WriteFile(v.headerPath, buf, 0o644); err != nil {
		return fmt.Errorf("save indirection vector: %w", storage.ErrBadWrite)
	}

	heapState := v.heap.Encode()
	return os.WriteFile(v.headerPath+".heap", heapState, 0o644)
}

// Load restores the slot table and heap allocator state previously written
// by Save.
func (v *Vector) Load() error {
	buf, err := os.ReadFile(v.headerPath)
	if err != nil {
		return fmt.Errorf("load indirection vector: %w", storage.ErrBadRead)
	}
	if len(buf) < 4 {
		return fmt.Errorf("indirection vector header truncated: %w", storage.ErrBadIndVector)
	}
	n := binary.LittleEndian.Uint32(buf[0:])
	if uint32(len(buf)) < 4+16*n {
		return fmt.Errorf("indirection vector header truncated: %w", storage.ErrBadIndVector)
	}
	v.slots = make([]Slot, n)
	for i := range v.slots {
		v.slots[i] = Slot{
			Pos:  int64(binary.LittleEndian.Uint64(buf[4+16*i:])),
			Size: int64(binary.LittleEndian.Uint64(buf[4+16*i+8:])),
		}
	}

	heapState, err := os.ReadFile(v.headerPath + ".heap")
	if err != nil {
		return fmt.Errorf("load indirection vector heap state: %w", storage.ErrBadRead)
	}
	return v.heap.Decode(heapState)
}
