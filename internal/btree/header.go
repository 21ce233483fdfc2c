// internal/btree/header.go
package btree

import (
	"encoding/binary"
	"fmt"
	"os"

	"bptreekv/internal/storage"
)

// magic identifies a header file as belonging to this engine; carried over
// from original_source's Btree::Header::MAGIC (0xB75EEA41) so a file
// produced by either implementation is recognizably the same format.
const magic uint32 = 0xB75EEA41

// Header is the small persistent record a tree keeps alongside its page
// file: where the root lives, how big the tree is, and the configuration
// it was opened with. Grounded on original_source's
// Btree<Config>::Header (src/core/storage/btree/Btree.h), re-expressed as
// a flat binary record instead of a nop-serialized struct since this
// engine has no equivalent reflection-based serializer in its dependency
// stack.
type Header struct {
	Magic            uint32
	PageSize         uint32
	PageCacheSize    uint32
	ApplyCompression bool
	RelaxedRemoves   bool
	DynamicEntries   bool
	AllocatorKind    byte // 0 = freelist, 1 = stack
	RootPos          storage.Position
	Size             uint64
	Depth            uint64
	ContentFile      string
}

// headerFixedSize is every field except the variable-length content file
// name: magic(4) + pageSize(4) + cacheSize(4) + flags(1) + allocatorKind(1)
// + rootPos(8) + size(8) + depth(8) + nameLen(4).
const headerFixedSize = 42

// Encode serializes h to bytes.
func (h *Header) Encode() []byte {
	name := []byte(h.ContentFile)
	buf := make([]byte, headerFixedSize+len(name))
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], h.PageSize)
	binary.LittleEndian.PutUint32(buf[8:], h.PageCacheSize)
	var flags byte
	if h.ApplyCompression {
		flags |= 0x01
	}
	if h.RelaxedRemoves {
		flags |= 0x02
	}
	if h.DynamicEntries {
		flags |= 0x04
	}
	buf[12] = flags
	buf[13] = h.AllocatorKind
	binary.LittleEndian.PutUint64(buf[14:], uint64(h.RootPos))
	binary.LittleEndian.PutUint64(buf[22:], h.Size)
	binary.LittleEndian.PutUint64(buf[30:], h.Depth)
	binary.LittleEndian.PutUint32(buf[38:], uint32(len(name)))
	copy(buf[headerFixedSize:], name)
	return buf
}

// DecodeHeader parses bytes previously produced by Encode, validating the
// magic number and, if expectedPageSize is nonzero, that the page size
// matches what the caller is about to open the tree with.
func DecodeHeader(data []byte, expectedPageSize uint32) (*Header, error) {
	if len(data) < headerFixedSize {
		return nil, fmt.Errorf("header truncated: %w", storage.ErrHeaderMismatch)
	}
	h := &Header{}
	h.Magic = binary.LittleEndian.Uint32(data[0:])
	if h.Magic != magic {
		return nil, fmt.Errorf("bad magic %#x: %w", h.Magic, storage.ErrHeaderMismatch)
	}
	h.PageSize = binary.LittleEndian.Uint32(data[4:])
	if expectedPageSize != 0 && h.PageSize != expectedPageSize {
		return nil, fmt.Errorf("page size %d != expected %d: %w", h.PageSize, expectedPageSize, storage.ErrHeaderMismatch)
	}
	h.PageCacheSize = binary.LittleEndian.Uint32(data[8:])
	flags := data[12]
	h.ApplyCompression = flags&0x01 != 0
	h.RelaxedRemoves = flags&0x02 != 0
	h.DynamicEntries = flags&0x04 != 0
	h.AllocatorKind = data[13]
	h.RootPos = storage.Position(binary.LittleEndian.Uint64(data[14:]))
	h.Size = binary.LittleEndian.Uint64(data[22:])
	h.Depth = binary.LittleEndian.Uint64(data[30:])
	nameLen := binary.LittleEndian.Uint32(data[38:])
	if uint32(len(data)) < headerFixedSize+nameLen {
		return nil, fmt.Errorf("header truncated: %w", storage.ErrHeaderMismatch)
	}
	h.ContentFile = string(data[headerFixedSize : headerFixedSize+nameLen])
	return h, nil
}

// SaveHeader writes h to path, truncating any existing contents.
func SaveHeader(path string, h *Header) error {
	if err := os.WriteFile(path, h.Encode(), 0o644); err != nil {
		return fmt.Errorf("save header: %w", storage.ErrBadWrite)
	}
	return nil
}

// LoadHeader reads and validates the header at path.
func LoadHeader(path string, expectedPageSize uint32) (*Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load header: %w", storage.ErrBadRead)
	}
	return DecodeHeader(data, expectedPageSize)
}
