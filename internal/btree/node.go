// internal/btree/node.go
package btree

import (
	"fmt"

	"bptreekv/internal/encoding"
	"bptreekv/internal/storage"
)

// Kind tags which variant a Node page holds.
type Kind uint8

const (
	// KindLeaf nodes store keys paired with values (or value references).
	KindLeaf Kind = iota
	// KindBranch nodes store separator keys and child positions, one more
	// child than separator.
	KindBranch
)

// nodeHeaderSize is the fixed prefix every encoded node reserves before its
// entry data: kind (1) + parent position (8) + prev sibling (8) + next
// sibling (8) + entry count (4).
const nodeHeaderSize = 29

// Node is an in-memory decoding of one page's worth of tree structure.
// Unlike tur/pkg/btree.Node, which mutates a SQLite-style cell-pointer page
// in place, a Node here is decoded into plain slices and re-encoded whole on
// every write, the way original_source's Btree<Config> serializes its
// Metadata/Leaf/Branch structs as a unit (src/core/storage/btree/Btree.h,
// Node.h). That trades incremental cell maintenance for the much simpler
// invariant this engine needs: a node's in-memory shape is always exactly
// what a fresh Decode would produce, so split/merge/rebalance never has to
// reason about page fragmentation. Variable-length keys and values are
// framed with tur/internal/encoding's varint length prefixes.
type Node struct {
	Kind   Kind
	Parent storage.Position

	// Leaf-only.
	Prev, Next storage.Position
	Keys       [][]byte
	Vals       [][]byte

	// Branch-only. len(Children) == len(Keys)+1.
	Children []storage.Position
}

// NewLeaf returns an empty leaf node with no siblings or parent set.
func NewLeaf() *Node {
	return &Node{Kind: KindLeaf, Parent: storage.Poison, Prev: storage.Poison, Next: storage.Poison}
}

// NewBranch returns a branch node with the given separator keys and
// children; len(children) must equal len(keys)+1.
func NewBranch(keys [][]byte, children []storage.Position) *Node {
	return &Node{Kind: KindBranch, Parent: storage.Poison, Keys: keys, Children: children}
}

// IsLeaf reports whether n is a leaf node.
func (n *Node) IsLeaf() bool { return n.Kind == KindLeaf }

// NumEntries returns the number of keys held (records in a leaf, separators
// in a branch).
func (n *Node) NumEntries() int { return len(n.Keys) }

// Encode serializes n into a buffer of exactly pageSize bytes. It returns an
// error wrapping ErrBadWrite if the encoded entries do not fit.
func (n *Node) Encode(pageSize int) ([]byte, error) {
	buf := make([]byte, pageSize)

	if n.Kind == KindLeaf {
		buf[0] = byte(KindLeaf)
	} else {
		buf[0] = byte(KindBranch)
	}
	putPosition(buf[1:], n.Parent)
	putPosition(buf[9:], n.Prev)
	putPosition(buf[17:], n.Next)

	off := nodeHeaderSize
	count := len(n.Keys)

	write := func(b []byte) error {
		need := encoding.VarintLen(uint64(len(b))) + len(b)
		if off+need > pageSize {
			return fmt.Errorf("node encode: entries do not fit in page: %w", storage.ErrBadWrite)
		}
		off += encoding.PutVarint(buf[off:], uint64(len(b)))
		copy(buf[off:], b)
		off += len(b)
		return nil
	}

	putUint32(buf[25:], uint32(count))

	for i := 0; i < count; i++ {
		if err := write(n.Keys[i]); err != nil {
			return nil, err
		}
		if n.Kind == KindLeaf {
			if err := write(n.Vals[i]); err != nil {
				return nil, err
			}
		}
	}
	if n.Kind == KindBranch {
		for _, child := range n.Children {
			if off+8 > pageSize {
				return nil, fmt.Errorf("node encode: children do not fit in page: %w", storage.ErrBadWrite)
			}
			putPosition(buf[off:], child)
			off += 8
		}
	}

	return buf, nil
}

// DecodeNode parses a page previously produced by Encode.
func DecodeNode(data []byte) (*Node, error) {
	if len(data) < nodeHeaderSize {
		return nil, fmt.Errorf("node decode: page too small: %w", storage.ErrBadRead)
	}
	n := &Node{Kind: Kind(data[0])}
	n.Parent = getPosition(data[1:])
	n.Prev = getPosition(data[9:])
	n.Next = getPosition(data[17:])
	count := int(getUint32(data[25:]))

	off := nodeHeaderSize
	read := func() ([]byte, error) {
		if off >= len(data) {
			return nil, fmt.Errorf("node decode: truncated entry: %w", storage.ErrBadRead)
		}
		l, sz := encoding.GetVarint(data[off:])
		off += sz
		if off+int(l) > len(data) {
			return nil, fmt.Errorf("node decode: truncated entry: %w", storage.ErrBadRead)
		}
		b := make([]byte, l)
		copy(b, data[off:off+int(l)])
		off += int(l)
		return b, nil
	}

	n.Keys = make([][]byte, count)
	if n.Kind == KindLeaf {
		n.Vals = make([][]byte, count)
	}
	for i := 0; i < count; i++ {
		k, err := read()
		if err != nil {
			return nil, err
		}
		n.Keys[i] = k
		if n.Kind == KindLeaf {
			v, err := read()
			if err != nil {
				return nil, err
			}
			n.Vals[i] = v
		}
	}
	if n.Kind == KindBranch {
		n.Children = make([]storage.Position, count+1)
		for i := range n.Children {
			if off+8 > len(data) {
				return nil, fmt.Errorf("node decode: truncated children: %w", storage.ErrBadRead)
			}
			n.Children[i] = getPosition(data[off:])
			off += 8
		}
	}
	return n, nil
}

func putPosition(b []byte, p storage.Position) { putUint64(b, uint64(p)) }
func getPosition(b []byte) storage.Position    { return storage.Position(getUint64(b)) }

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
func putUint32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
func getUint32(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(b[i]) << (8 * i)
	}
	return v
}
