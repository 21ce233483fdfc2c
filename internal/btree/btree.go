// internal/btree/btree.go
package btree

import (
	"bytes"
	"fmt"

	"bptreekv/internal/storage"
)

// Compare orders two keys the way bytes.Compare does: negative if a<b, zero
// if equal, positive if a>b. The default is plain byte-lexicographic order;
// a tree can be given any total order over its key encoding instead.
type Compare func(a, b []byte) int

// Options configures a Tree at Open time.
type Options struct {
	// PageSize is the fixed page size in bytes. Must match the page size
	// the pager was opened with.
	PageSize int

	// RelaxedRemoves, when true, removes a key from its leaf without
	// borrowing or merging to fix underfull nodes afterward -- a
	// deliberately incomplete delete matching what both reference
	// sources left unfinished (original_source's erase() is a stub;
	// tur/pkg/btree has no merge path either). Defaults to false here:
	// a prototype key-value engine that silently degrades query-time
	// fanout after every delete is a worse default than paying for
	// rebalancing up front.
	RelaxedRemoves bool

	// Compare orders keys. Defaults to byte-lexicographic order.
	Compare Compare

	// MaxLeafRecords and MaxBranchRecords cap how many entries a leaf or
	// branch node may hold. Zero means "compute from PageSize" using
	// CalcMaxLeafRecords/CalcMaxBranchLinks with an assumed average
	// record size, then clamp with ClampFanout.
	MaxLeafRecords   int
	MaxBranchRecords int

	// PageCacheSize, ApplyCompression, DynamicEntries and AllocatorKind are
	// recorded in the persistent Header verbatim but not otherwise
	// interpreted by Tree itself; the kv façade (which owns the pager's
	// cache and, when DynamicEntries is set, an indirection vector) is what
	// gives them behavior. They live here so Create has one place to stamp
	// them into the Header it writes.
	PageCacheSize    int
	ApplyCompression bool
	DynamicEntries   bool
	AllocatorKind    byte
}

// defaultSampleSize is the key/value size CalcMaxLeafRecords /
// CalcMaxBranchLinks assume when Options leaves the fanout to be computed,
// matching neither reference exactly (both assume a fixed Config::Key type)
// but giving a plausible fixed-size key/value tree a sane default.
const defaultSampleSize = 16

// Tree is a disk-resident B+ tree over byte-slice keys and values. Keys are
// always stored inline; values may be raw bytes, a compressed blob, or an
// indirection-vector slot reference, depending on what the caller
// (the kv façade) encodes into Vals before calling Insert.
//
// Grounded on original_source's Btree<Config> (src/core/storage/btree/
// Btree.h) for the preemptive-split descent discipline and on
// tur/pkg/btree for the Go package shape (Options, sentinel errors,
// table-driven tests), reconciled with a from-scratch split/merge
// implementation where both reference sources were themselves incomplete:
// original_source's Node::split promotes the wrong element for a leaf
// (the last key of the right half rather than the first) and never
// resizes the source vector it split from, and its erase() is an explicit
// stub; tur/pkg/btree has no node-merge path either. This Tree implements
// the conventional B+ tree discipline instead: leaf splits copy the
// separator up while keeping it in the right leaf, branch splits move the
// separator up and remove it from both sides, and remove borrows from a
// sibling before merging.
type Tree struct {
	pager      *storage.Pager
	header     *Header
	headerPath string
	compare    Compare
	maxLeaf    int
	maxBranch  int
	dirty      bool
}

// Create initializes a brand-new tree: a single empty leaf root, and a
// header written to headerPath.
func Create(pager *storage.Pager, headerPath string, contentFile string, opts Options) (*Tree, error) {
	t, err := newTree(pager, headerPath, opts)
	if err != nil {
		return nil, err
	}

	rootPos, err := pager.Alloc()
	if err != nil {
		return nil, err
	}
	if err := t.saveNode(rootPos, NewLeaf()); err != nil {
		return nil, err
	}

	t.header = &Header{
		Magic:            magic,
		PageSize:         uint32(opts.PageSize),
		PageCacheSize:    uint32(opts.PageCacheSize),
		ApplyCompression: opts.ApplyCompression,
		RelaxedRemoves:   opts.RelaxedRemoves,
		DynamicEntries:   opts.DynamicEntries,
		AllocatorKind:    opts.AllocatorKind,
		RootPos:          rootPos,
		ContentFile:      contentFile,
	}
	if err := SaveHeader(headerPath, t.header); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reopens a tree previously created by Create, validating the stored
// header against pageSize.
func Load(pager *storage.Pager, headerPath string, opts Options) (*Tree, error) {
	t, err := newTree(pager, headerPath, opts)
	if err != nil {
		return nil, err
	}
	h, err := LoadHeader(headerPath, uint32(opts.PageSize))
	if err != nil {
		return nil, err
	}
	t.header = h
	return t, nil
}

func newTree(pager *storage.Pager, headerPath string, opts Options) (*Tree, error) {
	cmp := opts.Compare
	if cmp == nil {
		cmp = bytes.Compare
	}

	maxLeaf := opts.MaxLeafRecords
	maxBranch := opts.MaxBranchRecords
	if maxLeaf == 0 || maxBranch == 0 {
		leafCalc := CalcMaxLeafRecords(opts.PageSize, defaultSampleSize, defaultSampleSize)
		branchLinks := CalcMaxBranchLinks(opts.PageSize, defaultSampleSize)
		l, b := ClampFanout(leafCalc, branchLinks)
		if maxLeaf == 0 {
			maxLeaf = l
		}
		if maxBranch == 0 {
			maxBranch = b
		}
	}
	if maxLeaf < 2 || maxBranch < 2 {
		return nil, fmt.Errorf("page size %d too small for a usable fanout", opts.PageSize)
	}

	return &Tree{
		pager:      pager,
		headerPath: headerPath,
		compare:    cmp,
		maxLeaf:    maxLeaf,
		maxBranch:  maxBranch,
	}, nil
}

// Close persists the header (if dirty) and flushes the pager.
func (t *Tree) Close() error {
	if t.dirty {
		if err := SaveHeader(t.headerPath, t.header); err != nil {
			return err
		}
		t.dirty = false
	}
	return t.pager.Sync()
}

// Size returns the number of keys stored.
func (t *Tree) Size() uint64 { return t.header.Size }

// Depth returns the tree's current depth (0 for a single-leaf tree).
func (t *Tree) Depth() uint64 { return t.header.Depth }

// Empty reports whether the tree holds no keys.
func (t *Tree) Empty() bool { return t.header.Size == 0 }

func (t *Tree) markDirty() { t.dirty = true }

func (t *Tree) loadNode(pos storage.Position) (*Node, error) {
	page, err := t.pager.Get(pos)
	if err != nil {
		return nil, err
	}
	return DecodeNode(page.Bytes())
}

func (t *Tree) saveNode(pos storage.Position, n *Node) error {
	buf, err := n.Encode(int(t.pager.PageSize()))
	if err != nil {
		return err
	}
	return t.pager.Place(pos, storage.WrapPage(pos, buf))
}

func (t *Tree) isFull(n *Node) bool {
	if n.IsLeaf() {
		return len(n.Keys) >= t.maxLeaf
	}
	return len(n.Keys) >= t.maxBranch
}

// lowerBound returns the index of the first key >= target, i.e. the
// standard std::lower_bound used throughout original_source's descent.
func (t *Tree) lowerBound(keys [][]byte, target []byte) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.compare(keys[mid], target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Get returns the value stored for key.
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	pos := t.header.RootPos
	for {
		n, err := t.loadNode(pos)
		if err != nil {
			return nil, false, err
		}
		idx := t.lowerBound(n.Keys, key)
		if n.IsLeaf() {
			if idx < len(n.Keys) && t.compare(n.Keys[idx], key) == 0 {
				return n.Vals[idx], true, nil
			}
			return nil, false, nil
		}
		pos = n.Children[idx]
	}
}

// Contains reports whether key is present.
func (t *Tree) Contains(key []byte) (bool, error) {
	_, ok, err := t.Get(key)
	return ok, err
}

// Update replaces the value stored for an existing key. It returns
// ErrNoSuchEntry if key is absent.
func (t *Tree) Update(key, val []byte) error {
	pos := t.header.RootPos
	for {
		n, err := t.loadNode(pos)
		if err != nil {
			return err
		}
		idx := t.lowerBound(n.Keys, key)
		if n.IsLeaf() {
			if idx < len(n.Keys) && t.compare(n.Keys[idx], key) == 0 {
				n.Vals[idx] = val
				return t.saveNode(pos, n)
			}
			return storage.ErrNoSuchEntry
		}
		pos = n.Children[idx]
	}
}

// Insert adds key/val to the tree. It returns ErrInsertedNothing if key is
// already present, leaving the tree unmodified.
func (t *Tree) Insert(key, val []byte) error {
	rootPos := t.header.RootPos
	root, err := t.loadNode(rootPos)
	if err != nil {
		return err
	}

	if t.isFull(root) {
		rootPos, root, err = t.splitRoot(rootPos, root)
		if err != nil {
			return err
		}
	}

	currPos, curr := rootPos, root
	for {
		if curr.IsLeaf() {
			idx := t.lowerBound(curr.Keys, key)
			if idx < len(curr.Keys) && t.compare(curr.Keys[idx], key) == 0 {
				return storage.ErrInsertedNothing
			}
			curr.Keys = insertBytes(curr.Keys, idx, key)
			curr.Vals = insertBytes(curr.Vals, idx, val)
			if err := t.saveNode(currPos, curr); err != nil {
				return err
			}
			t.header.Size++
			t.markDirty()
			return nil
		}

		idx := t.lowerBound(curr.Keys, key)
		childPos := curr.Children[idx]
		child, err := t.loadNode(childPos)
		if err != nil {
			return err
		}

		if !t.isFull(child) {
			currPos, curr = childPos, child
			continue
		}

		midKey, siblingPos, err := t.splitChild(childPos, child)
		if err != nil {
			return err
		}
		curr.Keys = insertBytes(curr.Keys, idx, midKey)
		curr.Children = insertPosition(curr.Children, idx+1, siblingPos)
		if err := t.saveNode(childPos, child); err != nil {
			return err
		}
		if err := t.saveNode(currPos, curr); err != nil {
			return err
		}

		if t.compare(key, midKey) < 0 {
			currPos, curr = childPos, child
			continue
		}
		sibling, err := t.loadNode(siblingPos)
		if err != nil {
			return err
		}
		currPos, curr = siblingPos, sibling
	}
}

// splitChild splits child (currently stored at childPos) into two halves in
// place: child keeps the left half, and a freshly allocated sibling holds
// the right half. It returns the separator key to promote into the parent
// and the sibling's position.
func (t *Tree) splitChild(childPos storage.Position, child *Node) ([]byte, storage.Position, error) {
	if child.IsLeaf() {
		return t.splitLeaf(childPos, child)
	}
	return t.splitBranch(childPos, child)
}

func (t *Tree) splitLeaf(childPos storage.Position, child *Node) ([]byte, storage.Position, error) {
	mid := len(child.Keys) / 2

	sibling := NewLeaf()
	sibling.Keys = append([][]byte(nil), child.Keys[mid:]...)
	sibling.Vals = append([][]byte(nil), child.Vals[mid:]...)
	child.Keys = child.Keys[:mid]
	child.Vals = child.Vals[:mid]

	siblingPos, err := t.pager.Alloc()
	if err != nil {
		return nil, 0, err
	}

	sibling.Next = child.Next
	sibling.Prev = childPos
	if child.Next.IsSet() {
		nextNode, err := t.loadNode(child.Next)
		if err != nil {
			return nil, 0, err
		}
		nextNode.Prev = siblingPos
		if err := t.saveNode(child.Next, nextNode); err != nil {
			return nil, 0, err
		}
	}
	child.Next = siblingPos

	if err := t.saveNode(siblingPos, sibling); err != nil {
		return nil, 0, err
	}
	// copy-up: the separator is the right leaf's first key, and stays there.
	return sibling.Keys[0], siblingPos, nil
}

func (t *Tree) splitBranch(childPos storage.Position, child *Node) ([]byte, storage.Position, error) {
	mid := len(child.Keys) / 2
	midKey := child.Keys[mid]

	sibling := NewBranch(
		append([][]byte(nil), child.Keys[mid+1:]...),
		append([]storage.Position(nil), child.Children[mid+1:]...),
	)
	child.Keys = child.Keys[:mid]
	child.Children = child.Children[:mid+1]

	siblingPos, err := t.pager.Alloc()
	if err != nil {
		return nil, 0, err
	}
	if err := t.saveNode(siblingPos, sibling); err != nil {
		return nil, 0, err
	}
	// move-up: the separator is removed from both halves.
	return midKey, siblingPos, nil
}

// splitRoot handles the special case where the current root itself is full:
// a new root is allocated one level up, and the old root (kept at its
// existing position) becomes its left child.
func (t *Tree) splitRoot(rootPos storage.Position, root *Node) (storage.Position, *Node, error) {
	midKey, siblingPos, err := t.splitChild(rootPos, root)
	if err != nil {
		return 0, nil, err
	}
	if err := t.saveNode(rootPos, root); err != nil {
		return 0, nil, err
	}

	newRootPos, err := t.pager.Alloc()
	if err != nil {
		return 0, nil, err
	}
	newRoot := NewBranch([][]byte{midKey}, []storage.Position{rootPos, siblingPos})
	if err := t.saveNode(newRootPos, newRoot); err != nil {
		return 0, nil, err
	}

	t.header.RootPos = newRootPos
	t.header.Depth++
	t.markDirty()
	return newRootPos, newRoot, nil
}

// pathEntry records one step of a root-to-leaf descent, so Remove can walk
// back up to rebalance without needing parent pointers stored on disk.
type pathEntry struct {
	pos      storage.Position
	node     *Node
	childIdx int
}

// Remove deletes key. It returns ErrRemovedNothing if key is absent. Unless
// Options.RelaxedRemoves was set, underfull nodes are fixed by borrowing
// from a sibling or merging, all the way back up to the root.
func (t *Tree) Remove(key []byte) error {
	var path []pathEntry
	pos := t.header.RootPos

	for {
		n, err := t.loadNode(pos)
		if err != nil {
			return err
		}
		idx := t.lowerBound(n.Keys, key)

		if n.IsLeaf() {
			if idx >= len(n.Keys) || t.compare(n.Keys[idx], key) != 0 {
				return storage.ErrRemovedNothing
			}
			n.Keys = removeBytesAt(n.Keys, idx)
			n.Vals = removeBytesAt(n.Vals, idx)
			if err := t.saveNode(pos, n); err != nil {
				return err
			}
			t.header.Size--
			t.markDirty()

			if t.header.RelaxedRemoves {
				return nil
			}
			return t.rebalance(path, pos, n)
		}

		path = append(path, pathEntry{pos: pos, node: n, childIdx: idx})
		pos = n.Children[idx]
	}
}

func (t *Tree) minRecords(leaf bool) int {
	if leaf {
		return (t.maxLeaf + 1) / 2
	}
	return (t.maxBranch + 1) / 2
}

// rebalance walks back up path, starting from the just-modified node cur at
// curPos, fixing any underfull node by borrowing from a sibling or merging
// with one, and collapses the root if it ends up a branch with no keys.
func (t *Tree) rebalance(path []pathEntry, curPos storage.Position, cur *Node) error {
	for level := len(path) - 1; level >= 0; level-- {
		if curPos == t.header.RootPos {
			break
		}
		if len(cur.Keys) >= t.minRecords(cur.IsLeaf()) {
			break
		}

		entry := path[level]
		parent := entry.node
		childIdx := entry.childIdx

		merged, err := t.fixUnderfull(parent, childIdx, curPos, cur)
		if err != nil {
			return err
		}
		if err := t.saveNode(entry.pos, parent); err != nil {
			return err
		}

		if !merged {
			// Borrowed, not merged: parent's key count is unchanged, so no
			// further propagation is needed.
			break
		}
		curPos, cur = entry.pos, parent
	}

	root, err := t.loadNode(t.header.RootPos)
	if err != nil {
		return err
	}
	if !root.IsLeaf() && len(root.Keys) == 0 {
		t.header.RootPos = root.Children[0]
		t.header.Depth--
		t.markDirty()
	}
	return nil
}

// fixUnderfull repairs parent's childIdx'th child (cur, at curPos), which
// has fallen below the minimum fill, by borrowing from a sibling if one has
// a surplus, or otherwise merging with a sibling. It reports whether a
// merge happened, in which case parent itself lost a key/child and the
// caller must keep checking it for underflow.
func (t *Tree) fixUnderfull(parent *Node, childIdx int, curPos storage.Position, cur *Node) (bool, error) {
	hasLeft := childIdx > 0
	hasRight := childIdx+1 < len(parent.Children)

	if hasLeft {
		left, err := t.loadNode(parent.Children[childIdx-1])
		if err != nil {
			return false, err
		}
		if len(left.Keys) > t.minRecords(left.IsLeaf()) {
			return false, t.borrowFromLeft(parent, childIdx, left, curPos, cur)
		}
	}
	if hasRight {
		right, err := t.loadNode(parent.Children[childIdx+1])
		if err != nil {
			return false, err
		}
		if len(right.Keys) > t.minRecords(right.IsLeaf()) {
			return false, t.borrowFromRight(parent, childIdx, curPos, cur, right)
		}
	}

	if hasRight {
		right, err := t.loadNode(parent.Children[childIdx+1])
		if err != nil {
			return false, err
		}
		return true, t.mergeWithRight(parent, childIdx, curPos, cur, right)
	}

	left, err := t.loadNode(parent.Children[childIdx-1])
	if err != nil {
		return false, err
	}
	leftPos := parent.Children[childIdx-1]
	return true, t.mergeWithRight(parent, childIdx-1, leftPos, left, cur)
}

func (t *Tree) borrowFromLeft(parent *Node, childIdx int, left *Node, curPos storage.Position, cur *Node) error {
	if cur.IsLeaf() {
		n := len(left.Keys)
		bKey, bVal := left.Keys[n-1], left.Vals[n-1]
		left.Keys, left.Vals = left.Keys[:n-1], left.Vals[:n-1]
		cur.Keys = insertBytes(cur.Keys, 0, bKey)
		cur.Vals = insertBytes(cur.Vals, 0, bVal)
		parent.Keys[childIdx-1] = cur.Keys[0]
	} else {
		n := len(left.Keys)
		cur.Keys = insertBytes(cur.Keys, 0, parent.Keys[childIdx-1])
		cur.Children = insertPosition(cur.Children, 0, left.Children[len(left.Children)-1])
		parent.Keys[childIdx-1] = left.Keys[n-1]
		left.Keys = left.Keys[:n-1]
		left.Children = left.Children[:len(left.Children)-1]
	}
	if err := t.saveNode(parent.Children[childIdx-1], left); err != nil {
		return err
	}
	return t.saveNode(curPos, cur)
}

func (t *Tree) borrowFromRight(parent *Node, childIdx int, curPos storage.Position, cur *Node, right *Node) error {
	if cur.IsLeaf() {
		bKey, bVal := right.Keys[0], right.Vals[0]
		right.Keys, right.Vals = right.Keys[1:], right.Vals[1:]
		cur.Keys = append(cur.Keys, bKey)
		cur.Vals = append(cur.Vals, bVal)
		parent.Keys[childIdx] = right.Keys[0]
	} else {
		cur.Keys = append(cur.Keys, parent.Keys[childIdx])
		cur.Children = append(cur.Children, right.Children[0])
		parent.Keys[childIdx] = right.Keys[0]
		right.Keys = right.Keys[1:]
		right.Children = right.Children[1:]
	}
	if err := t.saveNode(parent.Children[childIdx+1], right); err != nil {
		return err
	}
	return t.saveNode(curPos, cur)
}

// mergeWithRight merges right into left (left is parent.Children[leftIdx],
// right is parent.Children[leftIdx+1]), pulling down parent's separator for
// branch nodes, and removes the now-absorbed child and separator from
// parent. The merged contents end up at leftPos; right's page is freed.
func (t *Tree) mergeWithRight(parent *Node, leftIdx int, leftPos storage.Position, left *Node, right *Node) error {
	rightPos := parent.Children[leftIdx+1]

	if left.IsLeaf() {
		left.Keys = append(left.Keys, right.Keys...)
		left.Vals = append(left.Vals, right.Vals...)
		left.Next = right.Next
		if right.Next.IsSet() {
			nextNode, err := t.loadNode(right.Next)
			if err != nil {
				return err
			}
			nextNode.Prev = leftPos
			if err := t.saveNode(right.Next, nextNode); err != nil {
				return err
			}
		}
	} else {
		left.Keys = append(left.Keys, parent.Keys[leftIdx])
		left.Keys = append(left.Keys, right.Keys...)
		left.Children = append(left.Children, right.Children...)
	}

	parent.Keys = removeBytesAt(parent.Keys, leftIdx)
	parent.Children = removePositionAt(parent.Children, leftIdx+1)

	if err := t.saveNode(leftPos, left); err != nil {
		return err
	}
	return t.pager.Free(rightPos)
}

func insertBytes(s [][]byte, idx int, v []byte) [][]byte {
	s = append(s, nil)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

func insertPosition(s []storage.Position, idx int, v storage.Position) []storage.Position {
	s = append(s, 0)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

func removeBytesAt(s [][]byte, idx int) [][]byte {
	return append(s[:idx], s[idx+1:]...)
}

func removePositionAt(s []storage.Position, idx int) []storage.Position {
	return append(s[:idx], s[idx+1:]...)
}
