// internal/btree/iterator.go
package btree

// Cursor walks keys in ascending order over a leaf range, via the leaf
// sibling chain rather than a stack of in-progress branch descents --
// the classic B+ tree trick original_source's own Btree never implements
// (it has no cursor/iterator type at all) but that every practical B+ tree
// relies on, since every key already lives in a leaf reachable by
// following Next pointers from the first qualifying leaf.
type Cursor struct {
	tree *Tree
	node *Node
	idx  int
	hi   []byte // exclusive upper bound, nil meaning unbounded
	done bool
}

// Begin returns a cursor positioned at the first key >= lo (or the very
// first key if lo is nil), iterating up to but excluding hi (or to the end
// if hi is nil).
func (t *Tree) Begin(lo, hi []byte) (*Cursor, error) {
	pos := t.header.RootPos
	var node *Node
	for {
		n, err := t.loadNode(pos)
		if err != nil {
			return nil, err
		}
		if n.IsLeaf() {
			node = n
			break
		}
		idx := 0
		if lo != nil {
			idx = t.lowerBound(n.Keys, lo)
		}
		pos = n.Children[idx]
	}

	idx := 0
	if lo != nil {
		idx = t.lowerBound(node.Keys, lo)
	}
	c := &Cursor{tree: t, node: node, idx: idx, hi: hi}
	c.settle()
	return c, nil
}

// settle advances past an exhausted leaf to the next one, and marks the
// cursor done once there is nothing left or the upper bound is reached.
func (c *Cursor) settle() {
	for c.idx >= len(c.node.Keys) {
		if !c.node.Next.IsSet() {
			c.done = true
			return
		}
		n, err := c.tree.loadNode(c.node.Next)
		if err != nil {
			c.done = true
			return
		}
		c.node = n
		c.idx = 0
	}
	if c.hi != nil && c.tree.compare(c.node.Keys[c.idx], c.hi) >= 0 {
		c.done = true
	}
}

// Valid reports whether the cursor is positioned at a usable entry.
func (c *Cursor) Valid() bool { return !c.done }

// Key returns the key at the cursor's current position.
func (c *Cursor) Key() []byte { return c.node.Keys[c.idx] }

// Value returns the value at the cursor's current position.
func (c *Cursor) Value() []byte { return c.node.Vals[c.idx] }

// Next advances the cursor to the next key in ascending order.
func (c *Cursor) Next() {
	if c.done {
		return
	}
	c.idx++
	c.settle()
}

// MinEntry returns the smallest key and its value, following leftmost
// children down from the root.
func (t *Tree) MinEntry() (key, val []byte, ok bool, err error) {
	pos := t.header.RootPos
	for {
		n, err := t.loadNode(pos)
		if err != nil {
			return nil, nil, false, err
		}
		if n.IsLeaf() {
			if len(n.Keys) == 0 {
				return nil, nil, false, nil
			}
			return n.Keys[0], n.Vals[0], true, nil
		}
		pos = n.Children[0]
	}
}

// MaxEntry returns the largest key and its value, following rightmost
// children down from the root.
func (t *Tree) MaxEntry() (key, val []byte, ok bool, err error) {
	pos := t.header.RootPos
	for {
		n, err := t.loadNode(pos)
		if err != nil {
			return nil, nil, false, err
		}
		if n.IsLeaf() {
			if len(n.Keys) == 0 {
				return nil, nil, false, nil
			}
			last := len(n.Keys) - 1
			return n.Keys[last], n.Vals[last], true, nil
		}
		pos = n.Children[len(n.Children)-1]
	}
}

// Filter collects every (key, value) pair for which keep returns true,
// scanning the whole tree in ascending key order via Begin(nil, nil).
func (t *Tree) Filter(keep func(key, val []byte) bool) ([][2][]byte, error) {
	c, err := t.Begin(nil, nil)
	if err != nil {
		return nil, err
	}
	var out [][2][]byte
	for c.Valid() {
		if keep(c.Key(), c.Value()) {
			out = append(out, [2][]byte{c.Key(), c.Value()})
		}
		c.Next()
	}
	return out, nil
}
