// Package ordmap implements the key-ordered associative container
// described for this system: a user-supplied comparator, O(log n)
// insert/query/delete, and amortized-O(1)-per-step in-order enumeration.
// It is backed by tidwall/btree's generic B-tree rather than a hand-rolled
// red-black tree. Go's garbage collector already supersedes the
// reference design's optional per-key/per-value copier and destructor
// callbacks — a map here simply stores Go values, and there is no
// separate "borrowed vs owned" distinction to model — so Map only takes
// a comparator.
package ordmap

import (
	"strings"

	"github.com/tidwall/btree"
)

// Comparator orders two keys: negative if a < b, zero if equal, positive
// if a > b.
type Comparator[K any] func(a, b K) int

type entry[K any, V any] struct {
	Key   K
	Value V
}

// Map is a generic ordered map backed by a B-tree, parameterized by key
// type, value type, and an ordering — exactly the typed rewrite the
// reference design's notes call for.
type Map[K any, V any] struct {
	tr  *btree.BTreeG[entry[K, V]]
	cmp Comparator[K]
}

// New returns an empty Map ordered by cmp.
func New[K any, V any](cmp Comparator[K]) *Map[K, V] {
	less := func(a, b entry[K, V]) bool { return cmp(a.Key, b.Key) < 0 }
	return &Map[K, V]{tr: btree.NewBTreeG(less), cmp: cmp}
}

// Insert upserts key/val: if key is absent it is inserted in order; if
// present, both the stored key and value are replaced.
func (m *Map[K, V]) Insert(key K, val V) {
	m.tr.Set(entry[K, V]{Key: key, Value: val})
}

// Query returns the value stored for key, if any.
func (m *Map[K, V]) Query(key K) (V, bool) {
	e, ok := m.tr.Get(entry[K, V]{Key: key})
	return e.Value, ok
}

// Delete removes key if present and reports whether it was.
func (m *Map[K, V]) Delete(key K) bool {
	_, ok := m.tr.Delete(entry[K, V]{Key: key})
	return ok
}

// Size returns the number of stored keys.
func (m *Map[K, V]) Size() int {
	return m.tr.Len()
}

// Cursor is an opaque, resumable enumeration position. It is safe to
// hold across non-mutating calls; behavior under concurrent mutation of
// the source Map is unspecified, matching the reference design's
// node-pointer cursor. The full ordering is snapshotted once, up front,
// so each Next call afterward is O(1).
type Cursor[K any, V any] struct {
	entries []entry[K, V]
	pos     int
}

// Enumerate returns a Cursor positioned before the first entry, in
// ascending key order.
func (m *Map[K, V]) Enumerate() *Cursor[K, V] {
	c := &Cursor[K, V]{entries: make([]entry[K, V], 0, m.tr.Len())}
	m.tr.Scan(func(item entry[K, V]) bool {
		c.entries = append(c.entries, item)
		return true
	})
	return c
}

// Next yields the next (key, value) pair, or ok=false once exhausted.
func (c *Cursor[K, V]) Next() (K, V, bool) {
	if c.pos >= len(c.entries) {
		var zk K
		var zv V
		return zk, zv, false
	}
	e := c.entries[c.pos]
	c.pos++
	return e.Key, e.Value, true
}

// LexicographicString orders keys by plain byte-wise string comparison.
func LexicographicString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func splitComponents(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// PathPreOrder orders paths componentwise, parents before children: an
// ancestor path sorts before any of its descendants.
func PathPreOrder(a, b string) int {
	ca, cb := splitComponents(a), splitComponents(b)
	n := len(ca)
	if len(cb) < n {
		n = len(cb)
	}
	for i := 0; i < n; i++ {
		if ca[i] != cb[i] {
			if ca[i] < cb[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ca) < len(cb):
		return -1
	case len(ca) > len(cb):
		return 1
	default:
		return 0
	}
}

// PathPostOrder orders paths componentwise, children before parents: a
// descendant path sorts before any of its ancestors, while unrelated
// paths keep the same sibling order as PathPreOrder.
func PathPostOrder(a, b string) int {
	ca, cb := splitComponents(a), splitComponents(b)
	n := len(ca)
	if len(cb) < n {
		n = len(cb)
	}
	for i := 0; i < n; i++ {
		if ca[i] != cb[i] {
			if ca[i] < cb[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ca) < len(cb):
		return 1
	case len(ca) > len(cb):
		return -1
	default:
		return 0
	}
}
