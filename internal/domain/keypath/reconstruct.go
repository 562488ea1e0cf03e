package keypath

import (
	"sort"
	"strings"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
)

// step is a single addressing move: a field lookup or an array index.
type step struct {
	field   string
	index   int
	isIndex bool
}

func (p Path) steps() []step {
	out := make([]step, 0, p.Depth())
	for _, seg := range p {
		out = append(out, step{field: seg.Name})
		for _, i := range seg.Indices {
			out = append(out, step{index: i, isIndex: true})
		}
	}
	return out
}

// node is the mutable build form of a tree.
type node struct {
	kind   content.Kind
	keys   []string
	fields map[string]*node
	items  []*node
	leaf   content.Value
}

func newContainer(forIndex bool) *node {
	if forIndex {
		return &node{kind: content.KindArray}
	}
	return &node{kind: content.KindObject, fields: make(map[string]*node)}
}

func (n *node) isContainer() bool {
	return n != nil && (n.kind == content.KindObject || n.kind == content.KindArray)
}

func (n *node) accepts(s step) bool {
	if s.isIndex {
		return n.kind == content.KindArray
	}
	return n.kind == content.KindObject
}

func (n *node) child(s step) *node {
	if s.isIndex {
		if s.index < len(n.items) {
			return n.items[s.index]
		}
		return nil
	}
	return n.fields[s.field]
}

func (n *node) setChild(s step, c *node) {
	if s.isIndex {
		for len(n.items) <= s.index {
			n.items = append(n.items, nil)
		}
		n.items[s.index] = c
		return
	}
	if _, ok := n.fields[s.field]; !ok {
		n.keys = append(n.keys, s.field)
	}
	n.fields[s.field] = c
}

func (n *node) value() content.Value {
	if n == nil {
		return content.Null()
	}
	switch n.kind {
	case content.KindObject:
		obj := content.NewObject()
		for _, k := range n.keys {
			obj.Set(k, n.fields[k].value())
		}
		return obj
	case content.KindArray:
		items := make([]content.Value, len(n.items))
		for i, c := range n.items {
			items[i] = c.value()
		}
		return content.Array(items...)
	default:
		return n.leaf
	}
}

type flatLeaf struct {
	key   string
	path  Path
	depth int
	value content.Value
}

// Reconstruct rebuilds the nested tree of one scope from flat entries.
//
// Only keys starting with scopePrefix + "." are used; the prefix is stripped.
// Keys are applied in ascending path depth (ties broken by key) so parents
// exist before children regardless of input order, and rebuilt objects list
// their keys in that order. Array segments extend arrays, leaving null holes
// for skipped indices. When a scalar and a container claim the same location
// the container wins, and a key that would turn an existing object into an
// array (or the reverse) is dropped.
func Reconstruct(entries map[string]content.Value, scopePrefix string) content.Value {
	want := ""
	if scopePrefix != "" {
		want = scopePrefix + "."
	}

	leaves := make([]flatLeaf, 0, len(entries))
	for key, v := range entries {
		if !strings.HasPrefix(key, want) {
			continue
		}
		rel := key[len(want):]
		path := ParsePath(rel)
		if !wellFormed(path) || v.IsNull() {
			continue
		}
		leaves = append(leaves, flatLeaf{key: rel, path: path, depth: path.Depth(), value: v})
	}

	sort.Slice(leaves, func(i, j int) bool {
		if leaves[i].depth != leaves[j].depth {
			return leaves[i].depth < leaves[j].depth
		}
		return leaves[i].key < leaves[j].key
	})

	root := newContainer(false)
	for _, leaf := range leaves {
		assign(root, leaf.path.steps(), leaf.value)
	}
	return root.value()
}

func assign(root *node, steps []step, v content.Value) {
	cur := root
	for i, s := range steps {
		if !cur.accepts(s) {
			return
		}
		existing := cur.child(s)
		if i == len(steps)-1 {
			if existing.isContainer() {
				return
			}
			cur.setChild(s, &node{kind: v.Kind(), leaf: v})
			return
		}
		if !existing.isContainer() {
			existing = newContainer(steps[i+1].isIndex)
			cur.setChild(s, existing)
		}
		cur = existing
	}
}

func wellFormed(p Path) bool {
	if len(p) == 0 {
		return false
	}
	for _, seg := range p {
		if seg.Name == "" {
			return false
		}
	}
	return true
}

// ReconstructEntries is Reconstruct over scope-relative entries of one scope.
func ReconstructEntries(entries []content.FlatEntry) content.Value {
	flat := make(map[string]content.Value, len(entries))
	for _, e := range entries {
		flat[e.Key] = e.Value
	}
	return Reconstruct(flat, "")
}

// MergeTopLevel overlays page on shared. Page keys win on any top-level
// collision; nested members are not merged.
func MergeTopLevel(shared, page content.Value) content.Value {
	out := content.NewObject()
	for _, src := range []content.Value{shared, page} {
		for _, k := range src.Keys() {
			member, _ := src.Get(k)
			out.Set(k, member)
		}
	}
	return out
}
