package keypath

import (
	"errors"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
)

// ErrRootNotObject is returned when flattening anything but an object tree.
var ErrRootNotObject = errors.New("content tree root must be an object")

// Pair is one flattened leaf.
type Pair struct {
	Key   string
	Value content.Value
}

// Flatten walks tree depth-first, pre-order, and returns one pair per scalar
// leaf keyed as prefix + "." + path. Null leaves are skipped and containers
// never produce pairs of their own.
func Flatten(tree content.Value, prefix string) ([]Pair, error) {
	if tree.Kind() != content.KindObject {
		return nil, ErrRootNotObject
	}
	var out []Pair
	for _, key := range tree.Keys() {
		member, _ := tree.Get(key)
		out = walk(out, member, Segment{Name: key}, nil, prefix)
	}
	return out, nil
}

// FlattenMap is Flatten keyed by flat key.
func FlattenMap(tree content.Value, prefix string) (map[string]content.Value, error) {
	pairs, err := Flatten(tree, prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]content.Value, len(pairs))
	for _, p := range pairs {
		out[p.Key] = p.Value
	}
	return out, nil
}

// FlattenScope flattens tree into entries of scope with scope-relative keys.
func FlattenScope(tree content.Value, scope content.Scope) ([]content.FlatEntry, error) {
	pairs, err := Flatten(tree, "")
	if err != nil {
		return nil, err
	}
	entries := make([]content.FlatEntry, len(pairs))
	for i, p := range pairs {
		entries[i] = content.FlatEntry{Scope: scope, Key: p.Key, Value: p.Value}
	}
	return entries, nil
}

// walk emits the leaves under v. seg is the segment that addresses v inside
// its parent; parent holds the segments above it.
func walk(out []Pair, v content.Value, seg Segment, parent Path, prefix string) []Pair {
	switch v.Kind() {
	case content.KindNull:
		return out
	case content.KindArray:
		for i, item := range v.Items() {
			child := Segment{Name: seg.Name, Indices: appendIndex(seg.Indices, i)}
			out = walk(out, item, child, parent, prefix)
		}
		return out
	case content.KindObject:
		here := append(append(Path{}, parent...), seg)
		for _, key := range v.Keys() {
			member, _ := v.Get(key)
			out = walk(out, member, Segment{Name: key}, here, prefix)
		}
		return out
	default:
		full := append(append(Path{}, parent...), seg)
		return append(out, Pair{Key: Join(prefix, full.String()), Value: v})
	}
}

func appendIndex(indices []int, i int) []int {
	out := make([]int, len(indices), len(indices)+1)
	copy(out, indices)
	return append(out, i)
}
