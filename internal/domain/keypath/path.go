// Package keypath converts between nested content trees and flat
// dotted/bracket-indexed keys.
//
// The wire form of a key is a dot-joined list of segments where a segment may
// carry one or more zero-based array indices: "header.title",
// "testimonials[0].name", "grid[1][2]". Keys are parsed once into a Path and
// traversed structurally.
package keypath

import (
	"strconv"
	"strings"
)

// Segment is one dot-separated element of a path. A segment with indices is
// an array access on Name; without indices it is a plain field.
type Segment struct {
	Name    string
	Indices []int
}

// Field builds a plain object field segment.
func Field(name string) Segment { return Segment{Name: name} }

// Index builds an array access segment.
func Index(name string, indices ...int) Segment {
	return Segment{Name: name, Indices: indices}
}

func (s Segment) IsIndex() bool { return len(s.Indices) > 0 }

func (s Segment) String() string {
	if !s.IsIndex() {
		return s.Name
	}
	var b strings.Builder
	b.WriteString(s.Name)
	for _, i := range s.Indices {
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(i))
		b.WriteByte(']')
	}
	return b.String()
}

// Path is a parsed key.
type Path []Segment

// Depth counts one per field name plus one per index.
func (p Path) Depth() int {
	depth := 0
	for _, seg := range p {
		depth += 1 + len(seg.Indices)
	}
	return depth
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = seg.String()
	}
	return strings.Join(parts, ".")
}

// ParsePath splits a key on dots and recognises trailing "[digits]" groups on
// each segment. Bracket text that is not a run of digits stays part of the
// field name.
func ParsePath(key string) Path {
	if key == "" {
		return nil
	}
	raw := strings.Split(key, ".")
	path := make(Path, 0, len(raw))
	for _, part := range raw {
		path = append(path, parseSegment(part))
	}
	return path
}

func parseSegment(part string) Segment {
	var indices []int
	name := part
	for strings.HasSuffix(name, "]") {
		open := strings.LastIndexByte(name, '[')
		if open < 0 {
			break
		}
		digits := name[open+1 : len(name)-1]
		if digits == "" || !allDigits(digits) {
			break
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			break
		}
		indices = append(indices, n)
		name = name[:open]
	}
	if len(indices) == 0 {
		return Field(part)
	}
	for i, j := 0, len(indices)-1; i < j; i, j = i+1, j-1 {
		indices[i], indices[j] = indices[j], indices[i]
	}
	return Index(name, indices...)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Join builds a key from a prefix and a relative key.
func Join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	if key == "" {
		return prefix
	}
	return prefix + "." + key
}

// ValidKey reports whether key parses into non-empty segments.
func ValidKey(key string) bool {
	return wellFormed(ParsePath(key))
}
