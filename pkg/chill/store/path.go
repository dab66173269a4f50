package store

import "strings"

// Path identifies a location in the data tree as a sequence of segments.
// The zero-length path is the tree root.
type Path []string

// ParsePath splits a slash-separated path into segments. Leading,
// trailing, and repeated slashes are ignored, so "/groups/g1/" and
// "groups/g1" are the same path.
func ParsePath(s string) Path {
	var p Path
	for _, seg := range strings.Split(s, "/") {
		if seg != "" {
			p = append(p, seg)
		}
	}
	return p
}

// String returns the slash-separated form of the path, "" for the root.
func (p Path) String() string {
	return strings.Join(p, "/")
}

// IsRoot reports whether the path is the tree root.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Child returns the path extended with the given segments. Segments may
// themselves contain slashes ("members/u1").
func (p Path) Child(segs ...string) Path {
	out := make(Path, len(p), len(p)+len(segs))
	copy(out, p)
	for _, seg := range segs {
		out = append(out, ParsePath(seg)...)
	}
	return out
}
