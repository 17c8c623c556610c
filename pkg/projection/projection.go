// Package projection describes which protobuf field paths a transposed
// chunk decoder should materialize. Excluding paths lets the decoder skip
// whole value buckets without decompressing them.
package projection

// Path is one projected field path: a chain of protobuf field numbers from
// the message root. With ExistenceOnly set, only the presence of the final
// field is kept (an empty submessage); otherwise the entire subtree under
// the final field is kept.
type Path struct {
	Tags          []uint32
	ExistenceOnly bool
}

// NewPath builds a path keeping the whole subtree under tags.
func NewPath(tags ...uint32) Path {
	return Path{Tags: tags}
}

// ExistencePath builds a path keeping only the presence marker of the final
// field.
func ExistencePath(tags ...uint32) Path {
	return Path{Tags: tags, ExistenceOnly: true}
}

// Projection is a set of projected paths. The zero value projects nothing;
// use All for the identity projection.
type Projection struct {
	all   bool
	paths []Path
}

// All returns the identity projection: every field is kept.
func All() Projection {
	return Projection{all: true}
}

// Of returns a projection keeping exactly the given paths.
func Of(paths ...Path) Projection {
	return Projection{paths: paths}
}

// IncludesAll reports whether the projection keeps every field.
func (p Projection) IncludesAll() bool {
	return p.all
}

// Decision is the per-field outcome of applying a projection.
type Decision int

const (
	// Excluded drops the field and its subtree.
	Excluded Decision = iota
	// Existence keeps the field as an empty submessage, dropping its
	// contents.
	Existence
	// Included keeps the field. For a submessage this admits the field
	// itself; each child is decided on its own path.
	Included
)

// Decide resolves the projection for the field at the given root path. When
// several projected paths apply, the most inclusive decision wins.
func (p Projection) Decide(path []uint32) Decision {
	if p.all {
		return Included
	}
	best := Excluded
	for _, q := range p.paths {
		switch {
		case isPrefix(q.Tags, path):
			if q.ExistenceOnly {
				if len(path) == len(q.Tags) && best < Existence {
					best = Existence
				}
				// Deeper fields under an existence-only path stay
				// excluded.
				continue
			}
			return Included
		case isPrefix(path, q.Tags):
			// The field is an ancestor of a projected path; keep it so
			// the projected descendant has somewhere to live.
			best = Included
		}
	}
	return best
}

func isPrefix(prefix, path []uint32) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i, tag := range prefix {
		if path[i] != tag {
			return false
		}
	}
	return true
}
