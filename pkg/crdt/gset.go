package crdt

import "encoding/json"

// GSet is a grow-only set CRDT: elements can be added but never removed,
// and join is plain set union. It is the building block 2P-Set and OR-Set
// are defined in terms of.
type GSet[T comparable] struct {
	elems map[T]struct{}
}

// NewGSet returns the bottom element (the empty set).
func NewGSet[T comparable]() *GSet[T] {
	return &GSet[T]{elems: make(map[T]struct{})}
}

// Bottom implements Lattice.
func (s *GSet[T]) Bottom() *GSet[T] { return NewGSet[T]() }

// Add adds an element; the delta is the singleton set {element}, or the
// empty set if element was already present.
func (s *GSet[T]) Add(element T) *GSet[T] {
	delta := NewGSet[T]()
	if _, ok := s.elems[element]; !ok {
		s.elems[element] = struct{}{}
		delta.elems[element] = struct{}{}
	}
	return delta
}

// Contains reports whether element has been added.
func (s *GSet[T]) Contains(element T) bool {
	_, ok := s.elems[element]
	return ok
}

// Elements returns every element currently in the set, in no particular
// order; callers that need determinism should sort the result themselves.
func (s *GSet[T]) Elements() []T {
	out := make([]T, 0, len(s.elems))
	for e := range s.elems {
		out = append(out, e)
	}
	return out
}

// Join implements Lattice: union of element sets.
func (s *GSet[T]) Join(other *GSet[T]) *GSet[T] {
	out := NewGSet[T]()
	for e := range s.elems {
		out.elems[e] = struct{}{}
	}
	for e := range other.elems {
		out.elems[e] = struct{}{}
	}
	return out
}

// Leq implements Lattice: self ≤ other iff self is a subset of other.
func (s *GSet[T]) Leq(other *GSet[T]) bool {
	for e := range s.elems {
		if _, ok := other.elems[e]; !ok {
			return false
		}
	}
	return true
}

// JoinAssign merges delta into s in place, the form merge_delta takes for
// GSet (GSet deltas are themselves GSets).
func (s *GSet[T]) JoinAssign(delta *GSet[T]) {
	for e := range delta.elems {
		s.elems[e] = struct{}{}
	}
}

// Kind implements CRDT.
func (s *GSet[T]) Kind() CRDTKind { return KindGSet }

type gsetWire[T comparable] struct {
	Kind CRDTKind `json:"kind"`
	Elems []T     `json:"elems"`
}

// Marshal produces the canonical encoding: elements in a stable order.
// Ordering requires T to be ordered by its JSON encoding for determinism;
// callers working with non-string/number element types should wrap them in
// a type with a stable string form before using GSet as wire state.
func (s *GSet[T]) Marshal() ([]byte, error) {
	return canonicalJSON(gsetWire[T]{Kind: KindGSet, Elems: s.sortedElements()})
}

func (s *GSet[T]) sortedElements() []T {
	elems := s.Elements()
	// Stable order via round-trip through JSON string keys; element types
	// used with GSet in this codebase (string, Tag-derived keys) compare
	// consistently through their JSON form.
	keyed := make(map[string]T, len(elems))
	keys := make([]string, 0, len(elems))
	for _, e := range elems {
		b, _ := json.Marshal(e)
		k := string(b)
		keyed[k] = e
		keys = append(keys, k)
	}
	keys = sortedStrings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyed[k])
	}
	return out
}

// Unmarshal decodes a GSet from its canonical form.
func (s *GSet[T]) Unmarshal(data []byte) error {
	var wire gsetWire[T]
	if err := json.Unmarshal(data, &wire); err != nil {
		return newErr(ErrKindLogic, "unmarshal", err)
	}
	if wire.Kind != KindGSet {
		return newErr(ErrKindLogic, "unmarshal", ErrUnknownKind)
	}
	s.elems = make(map[T]struct{}, len(wire.Elems))
	for _, e := range wire.Elems {
		s.elems[e] = struct{}{}
	}
	return nil
}
