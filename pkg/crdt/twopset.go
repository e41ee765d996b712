package crdt

import "encoding/json"

// TwoPSet is the two-phase set: a pair of GSets (added, removed); the
// effective set is added \ removed, and once an element is removed it can
// never be re-added. Built on the plain GSet building block shared with
// the rest of the catalogue.
type TwoPSet[T comparable] struct {
	added   *GSet[T]
	removed *GSet[T]
}

// NewTwoPSet returns the bottom element.
func NewTwoPSet[T comparable]() *TwoPSet[T] {
	return &TwoPSet[T]{added: NewGSet[T](), removed: NewGSet[T]()}
}

// Bottom implements Lattice.
func (s *TwoPSet[T]) Bottom() *TwoPSet[T] { return NewTwoPSet[T]() }

// Add adds element if it has not been removed; the returned delta carries
// only the added-set change (delta minimality: a no-op add on an already
// tombstoned element returns the bottom delta).
func (s *TwoPSet[T]) Add(element T) *TwoPSet[T] {
	delta := NewTwoPSet[T]()
	if s.removed.Contains(element) {
		return delta
	}
	delta.added = s.added.Add(element)
	return delta
}

// Remove tombstones element. Per the catalogue, this can only ever expand
// the tombstone set; re-adding after removal requires a different element
// identity (the OR-Set is the type that supports add-after-remove via
// fresh tags).
func (s *TwoPSet[T]) Remove(element T) *TwoPSet[T] {
	delta := NewTwoPSet[T]()
	delta.removed = s.removed.Add(element)
	return delta
}

// Contains reports whether element is currently present.
func (s *TwoPSet[T]) Contains(element T) bool {
	return s.added.Contains(element) && !s.removed.Contains(element)
}

// Elements returns the effective set (added \ removed).
func (s *TwoPSet[T]) Elements() []T {
	out := make([]T, 0)
	for _, e := range s.added.Elements() {
		if !s.removed.Contains(e) {
			out = append(out, e)
		}
	}
	return out
}

// Join implements Lattice: join each component GSet independently.
func (s *TwoPSet[T]) Join(other *TwoPSet[T]) *TwoPSet[T] {
	return &TwoPSet[T]{
		added:   s.added.Join(other.added),
		removed: s.removed.Join(other.removed),
	}
}

// Leq implements Lattice componentwise.
func (s *TwoPSet[T]) Leq(other *TwoPSet[T]) bool {
	return s.added.Leq(other.added) && s.removed.Leq(other.removed)
}

// JoinAssign merges a delta into s in place.
func (s *TwoPSet[T]) JoinAssign(delta *TwoPSet[T]) {
	s.added.JoinAssign(delta.added)
	s.removed.JoinAssign(delta.removed)
}

// Kind implements CRDT.
func (s *TwoPSet[T]) Kind() CRDTKind { return KindTwoPSet }

type twopsetWire[T comparable] struct {
	Kind    CRDTKind `json:"kind"`
	Added   []T      `json:"added"`
	Removed []T      `json:"removed,omitempty"`
}

// Marshal produces the canonical encoding.
func (s *TwoPSet[T]) Marshal() ([]byte, error) {
	return canonicalJSON(twopsetWire[T]{
		Kind:    KindTwoPSet,
		Added:   s.added.sortedElements(),
		Removed: s.removed.sortedElements(),
	})
}

// Unmarshal decodes a TwoPSet from its canonical form.
func (s *TwoPSet[T]) Unmarshal(data []byte) error {
	var wire twopsetWire[T]
	if err := json.Unmarshal(data, &wire); err != nil {
		return newErr(ErrKindLogic, "unmarshal", err)
	}
	if wire.Kind != KindTwoPSet {
		return newErr(ErrKindLogic, "unmarshal", ErrUnknownKind)
	}
	s.added = NewGSet[T]()
	for _, e := range wire.Added {
		s.added.Add(e)
	}
	s.removed = NewGSet[T]()
	for _, e := range wire.Removed {
		s.removed.Add(e)
	}
	return nil
}
