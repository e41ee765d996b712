package crdt

import "encoding/json"

// LWWRegister is a last-write-wins register over a JSON-able value type T:
// the Join keeps whichever of two (value, Tag) pairs carries the greater
// Tag, with the pinned Tag ordering (counter, then ReplicaID) acting as
// the tie-break when two writes share a counter value.
type LWWRegister[T any] struct {
	value T
	tag   Tag
	set   bool
}

// NewLWWRegister returns the bottom element: no value has been set.
func NewLWWRegister[T any]() *LWWRegister[T] {
	return &LWWRegister[T]{}
}

// Bottom implements Lattice.
func (r *LWWRegister[T]) Bottom() *LWWRegister[T] { return NewLWWRegister[T]() }

// Set assigns value under tag and returns the delta (the resulting
// register value itself, since LWW-Register deltas are full register
// states — there is nothing smaller to ship than the winning pair).
func (r *LWWRegister[T]) Set(value T, tag Tag) *LWWRegister[T] {
	if !r.set || tag.Greater(r.tag) {
		r.value = value
		r.tag = tag
		r.set = true
	}
	delta := NewLWWRegister[T]()
	delta.value = r.value
	delta.tag = r.tag
	delta.set = r.set
	return delta
}

// Get returns the current value and whether the register has ever been
// set.
func (r *LWWRegister[T]) Get() (T, bool) {
	return r.value, r.set
}

// Join implements Lattice: the pair with the greater Tag wins.
func (r *LWWRegister[T]) Join(other *LWWRegister[T]) *LWWRegister[T] {
	out := NewLWWRegister[T]()
	switch {
	case !r.set:
		*out = *other
	case !other.set:
		*out = *r
	case other.tag.Greater(r.tag):
		*out = *other
	default:
		*out = *r
	}
	return out
}

// Leq implements Lattice: bottom is less than anything, otherwise self's
// tag must not exceed other's.
func (r *LWWRegister[T]) Leq(other *LWWRegister[T]) bool {
	if !r.set {
		return true
	}
	if !other.set {
		return false
	}
	return !r.tag.Greater(other.tag)
}

// JoinAssign merges delta into r in place.
func (r *LWWRegister[T]) JoinAssign(delta *LWWRegister[T]) {
	*r = *r.Join(delta)
}

type lwwWire[T any] struct {
	Kind CRDTKind `json:"kind"`
	Set  bool     `json:"set"`
	Value T       `json:"value,omitempty"`
	Tag  Tag      `json:"tag,omitempty"`
}

// Kind implements CRDT.
func (r *LWWRegister[T]) Kind() CRDTKind { return KindLWWRegister }

// Marshal produces the canonical encoding.
func (r *LWWRegister[T]) Marshal() ([]byte, error) {
	return canonicalJSON(lwwWire[T]{Kind: KindLWWRegister, Set: r.set, Value: r.value, Tag: r.tag})
}

// Unmarshal decodes an LWWRegister from its canonical form.
func (r *LWWRegister[T]) Unmarshal(data []byte) error {
	var wire lwwWire[T]
	if err := json.Unmarshal(data, &wire); err != nil {
		return newErr(ErrKindLogic, "unmarshal", err)
	}
	if wire.Kind != KindLWWRegister {
		return newErr(ErrKindLogic, "unmarshal", ErrUnknownKind)
	}
	r.set = wire.Set
	r.value = wire.Value
	r.tag = wire.Tag
	return nil
}
