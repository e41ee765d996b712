// Package crdt implements a join-semilattice CRDT catalogue: G-Set,
// 2P-Set, OR-Set, PN-Counter, LWW-Register, MV-Register, RGA list/text,
// rich text, and a recursive JSON CRDT, each with delta-mutators.
//
// Every type in this package satisfies Lattice: join is commutative,
// associative and idempotent, and the partial order it induces (a ≤ b iff
// a ⊔ b = b) is what convergence across replicas rests on. Each type's
// mutators return a Delta, a small lattice element for the local mutation,
// instead of shipping the whole value.
package crdt

// Lattice is the contract every CRDT type in this package satisfies.
type Lattice[T any] interface {
	// Bottom returns the identity element for Join.
	Bottom() T

	// Join computes the least upper bound of two lattice elements. Join
	// must be commutative, associative and idempotent.
	Join(other T) T

	// Leq reports whether the receiver is less than or equal to other in
	// the partial order induced by Join.
	Leq(other T) bool
}

// Delta is a lattice element produced by a mutation m on state X such that
// X ⊔ Delta == m(X). Deltas are themselves lattice elements so they can be
// joined en route between replicas without being expanded to full state.
type Delta[D any] interface {
	Lattice[D]
}

// CRDTKind names a concrete lattice type for canonical (de)serialization
// and for the error messages that report a type mismatch.
type CRDTKind string

const (
	KindGSet        CRDTKind = "gset"
	KindTwoPSet     CRDTKind = "2pset"
	KindORSet       CRDTKind = "orset"
	KindPNCounter   CRDTKind = "pncounter"
	KindLWWRegister CRDTKind = "lww"
	KindMVRegister  CRDTKind = "mvreg"
	KindRGA         CRDTKind = "rga"
	KindRichText    CRDTKind = "richtext"
	KindJSON        CRDTKind = "json"
)

// CRDT is satisfied by every concrete type below; it is a dynamic-dispatch
// surface for handling an opaque delta payload without knowing its
// concrete Go type ahead of time. No other package in this module refers
// to it; concrete types stay the primary API.
type CRDT interface {
	Kind() CRDTKind
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}
