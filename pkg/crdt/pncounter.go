package crdt

import "encoding/json"

// PNCounter is a grow/shrink counter built from two ReplicaID-keyed
// maximum-wins maps: P holds each replica's running total of increments,
// N its running total of decrements. The counter's value is sum(P) -
// sum(N); join takes the pointwise maximum of each map, same as a G-Counter,
// so a replica's own entries only ever grow.
type PNCounter struct {
	p map[ReplicaID]int64
	n map[ReplicaID]int64
}

// NewPNCounter returns the bottom element.
func NewPNCounter() *PNCounter {
	return &PNCounter{p: make(map[ReplicaID]int64), n: make(map[ReplicaID]int64)}
}

// Bottom implements Lattice.
func (c *PNCounter) Bottom() *PNCounter { return NewPNCounter() }

// Increment adds by (which must be positive; non-positive values are a
// no-op) to replica's running total and returns the delta.
func (c *PNCounter) Increment(replica ReplicaID, by int64) *PNCounter {
	delta := NewPNCounter()
	if by <= 0 {
		return delta
	}
	c.p[replica] += by
	delta.p[replica] = c.p[replica]
	return delta
}

// Decrement adds by (which must be positive) to replica's running
// subtraction total and returns the delta.
func (c *PNCounter) Decrement(replica ReplicaID, by int64) *PNCounter {
	delta := NewPNCounter()
	if by <= 0 {
		return delta
	}
	c.n[replica] += by
	delta.n[replica] = c.n[replica]
	return delta
}

// Value returns sum(P) - sum(N).
func (c *PNCounter) Value() int64 {
	var total int64
	for _, v := range c.p {
		total += v
	}
	for _, v := range c.n {
		total -= v
	}
	return total
}

// Join implements Lattice: pointwise max on each replica-keyed map.
func (c *PNCounter) Join(other *PNCounter) *PNCounter {
	out := NewPNCounter()
	for r, v := range c.p {
		out.p[r] = v
	}
	for r, v := range other.p {
		if v > out.p[r] {
			out.p[r] = v
		}
	}
	for r, v := range c.n {
		out.n[r] = v
	}
	for r, v := range other.n {
		if v > out.n[r] {
			out.n[r] = v
		}
	}
	return out
}

// Leq implements Lattice: every entry of self must be <= the matching
// entry of other (absent entries count as zero).
func (c *PNCounter) Leq(other *PNCounter) bool {
	for r, v := range c.p {
		if v > other.p[r] {
			return false
		}
	}
	for r, v := range c.n {
		if v > other.n[r] {
			return false
		}
	}
	return true
}

// JoinAssign merges delta into c in place.
func (c *PNCounter) JoinAssign(delta *PNCounter) {
	for r, v := range delta.p {
		if v > c.p[r] {
			c.p[r] = v
		}
	}
	for r, v := range delta.n {
		if v > c.n[r] {
			c.n[r] = v
		}
	}
}

type pnCounterWire struct {
	Kind CRDTKind             `json:"kind"`
	P    map[ReplicaID]int64  `json:"p"`
	N    map[ReplicaID]int64  `json:"n"`
}

// Kind implements CRDT.
func (c *PNCounter) Kind() CRDTKind { return KindPNCounter }

// Marshal produces the canonical encoding. Map keys are sorted by
// encoding/json when marshaling map[ReplicaID]int64, which already gives
// the deterministic order canonical encoding requires.
func (c *PNCounter) Marshal() ([]byte, error) {
	return canonicalJSON(pnCounterWire{Kind: KindPNCounter, P: c.p, N: c.n})
}

// Unmarshal decodes a PNCounter from its canonical form.
func (c *PNCounter) Unmarshal(data []byte) error {
	var wire pnCounterWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return newErr(ErrKindLogic, "unmarshal", err)
	}
	if wire.Kind != KindPNCounter {
		return newErr(ErrKindLogic, "unmarshal", ErrUnknownKind)
	}
	c.p = wire.P
	if c.p == nil {
		c.p = make(map[ReplicaID]int64)
	}
	c.n = wire.N
	if c.n == nil {
		c.n = make(map[ReplicaID]int64)
	}
	return nil
}
