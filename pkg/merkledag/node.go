// Package merkledag implements a content-addressed, hash-linked DAG of
// delta-carrying nodes: the causal backbone that lets replicas detect gaps,
// order deliveries topologically, and derive a version vector for a given
// frontier. It has no notion of consensus or voting; every admitted node is
// accepted on its own hash and parent-linkage merits.
package merkledag

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/mdcs-io/mdcs/pkg/crdt"
)

// Cid is the content identifier of a Node: the sha256 digest of its
// canonical encoding.
type Cid [32]byte

// IsZero reports whether c is the zero Cid, used as a sentinel for "no
// parent" in root-level bookkeeping.
func (c Cid) IsZero() bool {
	return c == Cid{}
}

// Less orders Cids lexicographically by byte value, used to break ties
// between nodes of equal height during traversal.
func (c Cid) Less(other Cid) bool {
	for i := range c {
		if c[i] != other[i] {
			return c[i] < other[i]
		}
	}
	return false
}

func (c Cid) String() string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, len(c)*2)
	for i, b := range c {
		buf[i*2] = hexDigits[b>>4]
		buf[i*2+1] = hexDigits[b&0x0f]
	}
	return string(buf)
}

// ParseCid decodes a Cid from its hex string form, the inverse of
// Cid.String.
func ParseCid(s string) (Cid, error) {
	return cidFromHex(s)
}

// PayloadKind distinguishes a genesis node (no delta, marks the start of a
// replica's contribution) from a delta node carrying a serialized lattice
// delta.
type PayloadKind uint8

const (
	// PayloadGenesis marks a node with no delta payload.
	PayloadGenesis PayloadKind = iota
	// PayloadDelta carries a serialized lattice delta.
	PayloadDelta
)

// Payload is a node's content: either Genesis or a Delta of opaque,
// already-canonically-encoded bytes.
type Payload struct {
	Kind  PayloadKind
	Delta []byte
}

// GenesisPayload returns the Genesis payload.
func GenesisPayload() Payload {
	return Payload{Kind: PayloadGenesis}
}

// DeltaPayload wraps a serialized lattice delta as a node payload.
func DeltaPayload(data []byte) Payload {
	return Payload{Kind: PayloadDelta, Delta: data}
}

// Node is one entry in the Merkle-DAG: a set of parent Cids, the payload it
// carries, the replica that authored it, and its height (1 + max parent
// height, 0 for genesis).
type Node struct {
	Parents []Cid
	Payload Payload
	Author  crdt.ReplicaID
	Height  uint64
}

// sortedParents returns a copy of n.Parents sorted ascending, the order the
// canonical encoding and Cid computation both require.
func (n Node) sortedParents() []Cid {
	parents := make([]Cid, len(n.Parents))
	copy(parents, n.Parents)
	sort.Slice(parents, func(i, j int) bool { return parents[i].Less(parents[j]) })
	return parents
}

// Encode produces the canonical byte encoding of n: sorted parents, then
// author, then height, then payload. Two nodes with the same fields (up to
// parent order) encode identically, which is what makes Cid a stable
// content address.
func (n Node) Encode() []byte {
	parents := n.sortedParents()

	buf := make([]byte, 0, 32*len(parents)+len(n.Author)+9+len(n.Payload.Delta)+2)

	var countBuf [8]byte
	binary.BigEndian.PutUint64(countBuf[:], uint64(len(parents)))
	buf = append(buf, countBuf[:]...)
	for _, p := range parents {
		buf = append(buf, p[:]...)
	}

	var authorLen [8]byte
	binary.BigEndian.PutUint64(authorLen[:], uint64(len(n.Author)))
	buf = append(buf, authorLen[:]...)
	buf = append(buf, []byte(n.Author)...)

	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], n.Height)
	buf = append(buf, heightBuf[:]...)

	buf = append(buf, byte(n.Payload.Kind))
	buf = append(buf, n.Payload.Delta...)

	return buf
}

// ComputeCid hashes n's canonical encoding.
func ComputeCid(n Node) Cid {
	return sha256.Sum256(n.Encode())
}

// NewGenesis builds the genesis node for a replica: height 0, no parents.
func NewGenesis(author crdt.ReplicaID) Node {
	return Node{Author: author, Payload: GenesisPayload(), Height: 0}
}

// NewDeltaNode builds a node carrying delta over parents, whose height must
// be 1 + max(parent heights); the caller (Store.Put) is responsible for
// supplying that height, since only the store knows the parents' recorded
// heights.
func NewDeltaNode(author crdt.ReplicaID, parents []Cid, height uint64, delta []byte) Node {
	return Node{Parents: parents, Payload: DeltaPayload(delta), Author: author, Height: height}
}
