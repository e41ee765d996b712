package merkledag

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/mdcs-io/mdcs/internal/storage"
	"github.com/mdcs-io/mdcs/pkg/crdt"
)

const nodeKeyPrefix = "node/"

// BadgerDAGStore is a durable DAGStore: admitted nodes are persisted to a
// storage.Store (normally Badger-backed) as they are admitted, and the
// in-memory index is rebuilt from that keyspace on open. This mirrors the
// teacher's MerkleStore wrapper (mutex-guarded base store, rebuild-on-open,
// an in-memory structure mutated on every write) but keeps a DAG node
// arena instead of a flat-keyspace hash tree.
type BadgerDAGStore struct {
	base storage.Store
	mem  *MemoryDAGStore
}

type nodeWire struct {
	Parents []string `json:"parents"`
	Author  string   `json:"author"`
	Height  uint64   `json:"height"`
	Kind    uint8    `json:"kind"`
	Delta   []byte   `json:"delta,omitempty"`
}

func encodeNodeWire(n Node) nodeWire {
	parents := make([]string, len(n.Parents))
	for i, p := range n.Parents {
		parents[i] = p.String()
	}
	return nodeWire{
		Parents: parents,
		Author:  string(n.Author),
		Height:  n.Height,
		Kind:    uint8(n.Payload.Kind),
		Delta:   n.Payload.Delta,
	}
}

func (w nodeWire) decode() (Node, error) {
	parents := make([]Cid, len(w.Parents))
	for i, hexStr := range w.Parents {
		c, err := cidFromHex(hexStr)
		if err != nil {
			return Node{}, err
		}
		parents[i] = c
	}
	return Node{
		Parents: parents,
		Author:  crdt.ReplicaID(w.Author),
		Height:  w.Height,
		Payload: Payload{Kind: PayloadKind(w.Kind), Delta: w.Delta},
	}, nil
}

func cidFromHex(s string) (Cid, error) {
	var c Cid
	if len(s) != len(c)*2 {
		return c, fmt.Errorf("merkledag: malformed cid hex %q", s)
	}
	for i := range c {
		hi, err := hexNibble(s[i*2])
		if err != nil {
			return c, err
		}
		lo, err := hexNibble(s[i*2+1])
		if err != nil {
			return c, err
		}
		c[i] = hi<<4 | lo
	}
	return c, nil
}

func hexNibble(b byte) (byte, error) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', nil
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("merkledag: invalid hex digit %q", b)
	}
}

func nodeKey(c Cid) []byte {
	return []byte(nodeKeyPrefix + c.String())
}

// NewBadgerDAGStore wraps base, rebuilding its in-memory admission index
// from whatever nodes are already persisted under the node/ keyspace.
func NewBadgerDAGStore(base storage.Store, maxPending int) (*BadgerDAGStore, error) {
	s := &BadgerDAGStore{base: base, mem: NewMemoryDAGStore(maxPending)}

	s.mem.SetAdmitHook(func(c Cid, n Node) {
		if err := s.persist(c, n); err != nil {
			log.Printf("merkledag: failed to persist admitted node %s: %v", c, err)
		}
	})

	if err := s.rebuild(); err != nil {
		return nil, fmt.Errorf("merkledag: failed to rebuild dag index: %w", err)
	}
	return s, nil
}

func (s *BadgerDAGStore) persist(c Cid, n Node) error {
	data, err := json.Marshal(encodeNodeWire(n))
	if err != nil {
		return err
	}
	return s.base.Set(context.Background(), nodeKey(c), data)
}

// rebuild loads every persisted node and replays Put on each in ascending
// height order, so that by the time a child is replayed its parents have
// already been re-admitted.
func (s *BadgerDAGStore) rebuild() error {
	var nodes []Node
	err := s.base.Iterate(context.Background(), []byte(nodeKeyPrefix), func(_ []byte, value []byte) error {
		var w nodeWire
		if err := json.Unmarshal(value, &w); err != nil {
			return fmt.Errorf("merkledag: corrupt persisted node: %w", err)
		}
		n, err := w.decode()
		if err != nil {
			return err
		}
		nodes = append(nodes, n)
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Height < nodes[j].Height })
	for _, n := range nodes {
		if _, err := s.mem.Put(n); err != nil {
			return fmt.Errorf("merkledag: failed to replay persisted node during rebuild: %w", err)
		}
	}
	return nil
}

func (s *BadgerDAGStore) Put(n Node) (Cid, error) {
	return s.mem.Put(n)
}

func (s *BadgerDAGStore) Get(c Cid) (Node, error) {
	return s.mem.Get(c)
}

func (s *BadgerDAGStore) Has(c Cid) bool {
	return s.mem.Has(c)
}

func (s *BadgerDAGStore) Heads() []Cid {
	return s.mem.Heads()
}

func (s *BadgerDAGStore) MissingParents(n Node) []Cid {
	return s.mem.MissingParents(n)
}

func (s *BadgerDAGStore) Ancestors(c Cid, stop func(Cid) bool) ([]Cid, error) {
	return s.mem.Ancestors(c, stop)
}

func (s *BadgerDAGStore) FrontierVV(frontier []Cid) (crdt.VersionVector, error) {
	return s.mem.FrontierVV(frontier)
}

// Prune prunes c in the in-memory index, then overwrites its persisted
// record with the same skeletal (author, height only) entry so a restart's
// rebuild does not resurrect the pruned payload.
func (s *BadgerDAGStore) Prune(c Cid) error {
	if err := s.mem.Prune(c); err != nil {
		return err
	}
	skeleton, err := s.mem.Get(c)
	if err != nil {
		return err
	}
	return s.persist(c, skeleton)
}

// IsPruned reports whether c has been pruned down to a skeletal entry.
func (s *BadgerDAGStore) IsPruned(c Cid) bool {
	return s.mem.IsPruned(c)
}

// AdmittedDescending returns every admitted, not yet pruned Cid ordered by
// (height, Cid) descending.
func (s *BadgerDAGStore) AdmittedDescending() []Cid {
	return s.mem.AdmittedDescending()
}

// Close releases the underlying storage.Store.
func (s *BadgerDAGStore) Close() error {
	return s.base.Close()
}
