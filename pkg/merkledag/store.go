package merkledag

import (
	"sort"
	"sync"

	"github.com/google/btree"
	"github.com/mdcs-io/mdcs/pkg/crdt"
)

// DAGStore is the storage contract a Merkle-DAG backend must satisfy,
// independent of whether it is in-memory or Badger-backed.
type DAGStore interface {
	// Put computes n's Cid, verifies it is not already present, and
	// either admits it (all parents present, height consistent) or
	// buffers it pending its missing parents. Returns n's Cid regardless
	// of whether it was admitted or buffered.
	Put(n Node) (Cid, error)
	// Get returns the node stored under c, or ErrNotFound.
	Get(c Cid) (Node, error)
	// Has reports whether c is admitted in the store. Buffered
	// (not-yet-admitted) nodes are not Has.
	Has(c Cid) bool
	// Heads returns the current minimal antichain of admitted nodes.
	Heads() []Cid
	// MissingParents returns the subset of n.Parents not yet admitted.
	MissingParents(n Node) []Cid
	// Ancestors walks admitted ancestors of c breadth-first by strictly
	// decreasing height, ties broken by Cid, stopping at any Cid for
	// which stop returns true (that Cid is included, its parents are
	// not visited).
	Ancestors(c Cid, stop func(Cid) bool) ([]Cid, error)
	// FrontierVV derives a version vector from a frontier: for each
	// replica, the maximum author-counter observed on any ancestor.
	FrontierVV(frontier []Cid) (crdt.VersionVector, error)
	// Prune removes c's payload and parent edges, retaining a skeletal
	// marker (author, height only) so parent lookups from not-yet-pruned
	// descendants keep working. c must be admitted, not a current head.
	Prune(c Cid) error
	// IsPruned reports whether c has been pruned.
	IsPruned(c Cid) bool
	// AdmittedDescending returns every admitted, not yet pruned Cid ordered
	// by (height, Cid) descending, the order a pruning-candidate scan walks.
	AdmittedDescending() []Cid
}

// heightItem is the element kept in the btree index of admitted nodes,
// ordered ascending by (Height, Cid) so a reverse scan yields the
// descending order AdmittedDescending returns.
type heightItem struct {
	Height uint64
	Cid    Cid
}

func heightItemLess(a, b heightItem) bool {
	if a.Height != b.Height {
		return a.Height < b.Height
	}
	return a.Cid.Less(b.Cid)
}

// MemoryDAGStore is an in-memory DAGStore: an arena of admitted nodes, a
// pending-parent buffer keyed by the missing parent's Cid, and a
// btree-ordered index of admitted, unpruned (height, Cid) pairs that
// AdmittedDescending reads.
type MemoryDAGStore struct {
	mu sync.RWMutex

	admitted map[Cid]Node
	heads    map[Cid]struct{}
	children map[Cid][]Cid // admitted parent Cid -> admitted children Cids, for head recomputation

	pending    map[Cid]Node  // buffered node Cid -> the node itself
	waitingOn  map[Cid][]Cid // missing parent Cid -> buffered node Cids depending on it
	maxPending int
	index      *btree.BTreeG[heightItem]
	pruned     map[Cid]struct{}

	onAdmit func(Cid, Node) // optional hook, invoked synchronously as each node transitions to admitted
}

// SetAdmitHook installs fn to be called synchronously, in topological
// order, for every node as it transitions from unknown/pending to admitted
// (including dependents unblocked transitively by a single Put). Used by
// Admitter to deliver admitted payloads downstream without re-deriving
// admission order itself.
func (s *MemoryDAGStore) SetAdmitHook(fn func(Cid, Node)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAdmit = fn
}

// NewMemoryDAGStore builds an empty store. maxPending bounds the number of
// simultaneously buffered (not-yet-admitted) nodes; 0 means unbounded.
func NewMemoryDAGStore(maxPending int) *MemoryDAGStore {
	return &MemoryDAGStore{
		admitted:   make(map[Cid]Node),
		heads:      make(map[Cid]struct{}),
		children:   make(map[Cid][]Cid),
		pending:    make(map[Cid]Node),
		waitingOn:  make(map[Cid][]Cid),
		maxPending: maxPending,
		index:      btree.NewG(32, heightItemLess),
		pruned:     make(map[Cid]struct{}),
	}
}

func (s *MemoryDAGStore) Put(n Node) (Cid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(n)
}

// put is the unlocked core of Put, reused by admitDependents when a node's
// missing parent finally arrives.
func (s *MemoryDAGStore) put(n Node) (Cid, error) {
	cid := ComputeCid(n)

	if _, ok := s.admitted[cid]; ok {
		return cid, nil
	}
	if _, ok := s.pending[cid]; ok {
		return cid, nil
	}

	missing := s.missingParentsLocked(n)
	if len(missing) > 0 {
		if s.maxPending > 0 && len(s.pending) >= s.maxPending {
			return cid, newErr(ErrKindCapacity, "Put", ErrPendingBufferFull)
		}
		s.pending[cid] = n
		for _, m := range missing {
			s.waitingOn[m] = append(s.waitingOn[m], cid)
		}
		return cid, nil
	}

	if err := s.admit(cid, n); err != nil {
		return cid, err
	}
	return cid, nil
}

// admit records n as admitted (height/parent checks already known to pass),
// updates heads and the ancestor index, then recursively admits any
// buffered dependents that were only waiting on n.
func (s *MemoryDAGStore) admit(cid Cid, n Node) error {
	var maxParentHeight uint64
	hasParent := false
	for _, p := range n.Parents {
		parent, ok := s.admitted[p]
		if !ok {
			return newErr(ErrKindDependency, "admit", ErrMissingParents)
		}
		hasParent = true
		if parent.Height > maxParentHeight {
			maxParentHeight = parent.Height
		}
		if parent.Height >= n.Height {
			return newErr(ErrKindIntegrity, "admit", ErrCycle)
		}
	}
	if hasParent && n.Height != maxParentHeight+1 {
		return newErr(ErrKindIntegrity, "admit", ErrCycle)
	}

	s.admitted[cid] = n
	s.index.ReplaceOrInsert(heightItem{Height: n.Height, Cid: cid})

	for _, p := range n.Parents {
		s.children[p] = append(s.children[p], cid)
		delete(s.heads, p)
	}
	if len(s.children[cid]) == 0 {
		s.heads[cid] = struct{}{}
	}

	if s.onAdmit != nil {
		s.onAdmit(cid, n)
	}

	return s.admitDependents(cid)
}

// admitDependents re-examines every buffered node that was waiting on cid;
// any whose parents are now all admitted is itself admitted (and may in
// turn unblock further dependents).
func (s *MemoryDAGStore) admitDependents(cid Cid) error {
	waiters := s.waitingOn[cid]
	delete(s.waitingOn, cid)

	for _, waiterCid := range waiters {
		waiter, ok := s.pending[waiterCid]
		if !ok {
			continue
		}
		if len(s.missingParentsLocked(waiter)) > 0 {
			continue
		}
		delete(s.pending, waiterCid)
		if err := s.admit(waiterCid, waiter); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryDAGStore) missingParentsLocked(n Node) []Cid {
	var missing []Cid
	for _, p := range n.Parents {
		if _, ok := s.admitted[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

func (s *MemoryDAGStore) Get(c Cid) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.admitted[c]
	if !ok {
		return Node{}, ErrNotFound
	}
	return n, nil
}

func (s *MemoryDAGStore) Has(c Cid) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.admitted[c]
	return ok
}

func (s *MemoryDAGStore) Heads() []Cid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	heads := make([]Cid, 0, len(s.heads))
	for c := range s.heads {
		heads = append(heads, c)
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].Less(heads[j]) })
	return heads
}

func (s *MemoryDAGStore) MissingParents(n Node) []Cid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.missingParentsLocked(n)
}

// AdmittedDescending returns every admitted Cid ordered by (height, Cid)
// descending, using the btree index rather than a fresh sort on every
// call. Pruned Cids are left out, since Prune removes them from the index. This is the order compaction candidate scans walk in: newest
// (tallest) nodes first, so a scan can stop as soon as it reaches
// unstable heights.
func (s *MemoryDAGStore) AdmittedDescending() []Cid {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Cid, 0, s.index.Len())
	s.index.Descend(func(item heightItem) bool {
		out = append(out, item.Cid)
		return true
	})
	return out
}

// Prune drops c's payload and parent edges, keeping a skeletal entry
// carrying only Author and Height so that any not-yet-pruned descendant
// can still resolve c as a parent during traversal. c must already be
// admitted and must not be a current head.
func (s *MemoryDAGStore) Prune(c Cid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.admitted[c]
	if !ok {
		return newErr(ErrKindLogic, "Prune", ErrNotFound)
	}
	if _, isPruned := s.pruned[c]; isPruned {
		return newErr(ErrKindLogic, "Prune", ErrAlreadyPruned)
	}
	if _, isHead := s.heads[c]; isHead {
		return newErr(ErrKindLogic, "Prune", ErrCannotPruneHead)
	}

	s.admitted[c] = Node{Author: n.Author, Height: n.Height}
	s.index.Delete(heightItem{Height: n.Height, Cid: c})
	delete(s.children, c)
	s.pruned[c] = struct{}{}
	return nil
}

// IsPruned reports whether c has been pruned down to a skeletal entry.
func (s *MemoryDAGStore) IsPruned(c Cid) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pruned[c]
	return ok
}
