package merkledag

import (
	"sort"

	"github.com/mdcs-io/mdcs/pkg/crdt"
)

// Ancestors walks admitted ancestors of c breadth-first by strictly
// decreasing height, ties broken by Cid, giving deterministic iteration
// order regardless of insertion history. A Cid for which stop returns true
// is included in the result but its parents are not visited.
func (s *MemoryDAGStore) Ancestors(c Cid, stop func(Cid) bool) ([]Cid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.admitted[c]; !ok {
		return nil, ErrNotFound
	}

	visited := map[Cid]struct{}{}
	var order []Cid
	frontier := []Cid{c}

	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool {
			hi, hj := s.admitted[frontier[i]].Height, s.admitted[frontier[j]].Height
			if hi != hj {
				return hi > hj
			}
			return frontier[i].Less(frontier[j])
		})

		// Take the tallest pending Cid; its parents are all shorter, so
		// the walk never emits a node taller than one already emitted.
		n := frontier[0]
		frontier = frontier[1:]
		if _, seen := visited[n]; seen {
			continue
		}
		visited[n] = struct{}{}
		order = append(order, n)

		if stop != nil && stop(n) {
			continue
		}
		node := s.admitted[n]
		for _, p := range node.Parents {
			if _, seen := visited[p]; !seen {
				frontier = append(frontier, p)
			}
		}
	}

	return order, nil
}

// FrontierVV derives a version vector from frontier: for each replica, the
// maximum author-counter observed on any ancestor (including the frontier
// members themselves). Counters are recovered from each admitted node's
// author/height pairing via the caller-supplied delta payload in general,
// but since the DAG layer only tracks (author, height) and not the CRDT
// tag counter directly, FrontierVV here uses height+1 at author as the
// counter surrogate (a genesis node, at height 0, counts as 1): the Nth
// node authored by a replica on a single causal
// chain carries strictly increasing height, so the maximum height along any
// path authored by R is monotonic with R's tag counter.
func (s *MemoryDAGStore) FrontierVV(frontier []Cid) (crdt.VersionVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vv := crdt.NewVersionVector()
	visited := map[Cid]struct{}{}
	var stack []Cid
	stack = append(stack, frontier...)

	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[c]; seen {
			continue
		}
		visited[c] = struct{}{}

		node, ok := s.admitted[c]
		if !ok {
			return nil, ErrNotFound
		}
		if node.Height+1 > vv[node.Author] {
			vv[node.Author] = node.Height + 1
		}
		stack = append(stack, node.Parents...)
	}

	return vv, nil
}
