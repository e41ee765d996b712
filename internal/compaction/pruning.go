package compaction

import (
	"bytes"

	"github.com/mdcs-io/mdcs/pkg/merkledag"
)

// Pruner removes admitted, stable, non-head nodes from a DAGStore.
type Pruner struct {
	dag merkledag.DAGStore
}

// NewPruner builds a Pruner operating against dag.
func NewPruner(dag merkledag.DAGStore) *Pruner {
	return &Pruner{dag: dag}
}

// Candidates scans ordered (normally dag.AdmittedDescending()) and returns
// the subset that is prunable right now: admitted, not already pruned, not
// a current head, and covered by stable.
func (p *Pruner) Candidates(stable *StabilityMonitor, ordered []merkledag.Cid) ([]merkledag.Cid, error) {
	heads := make(map[merkledag.Cid]struct{})
	for _, h := range p.dag.Heads() {
		heads[h] = struct{}{}
	}
	stableVV := stable.StableVV()

	var out []merkledag.Cid
	for _, c := range ordered {
		if _, isHead := heads[c]; isHead {
			continue
		}
		if p.dag.IsPruned(c) {
			continue
		}
		n, err := p.dag.Get(c)
		if err != nil {
			return nil, err
		}
		if !stableVV.Covers(n.Author, n.Height+1) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Prune prunes every Cid in candidates, stopping at the first failure and
// returning how many were pruned before it.
func (p *Pruner) Prune(candidates []merkledag.Cid) (int, error) {
	var n int
	for _, c := range candidates {
		if err := p.dag.Prune(c); err != nil {
			return n, newErr(ErrKindLogic, "Prune", err)
		}
		n++
	}
	return n, nil
}

// PruningVerifier checks the invariant a pruning pass must never violate:
// the lattice state folded from the DAG's remaining admitted nodes (plus
// whatever a snapshot already captured) must be unchanged by pruning.
// Callers compute the fold themselves before and after a Prune call, since
// only they know how to decode and join delta payloads.
type PruningVerifier struct{}

// NewPruningVerifier returns a PruningVerifier.
func NewPruningVerifier() *PruningVerifier {
	return &PruningVerifier{}
}

// Verify reports whether before and after encode the same state. A false
// result means the just-completed pruning pass is unsound and must not be
// trusted; the caller should treat it as ErrPruneChangedState.
func (v *PruningVerifier) Verify(before, after []byte) bool {
	return bytes.Equal(before, after)
}
