package node

import (
	"fmt"

	"github.com/mdcs-io/mdcs/internal/compaction"
	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
)

// foldDocument is the compaction.StateFolder for this store's document
// root: every delta-bearing node reachable from frontier decodes as a
// crdt.JSONValue delta and joins into state, starting from base (or an
// empty object if base is nil). Join order doesn't matter here — it's a
// join-semilattice by construction — only that every ancestor is visited
// exactly once, which dag.Ancestors already guarantees.
func foldDocument(dag merkledag.DAGStore, frontier []merkledag.Cid, base []byte) ([]byte, error) {
	state := crdt.NewJSONObject()
	if len(base) > 0 {
		if err := state.Unmarshal(base); err != nil {
			return nil, fmt.Errorf("node: decode base state: %w", err)
		}
	}

	seen := make(map[merkledag.Cid]struct{})
	for _, h := range frontier {
		ancestors, err := dag.Ancestors(h, nil)
		if err != nil {
			return nil, err
		}
		for _, a := range ancestors {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}

			n, err := dag.Get(a)
			if err != nil {
				return nil, err
			}
			if n.Payload.Kind != merkledag.PayloadDelta || len(n.Payload.Delta) == 0 {
				continue
			}

			delta := crdt.NewJSONObject()
			if err := delta.Unmarshal(n.Payload.Delta); err != nil {
				return nil, fmt.Errorf("node: decode delta at %s: %w", a, err)
			}
			state.JoinAssign(delta)
		}
	}

	return state.Marshal()
}

// joinDocument is the compaction.JoinDelta used by SnapshotManager to fold
// one more already-admitted delta into a running snapshot candidate,
// without re-walking the whole DAG the way foldDocument does.
func joinDocument(state []byte, delta []byte) ([]byte, error) {
	s := crdt.NewJSONObject()
	if len(state) > 0 {
		if err := s.Unmarshal(state); err != nil {
			return nil, fmt.Errorf("node: decode snapshot state: %w", err)
		}
	}
	d := crdt.NewJSONObject()
	if len(delta) > 0 {
		if err := d.Unmarshal(delta); err != nil {
			return nil, fmt.Errorf("node: decode snapshot delta: %w", err)
		}
	}
	s.JoinAssign(d)
	return s.Marshal()
}

var _ compaction.StateFolder = foldDocument
var _ compaction.JoinDelta = joinDocument
