package compaction_test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdcs-io/mdcs/internal/compaction"
	"github.com/mdcs-io/mdcs/internal/storage"
	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompactorTestDeps(t *testing.T) (merkledag.DAGStore, *compaction.StabilityMonitor, *compaction.SnapshotManager) {
	t.Helper()
	dag := merkledag.NewMemoryDAGStore(0)

	meta, err := storage.NewBadgerStore(filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	snapshots := compaction.NewSnapshotManager(meta, nil, nil, concatJoin, compaction.ThresholdPolicy{MinNewNodes: 1})
	return dag, compaction.NewStabilityMonitor(), snapshots
}

func TestCompactorRunOnceIsANoOpOnAnEmptyDAG(t *testing.T) {
	dag, stability, snapshots := newCompactorTestDeps(t)
	c := compaction.NewCompactor(dag, stability, snapshots, concatFold, time.Hour, 0)

	assert.NoError(t, c.RunOnce())
	assert.Nil(t, snapshots.Latest())
}

func TestCompactorSnapshotsAndPrunesOnceEverythingIsStable(t *testing.T) {
	dag, stability, snapshots := newCompactorTestDeps(t)

	genesisCid, err := dag.Put(merkledag.NewGenesis("r1"))
	require.NoError(t, err)
	childCid, err := dag.Put(merkledag.NewDeltaNode("r1", []merkledag.Cid{genesisCid}, 1, []byte("d1")))
	require.NoError(t, err)

	snapshots.Observe(nil) // genesis has no delta payload
	snapshots.Observe([]byte("d1"))

	// This replica is its own only peer: self-observation alone makes its
	// own frontier stable.
	stability.ReportPeerFrontier("self-loopback", mustFrontierVV(t, dag, []merkledag.Cid{childCid}))

	c := compaction.NewCompactor(dag, stability, snapshots, concatFold, time.Hour, 0)
	require.NoError(t, c.RunOnce())

	assert.NotNil(t, snapshots.Latest())
	assert.True(t, dag.IsPruned(genesisCid), "genesis is stable and not the head, so it should be pruned")
	assert.False(t, dag.IsPruned(childCid), "the head is never pruned")
}

func mustFrontierVV(t *testing.T, dag merkledag.DAGStore, heads []merkledag.Cid) crdt.VersionVector {
	t.Helper()
	vv, err := dag.FrontierVV(heads)
	require.NoError(t, err)
	return vv
}

// concatFold folds every ancestor's delta payload into base, in the
// deterministic order Ancestors returns, standing in for a real lattice
// Join in these tests. A payload already contained in the state is not
// appended again, so folding a delta twice is a no-op, as with a join.
func concatFold(dag merkledag.DAGStore, frontier []merkledag.Cid, base []byte) ([]byte, error) {
	state := append([]byte{}, base...)
	seen := map[merkledag.Cid]struct{}{}
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
			if bytes.Contains(state, n.Payload.Delta) {
				continue
			}
			state = append(state, n.Payload.Delta...)
		}
	}
	return state, nil
}
