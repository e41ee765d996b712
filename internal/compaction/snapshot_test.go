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

func newMetaStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewBadgerStore(filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// concatJoin is a trivial JoinDelta standing in for a real lattice Join:
// it appends each delta to the running state, in order.
func concatJoin(state []byte, delta []byte) ([]byte, error) {
	return append(append([]byte{}, state...), delta...), nil
}

func vv(entries ...interface{}) crdt.VersionVector {
	out := crdt.NewVersionVector()
	for i := 0; i < len(entries); i += 2 {
		out[entries[i].(crdt.ReplicaID)] = entries[i+1].(uint64)
	}
	return out
}

func TestMaybeSnapshotSkipsWhenStableVVHasNotProgressed(t *testing.T) {
	meta := newMetaStore(t)
	mgr := compaction.NewSnapshotManager(meta, nil, nil, concatJoin, compaction.ThresholdPolicy{MinNewNodes: 1})

	mgr.Observe([]byte("a"))
	frontier := vv(crdt.ReplicaID("r1"), uint64(1))
	snap, err := mgr.MaybeSnapshot(frontier, merkledag.Cid{0x01}, 1)
	require.NoError(t, err)
	require.NotNil(t, snap)

	snap2, err := mgr.MaybeSnapshot(frontier, merkledag.Cid{0x01}, 1)
	require.NoError(t, err)
	assert.Nil(t, snap2, "no progress since last snapshot should produce no new snapshot")
}

func TestMaybeSnapshotWaitsForThreshold(t *testing.T) {
	meta := newMetaStore(t)
	mgr := compaction.NewSnapshotManager(meta, nil, nil, concatJoin, compaction.ThresholdPolicy{MinNewNodes: 3})

	mgr.Observe([]byte("a"))
	frontier1 := vv(crdt.ReplicaID("r1"), uint64(1))
	snap, err := mgr.MaybeSnapshot(frontier1, merkledag.Cid{0x01}, 1)
	require.NoError(t, err)
	require.NotNil(t, snap, "first snapshot always takes, there is nothing to compare against yet")

	mgr.Observe([]byte("b"))
	frontier2 := vv(crdt.ReplicaID("r1"), uint64(2))
	snap2, err := mgr.MaybeSnapshot(frontier2, merkledag.Cid{0x02}, 2)
	require.NoError(t, err)
	assert.Nil(t, snap2, "only one new node observed, threshold is 3")

	mgr.Observe([]byte("c"))
	mgr.Observe([]byte("d"))
	frontier3 := vv(crdt.ReplicaID("r1"), uint64(3))
	snap3, err := mgr.MaybeSnapshot(frontier3, merkledag.Cid{0x03}, 3)
	require.NoError(t, err)
	require.NotNil(t, snap3, "three new nodes meets the threshold")
	assert.Equal(t, []byte("abcd"), snap3.State, "state is the last snapshot's state with every delta observed since folded in")
}

func TestLoadLatestRecoversTheHighestHeightSnapshot(t *testing.T) {
	meta := newMetaStore(t)
	mgr := compaction.NewSnapshotManager(meta, nil, nil, concatJoin, compaction.ThresholdPolicy{MinNewNodes: 1})

	mgr.Observe([]byte("a"))
	_, err := mgr.MaybeSnapshot(vv(crdt.ReplicaID("r1"), uint64(1)), merkledag.Cid{0x01}, 1)
	require.NoError(t, err)

	mgr.Observe([]byte("b"))
	snap2, err := mgr.MaybeSnapshot(vv(crdt.ReplicaID("r1"), uint64(2)), merkledag.Cid{0x02}, 2)
	require.NoError(t, err)
	require.NotNil(t, snap2)

	reloaded := compaction.NewSnapshotManager(meta, nil, nil, concatJoin, compaction.ThresholdPolicy{MinNewNodes: 1})
	loaded, err := reloaded.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, snap2.CreatedAtHeight, loaded.CreatedAtHeight)
	assert.True(t, bytes.Equal(snap2.State, loaded.State))
}

func TestLoadLatestReturnsErrNoSnapshotWhenNoneCommitted(t *testing.T) {
	meta := newMetaStore(t)
	mgr := compaction.NewSnapshotManager(meta, nil, nil, concatJoin, compaction.ThresholdPolicy{})

	_, err := mgr.LoadLatest()
	assert.ErrorIs(t, err, compaction.ErrNoSnapshot)
}

func TestMaybeSnapshotFiresOnIntervalThreshold(t *testing.T) {
	meta := newMetaStore(t)
	mgr := compaction.NewSnapshotManager(meta, nil, nil, concatJoin, compaction.ThresholdPolicy{MinInterval: time.Millisecond})

	mgr.Observe([]byte("a"))
	_, err := mgr.MaybeSnapshot(vv(crdt.ReplicaID("r1"), uint64(1)), merkledag.Cid{0x01}, 1)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	mgr.Observe([]byte("b"))
	snap2, err := mgr.MaybeSnapshot(vv(crdt.ReplicaID("r1"), uint64(2)), merkledag.Cid{0x02}, 2)
	require.NoError(t, err)
	require.NotNil(t, snap2, "elapsed time past MinInterval should trigger a snapshot regardless of node/byte counts")
}
