package merkledag_test

import (
	"testing"

	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain inserts a straight-line chain genesis -> n1 -> n2 -> ... and
// returns the Cids in insertion order.
func buildChain(t *testing.T, store *merkledag.MemoryDAGStore, author crdt.ReplicaID, length int) []merkledag.Cid {
	t.Helper()

	genesis := merkledag.NewGenesis(author)
	cid, err := store.Put(genesis)
	require.NoError(t, err)
	cids := []merkledag.Cid{cid}

	for i := 1; i <= length; i++ {
		n := merkledag.NewDeltaNode(author, []merkledag.Cid{cids[len(cids)-1]}, uint64(i), []byte{byte(i)})
		nc, err := store.Put(n)
		require.NoError(t, err)
		cids = append(cids, nc)
	}
	return cids
}

func TestAncestorsWalksStrictlyDecreasingHeightBreadthFirst(t *testing.T) {
	store := merkledag.NewMemoryDAGStore(0)
	cids := buildChain(t, store, crdt.ReplicaID("r1"), 3)

	ancestors, err := store.Ancestors(cids[3], nil)
	require.NoError(t, err)
	assert.Equal(t, cids[3], ancestors[0])
	assert.Equal(t, 4, len(ancestors))

	var lastHeight = -1
	seen := map[merkledag.Cid]bool{}
	for _, c := range ancestors {
		assert.False(t, seen[c], "ancestor visited twice")
		seen[c] = true
		n, err := store.Get(c)
		require.NoError(t, err)
		if lastHeight >= 0 {
			assert.LessOrEqual(t, int(n.Height), lastHeight)
		}
		lastHeight = int(n.Height)
	}
}

func TestAncestorsStopsAtPredicate(t *testing.T) {
	store := merkledag.NewMemoryDAGStore(0)
	cids := buildChain(t, store, crdt.ReplicaID("r1"), 3)

	ancestors, err := store.Ancestors(cids[3], func(c merkledag.Cid) bool { return c == cids[1] })
	require.NoError(t, err)

	assert.Contains(t, ancestors, cids[1])
	assert.NotContains(t, ancestors, cids[0])
}

func TestFrontierVVCountsMaxHeightPerAuthor(t *testing.T) {
	store := merkledag.NewMemoryDAGStore(0)
	cids := buildChain(t, store, crdt.ReplicaID("r1"), 2)

	vv, err := store.FrontierVV([]merkledag.Cid{cids[len(cids)-1]})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), vv[crdt.ReplicaID("r1")])
}
