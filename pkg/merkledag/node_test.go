package merkledag_test

import (
	"testing"

	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCidIsDeterministicRegardlessOfParentOrder(t *testing.T) {
	p1 := merkledag.ComputeCid(merkledag.NewGenesis("r1"))
	p2 := merkledag.ComputeCid(merkledag.NewGenesis("r2"))

	a := merkledag.NewDeltaNode("r1", []merkledag.Cid{p1, p2}, 1, []byte("delta"))
	b := merkledag.NewDeltaNode("r1", []merkledag.Cid{p2, p1}, 1, []byte("delta"))

	require.Equal(t, merkledag.ComputeCid(a), merkledag.ComputeCid(b))
}

func TestComputeCidChangesWithPayload(t *testing.T) {
	parent := merkledag.ComputeCid(merkledag.NewGenesis("r1"))
	a := merkledag.NewDeltaNode("r1", []merkledag.Cid{parent}, 1, []byte("a"))
	b := merkledag.NewDeltaNode("r1", []merkledag.Cid{parent}, 1, []byte("b"))

	assert.NotEqual(t, merkledag.ComputeCid(a), merkledag.ComputeCid(b))
}

func TestGenesisHasZeroHeightAndNoParents(t *testing.T) {
	g := merkledag.NewGenesis(crdt.ReplicaID("r1"))
	assert.Equal(t, uint64(0), g.Height)
	assert.Empty(t, g.Parents)
}

func TestCidStringRoundTripsThroughHex(t *testing.T) {
	c := merkledag.ComputeCid(merkledag.NewGenesis("r1"))
	assert.Len(t, c.String(), 64)

	parsed, err := merkledag.ParseCid(c.String())
	require.NoError(t, err)
	assert.Equal(t, c, parsed)
}
