package compaction_test

import (
	"testing"

	"github.com/mdcs-io/mdcs/internal/compaction"
	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStableVVIsBottomBeforeAnyObservation(t *testing.T) {
	m := compaction.NewStabilityMonitor()
	assert.False(t, m.IsStable("r1", 1))
}

func TestStableVVIsMeetOfSelfAndAllPeerFrontiers(t *testing.T) {
	m := compaction.NewStabilityMonitor()

	self := crdt.NewVersionVector()
	self["r1"] = 5
	self["r2"] = 3
	m.ObserveSelf(self)

	peerA := crdt.NewVersionVector()
	peerA["r1"] = 4
	peerA["r2"] = 3
	m.ReportPeerFrontier("peerA", peerA)

	peerB := crdt.NewVersionVector()
	peerB["r1"] = 5
	peerB["r2"] = 1
	m.ReportPeerFrontier("peerB", peerB)

	assert.True(t, m.IsStable("r1", 4))
	assert.False(t, m.IsStable("r1", 5))
	assert.False(t, m.IsStable("r2", 2))
}

func TestForgetPeerDropsItsFrontierFromTheMeet(t *testing.T) {
	m := compaction.NewStabilityMonitor()

	self := crdt.NewVersionVector()
	self["r1"] = 10
	m.ObserveSelf(self)

	stale := crdt.NewVersionVector()
	stale["r1"] = 1
	m.ReportPeerFrontier("stale-peer", stale)
	assert.False(t, m.IsStable("r1", 5))

	m.ForgetPeer("stale-peer")
	assert.True(t, m.IsStable("r1", 10))
}

func TestIsStableFrontierWalksAncestorsOfEveryHead(t *testing.T) {
	store := merkledag.NewMemoryDAGStore(0)
	genesis := merkledag.NewGenesis("r1")
	genesisCid, err := store.Put(genesis)
	require.NoError(t, err)

	child := merkledag.NewDeltaNode("r1", []merkledag.Cid{genesisCid}, 1, []byte("d1"))
	childCid, err := store.Put(child)
	require.NoError(t, err)

	m := compaction.NewStabilityMonitor()

	unstable := crdt.NewVersionVector()
	unstable["r1"] = 1
	m.ObserveSelf(unstable)
	m.ReportPeerFrontier("peer", unstable)

	stable, err := m.IsStableFrontier(store, []merkledag.Cid{childCid})
	require.NoError(t, err)
	assert.False(t, stable, "child (height 1) needs counter 2 to be covered")

	full := crdt.NewVersionVector()
	full["r1"] = 2
	m.ObserveSelf(full)
	m.ReportPeerFrontier("peer", full)

	stable, err = m.IsStableFrontier(store, []merkledag.Cid{childCid})
	require.NoError(t, err)
	assert.True(t, stable)
}
