package crdt_test

import (
	"testing"

	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestORSetAddAndRemove(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	set := crdt.NewORSet[string]()

	set.Add("x", crdt.Tag{Replica: node1, Counter: 1})
	assert.True(t, set.Contains("x"))

	set.Remove("x")
	assert.False(t, set.Contains("x"))
}

func TestORSetConcurrentAddWinsOverRemove(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	node2 := crdt.ReplicaID("node2")

	replica1 := crdt.NewORSet[string]()
	replica1.Add("x", crdt.Tag{Replica: node1, Counter: 1})

	// replica2 starts from replica1's state, then concurrently replica1
	// removes x while replica2 re-adds it with a fresh tag neither side
	// has observed from the other yet.
	replica2 := crdt.NewORSet[string]()
	replica2.JoinAssign(replica1)

	removeDelta := replica1.Remove("x")

	addDelta := replica2.Add("x", crdt.Tag{Replica: node2, Counter: 1})

	merged := crdt.NewORSet[string]()
	merged.JoinAssign(replica1)
	merged.JoinAssign(addDelta)
	merged.JoinAssign(removeDelta)

	assert.True(t, merged.Contains("x"), "concurrent add must win over a remove that never observed its tag")
}

func TestORSetRemoveThenReAddMintsFreshTag(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	set := crdt.NewORSet[string]()

	set.Add("x", crdt.Tag{Replica: node1, Counter: 1})
	set.Remove("x")
	set.Add("x", crdt.Tag{Replica: node1, Counter: 2})

	assert.True(t, set.Contains("x"))
}

func TestORSetJoinIsCommutative(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	node2 := crdt.ReplicaID("node2")

	set1 := crdt.NewORSet[string]()
	set1.Add("a", crdt.Tag{Replica: node1, Counter: 1})

	set2 := crdt.NewORSet[string]()
	set2.Add("b", crdt.Tag{Replica: node2, Counter: 1})

	joined1 := set1.Join(set2)
	joined2 := set2.Join(set1)

	assert.ElementsMatch(t, joined1.Elements(), joined2.Elements())
}

func TestORSetMarshalDropsTombstonedTags(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	set := crdt.NewORSet[string]()
	set.Add("x", crdt.Tag{Replica: node1, Counter: 1})
	set.Remove("x")
	set.Add("y", crdt.Tag{Replica: node1, Counter: 2})

	data, err := set.Marshal()
	require.NoError(t, err)

	decoded := crdt.NewORSet[string]()
	err = decoded.Unmarshal(data)
	require.NoError(t, err)

	assert.False(t, decoded.Contains("x"))
	assert.True(t, decoded.Contains("y"))
	assert.NotContains(t, decoded.Elements(), "x")
}

func TestORSetUnmarshalRejectsWrongKind(t *testing.T) {
	counter := crdt.NewPNCounter()
	data, err := counter.Marshal()
	require.NoError(t, err)

	set := crdt.NewORSet[string]()
	err = set.Unmarshal(data)
	assert.Error(t, err)
}
