package crdt_test

import (
	"testing"

	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNCounterIncrementDecrement(t *testing.T) {
	node1 := crdt.ReplicaID("node1")

	counter := crdt.NewPNCounter()
	assert.Equal(t, int64(0), counter.Value())

	counter.Increment(node1, 5)
	assert.Equal(t, int64(5), counter.Value())

	// Non-positive increments are a no-op.
	counter.Increment(node1, -3)
	assert.Equal(t, int64(5), counter.Value())

	counter.Decrement(node1, 3)
	assert.Equal(t, int64(2), counter.Value())

	counter.Decrement(node1, -2)
	assert.Equal(t, int64(2), counter.Value())
}

func TestPNCounterJoinConvergesAcrossReplicas(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	node2 := crdt.ReplicaID("node2")

	c1 := crdt.NewPNCounter()
	c2 := crdt.NewPNCounter()

	c1.Increment(node1, 5)
	c2.Increment(node2, 3)
	c2.Decrement(node2, 1)

	joined1 := c1.Join(c2)
	joined2 := c2.Join(c1)

	assert.Equal(t, int64(7), joined1.Value())
	assert.Equal(t, joined1.Value(), joined2.Value())
}

func TestPNCounterDeltaIsMinimal(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	counter := crdt.NewPNCounter()

	delta := counter.Increment(node1, 5)
	replayed := crdt.NewPNCounter()
	replayed.JoinAssign(delta)

	assert.Equal(t, counter.Value(), replayed.Value())
}

func TestPNCounterMarshalUnmarshalRoundTrips(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	counter1 := crdt.NewPNCounter()
	counter1.Increment(node1, 5)
	counter1.Decrement(node1, 2)

	data, err := counter1.Marshal()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	counter2 := crdt.NewPNCounter()
	err = counter2.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, counter1.Value(), counter2.Value())

	again, err := counter2.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestPNCounterUnmarshalRejectsWrongKind(t *testing.T) {
	gset := crdt.NewGSet[string]()
	gset.Add("x")
	data, err := gset.Marshal()
	require.NoError(t, err)

	counter := crdt.NewPNCounter()
	err = counter.Unmarshal(data)
	assert.Error(t, err)
}
