package crdt_test

import (
	"testing"

	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGSetAddIsMonotone(t *testing.T) {
	set := crdt.NewGSet[string]()
	assert.Empty(t, set.Elements())

	set.Add("a")
	set.Add("b")
	assert.True(t, set.Contains("a"))
	assert.True(t, set.Contains("b"))
	assert.False(t, set.Contains("c"))
}

func TestGSetAddDeltaIsSingleton(t *testing.T) {
	set := crdt.NewGSet[string]()
	delta := set.Add("a")
	assert.Equal(t, []string{"a"}, delta.Elements())

	noop := set.Add("a")
	assert.Empty(t, noop.Elements())
}

func TestGSetJoinIsUnion(t *testing.T) {
	set1 := crdt.NewGSet[string]()
	set1.Add("a")
	set2 := crdt.NewGSet[string]()
	set2.Add("b")

	joined := set1.Join(set2)
	assert.ElementsMatch(t, []string{"a", "b"}, joined.Elements())
}

func TestGSetLeqIsSubset(t *testing.T) {
	set1 := crdt.NewGSet[string]()
	set1.Add("a")
	set2 := crdt.NewGSet[string]()
	set2.Add("a")
	set2.Add("b")

	assert.True(t, set1.Leq(set2))
	assert.False(t, set2.Leq(set1))
}

func TestGSetMarshalUnmarshalRoundTrips(t *testing.T) {
	set1 := crdt.NewGSet[string]()
	set1.Add("b")
	set1.Add("a")

	data, err := set1.Marshal()
	require.NoError(t, err)

	set2 := crdt.NewGSet[string]()
	err = set2.Unmarshal(data)
	require.NoError(t, err)
	assert.ElementsMatch(t, set1.Elements(), set2.Elements())

	again, err := set2.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestGSetUnmarshalRejectsWrongKind(t *testing.T) {
	counter := crdt.NewPNCounter()
	data, err := counter.Marshal()
	require.NoError(t, err)

	set := crdt.NewGSet[string]()
	err = set.Unmarshal(data)
	assert.Error(t, err)
}
