package crdt_test

import (
	"testing"

	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoPSetAddAndContains(t *testing.T) {
	set := crdt.NewTwoPSet[string]()
	assert.Empty(t, set.Elements())

	set.Add("a")
	assert.True(t, set.Contains("a"))
	assert.False(t, set.Contains("b"))
}

func TestTwoPSetRemove(t *testing.T) {
	set := crdt.NewTwoPSet[string]()
	set.Add("a")
	set.Remove("a")
	assert.False(t, set.Contains("a"))
}

func TestTwoPSetReAddAfterRemoveIsRejected(t *testing.T) {
	set := crdt.NewTwoPSet[string]()
	set.Add("a")
	set.Remove("a")
	set.Add("a")
	assert.False(t, set.Contains("a"), "element must not be re-addable after removal")
}

func TestTwoPSetJoinConverges(t *testing.T) {
	set1 := crdt.NewTwoPSet[string]()
	set2 := crdt.NewTwoPSet[string]()

	set1.Add("a")
	set1.Add("b")

	set2.Add("b")
	set2.Add("c")
	set2.Remove("b")

	joined1 := set1.Join(set2)
	elements := joined1.Elements()
	assert.Len(t, elements, 2)
	assert.Contains(t, elements, "a")
	assert.Contains(t, elements, "c")
	assert.NotContains(t, elements, "b")

	joined2 := set2.Join(set1)
	assert.ElementsMatch(t, joined1.Elements(), joined2.Elements())
}

func TestTwoPSetMarshalUnmarshalRoundTrips(t *testing.T) {
	set1 := crdt.NewTwoPSet[string]()
	set1.Add("a")
	set1.Add("b")
	set1.Remove("a")

	data, err := set1.Marshal()
	require.NoError(t, err)

	set2 := crdt.NewTwoPSet[string]()
	err = set2.Unmarshal(data)
	require.NoError(t, err)

	assert.ElementsMatch(t, set1.Elements(), set2.Elements())

	again, err := set2.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestTwoPSetUnmarshalRejectsWrongKind(t *testing.T) {
	counter := crdt.NewPNCounter()
	data, err := counter.Marshal()
	require.NoError(t, err)

	set := crdt.NewTwoPSet[string]()
	err = set.Unmarshal(data)
	assert.Error(t, err)
}
