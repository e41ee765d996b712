package crdt_test

import (
	"encoding/json"
	"testing"

	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONValueObjectSetAndGet(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	doc := crdt.NewJSONObject()

	name, err := crdt.NewJSONScalar(json.RawMessage(`"alice"`), crdt.Tag{Replica: node1, Counter: 1})
	require.NoError(t, err)
	doc.JoinAssign(doc.ObjectSet("name", name, crdt.Tag{Replica: node1, Counter: 1}))

	got, ok := doc.ObjectGet("name")
	require.True(t, ok)
	raw, ok := got.ScalarValue()
	require.True(t, ok)
	assert.JSONEq(t, `"alice"`, string(raw))
}

func TestJSONValueObjectReassignResolvesByGreaterTag(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	node2 := crdt.ReplicaID("node2")

	doc1 := crdt.NewJSONObject()
	oldVal, _ := crdt.NewJSONScalar(json.RawMessage(`1`), crdt.Tag{Replica: node1, Counter: 1})
	doc1.JoinAssign(doc1.ObjectSet("count", oldVal, crdt.Tag{Replica: node1, Counter: 1}))

	doc2 := crdt.NewJSONObject()
	newVal, _ := crdt.NewJSONScalar(json.RawMessage(`2`), crdt.Tag{Replica: node2, Counter: 2})
	doc2.JoinAssign(doc2.ObjectSet("count", newVal, crdt.Tag{Replica: node2, Counter: 2}))

	merged := doc1.Join(doc2)
	got, ok := merged.ObjectGet("count")
	require.True(t, ok)
	raw, _ := got.ScalarValue()
	assert.JSONEq(t, `2`, string(raw))
}

func TestJSONValueArrayInsertAndTraverse(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	doc := crdt.NewJSONArray()

	t1 := crdt.Tag{Replica: node1, Counter: 1}
	t2 := crdt.Tag{Replica: node1, Counter: 2}
	v1, _ := crdt.NewJSONScalar(json.RawMessage(`1`), t1)
	v2, _ := crdt.NewJSONScalar(json.RawMessage(`2`), t2)

	doc.JoinAssign(doc.ArrayInsert(crdt.Tag{}, v1, t1))
	doc.JoinAssign(doc.ArrayInsert(t1, v2, t2))

	values := doc.ArrayValues()
	require.Len(t, values, 2)
	raw1, _ := values[0].ScalarValue()
	raw2, _ := values[1].ScalarValue()
	assert.JSONEq(t, `1`, string(raw1))
	assert.JSONEq(t, `2`, string(raw2))
}

func TestJSONValueNestedObjectMergesStructurally(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	node2 := crdt.ReplicaID("node2")

	nested := crdt.NewJSONObject()
	tag := crdt.Tag{Replica: node1, Counter: 1}

	doc1 := crdt.NewJSONObject()
	doc1.JoinAssign(doc1.ObjectSet("profile", nested, tag))
	a, _ := doc1.ObjectGet("profile")
	aVal, _ := crdt.NewJSONScalar(json.RawMessage(`"a"`), crdt.Tag{Replica: node1, Counter: 2})
	a.JoinAssign(a.ObjectSet("a", aVal, crdt.Tag{Replica: node1, Counter: 2}))

	doc2 := crdt.NewJSONObject()
	doc2.JoinAssign(doc2.ObjectSet("profile", nested, tag))
	b, _ := doc2.ObjectGet("profile")
	bVal, _ := crdt.NewJSONScalar(json.RawMessage(`"b"`), crdt.Tag{Replica: node2, Counter: 2})
	b.JoinAssign(b.ObjectSet("b", bVal, crdt.Tag{Replica: node2, Counter: 2}))

	merged := doc1.Join(doc2)
	profile, ok := merged.ObjectGet("profile")
	require.True(t, ok)
	_, hasA := profile.ObjectGet("a")
	_, hasB := profile.ObjectGet("b")
	assert.True(t, hasA)
	assert.True(t, hasB)
}

func TestJSONValueMarshalUnmarshalRoundTrips(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	doc := crdt.NewJSONObject()
	val, _ := crdt.NewJSONScalar(json.RawMessage(`42`), crdt.Tag{Replica: node1, Counter: 1})
	doc.JoinAssign(doc.ObjectSet("answer", val, crdt.Tag{Replica: node1, Counter: 1}))

	data, err := doc.Marshal()
	require.NoError(t, err)

	decoded := crdt.NewJSONObject()
	err = decoded.Unmarshal(data)
	require.NoError(t, err)

	got, ok := decoded.ObjectGet("answer")
	require.True(t, ok)
	raw, _ := got.ScalarValue()
	assert.JSONEq(t, `42`, string(raw))

	again, err := decoded.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestJSONValueScalarRejectsNaN(t *testing.T) {
	_, err := crdt.NewJSONScalar(json.RawMessage(`NaN`), crdt.Tag{})
	assert.Error(t, err)
}
