package crdt_test

import (
	"testing"

	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRichTextInsertAndText(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	doc := crdt.NewRichText()

	t1 := crdt.Tag{Replica: node1, Counter: 1}
	t2 := crdt.Tag{Replica: node1, Counter: 2}
	doc.JoinAssign(doc.InsertText(crdt.Tag{}, 'h', t1))
	doc.JoinAssign(doc.InsertText(t1, 'i', t2))

	assert.Equal(t, []rune{'h', 'i'}, doc.Text())
}

func TestRichTextBoolMarkResolvesByOR(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	node2 := crdt.ReplicaID("node2")
	doc := crdt.NewRichText()

	t1 := crdt.Tag{Replica: node1, Counter: 1}
	t2 := crdt.Tag{Replica: node1, Counter: 2}
	doc.JoinAssign(doc.InsertText(crdt.Tag{}, 'h', t1))
	doc.JoinAssign(doc.InsertText(t1, 'i', t2))

	mark := crdt.Mark{
		Type:  "bold",
		Kind:  crdt.MarkKindBool,
		Start: t1,
		End:   t2,
		Tag:   crdt.Tag{Replica: node2, Counter: 1},
	}
	doc.JoinAssign(doc.AddMark(mark))

	fmtAt := doc.FormatAt(t1)
	assert.Equal(t, "true", fmtAt["bold"])

	fmtAfter := doc.FormatAt(t2)
	assert.Empty(t, fmtAfter["bold"], "mark end is exclusive")
}

func TestRichTextValueMarkResolvesByLWW(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	node2 := crdt.ReplicaID("node2")
	doc := crdt.NewRichText()

	t1 := crdt.Tag{Replica: node1, Counter: 1}
	t2 := crdt.Tag{Replica: node1, Counter: 2}
	doc.JoinAssign(doc.InsertText(crdt.Tag{}, 'h', t1))
	doc.JoinAssign(doc.InsertText(t1, 'i', t2))

	older := crdt.Mark{Type: "link", Kind: crdt.MarkKindValue, Start: t1, End: t2, Value: "old", Tag: crdt.Tag{Replica: node1, Counter: 3}}
	newer := crdt.Mark{Type: "link", Kind: crdt.MarkKindValue, Start: t1, End: t2, Value: "new", Tag: crdt.Tag{Replica: node2, Counter: 3}}

	doc.JoinAssign(doc.AddMark(older))
	doc.JoinAssign(doc.AddMark(newer))

	assert.Equal(t, "new", doc.FormatAt(t1)["link"])
}

func TestRichTextMarkSurvivesTextRemoval(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	doc := crdt.NewRichText()

	t1 := crdt.Tag{Replica: node1, Counter: 1}
	t2 := crdt.Tag{Replica: node1, Counter: 2}
	doc.JoinAssign(doc.InsertText(crdt.Tag{}, 'h', t1))
	doc.JoinAssign(doc.InsertText(t1, 'i', t2))

	mark := crdt.Mark{Type: "bold", Kind: crdt.MarkKindBool, Start: t1, End: t2, Tag: crdt.Tag{Replica: node1, Counter: 5}}
	doc.JoinAssign(doc.AddMark(mark))
	doc.JoinAssign(doc.RemoveText(t2))

	assert.Equal(t, []rune{'h'}, doc.Text())
}

func TestRichTextMarshalUnmarshalRoundTrips(t *testing.T) {
	node1 := crdt.ReplicaID("node1")
	doc := crdt.NewRichText()
	t1 := crdt.Tag{Replica: node1, Counter: 1}
	doc.JoinAssign(doc.InsertText(crdt.Tag{}, 'h', t1))

	data, err := doc.Marshal()
	require.NoError(t, err)

	decoded := crdt.NewRichText()
	err = decoded.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, doc.Text(), decoded.Text())

	again, err := decoded.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestRichTextUnmarshalRejectsWrongKind(t *testing.T) {
	counter := crdt.NewPNCounter()
	data, err := counter.Marshal()
	require.NoError(t, err)

	doc := crdt.NewRichText()
	err = doc.Unmarshal(data)
	assert.Error(t, err)
}
