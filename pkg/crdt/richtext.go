package crdt

import "encoding/json"

// MarkKind distinguishes a boolean formatting mark (bold, italic: on or
// off, no finer value) from a value mark (link target, font size: carries
// a payload that two concurrent marks of the same type must resolve by
// recency, not by union).
type MarkKind string

const (
	// MarkKindBool marks resolve by OR: the run is formatted if any live
	// mark covering it is present, regardless of how many replicas added
	// one concurrently.
	MarkKindBool MarkKind = "bool"
	// MarkKindValue marks resolve by last-write-wins keyed on the mark's
	// own Tag, so two concurrent "set link" marks over the same run don't
	// both apply — the later one does.
	MarkKindValue MarkKind = "value"
)

// Mark is a formatting annotation anchored to a half-open run of text
// tags [Start, End). It is comparable so it can be the element type of an
// ORSet.
type Mark struct {
	Type  string   `json:"type"`
	Kind  MarkKind `json:"kind"`
	Start Tag      `json:"start"`
	End   Tag      `json:"end"`
	Value string   `json:"value,omitempty"`
	Tag   Tag      `json:"tag"`
}

// RichText is an RGA of runes with an OR-Set of Marks layered on top: text
// editing uses the RGA's Insert/Remove, formatting uses AddMark/RemoveMark,
// and the two merge independently since a Mark survives the removal of
// the text it was anchored over (it simply stops matching any position).
type RichText struct {
	text  *RGA[rune]
	marks *ORSet[Mark]
}

// NewRichText returns the bottom element: empty text, no marks.
func NewRichText() *RichText {
	return &RichText{text: NewRGA[rune](), marks: NewORSet[Mark]()}
}

// Bottom implements Lattice.
func (d *RichText) Bottom() *RichText { return NewRichText() }

// InsertText inserts ch after parent under tag.
func (d *RichText) InsertText(parent Tag, ch rune, tag Tag) *RichText {
	delta := NewRichText()
	delta.text = d.text.Insert(parent, ch, tag)
	return delta
}

// RemoveText tombstones the rune at tag.
func (d *RichText) RemoveText(tag Tag) *RichText {
	delta := NewRichText()
	delta.text = d.text.Remove(tag)
	return delta
}

// AddMark attaches mark (whose own Tag must be fresh and unique).
func (d *RichText) AddMark(mark Mark) *RichText {
	delta := NewRichText()
	delta.marks = d.marks.Add(mark, mark.Tag)
	return delta
}

// RemoveMark tombstones every live tag backing mark.
func (d *RichText) RemoveMark(mark Mark) *RichText {
	delta := NewRichText()
	delta.marks = d.marks.Remove(mark)
	return delta
}

// Text returns the live rune sequence.
func (d *RichText) Text() []rune {
	return d.text.Traverse()
}

// FormatAt resolves which marks are active at the live text position
// identified by tag: MarkKindBool marks contribute true if any live,
// covering mark of that type exists; MarkKindValue marks contribute the
// value of the covering live mark with the greatest own Tag.
func (d *RichText) FormatAt(tag Tag) map[string]string {
	order := d.text.TraverseTags()
	index := make(map[Tag]int, len(order))
	for i, t := range order {
		index[t] = i
	}
	pos, ok := index[tag]
	if !ok {
		return map[string]string{}
	}

	out := make(map[string]string)
	winner := make(map[string]Tag)
	for _, mark := range d.marks.Elements() {
		if !d.marks.Contains(mark) {
			continue
		}
		startIdx, startOK := index[mark.Start]
		endIdx, endOK := index[mark.End]
		if !startOK || !endOK || pos < startIdx || pos >= endIdx {
			continue
		}
		switch mark.Kind {
		case MarkKindBool:
			out[mark.Type] = "true"
		case MarkKindValue:
			if cur, ok := winner[mark.Type]; !ok || mark.Tag.Greater(cur) {
				winner[mark.Type] = mark.Tag
				out[mark.Type] = mark.Value
			}
		}
	}
	return out
}

// Join implements Lattice: join text and marks independently.
func (d *RichText) Join(other *RichText) *RichText {
	return &RichText{text: d.text.Join(other.text), marks: d.marks.Join(other.marks)}
}

// Leq implements Lattice componentwise.
func (d *RichText) Leq(other *RichText) bool {
	return d.text.Leq(other.text) && d.marks.Leq(other.marks)
}

// JoinAssign merges delta into d in place.
func (d *RichText) JoinAssign(delta *RichText) {
	d.text.JoinAssign(delta.text)
	d.marks.JoinAssign(delta.marks)
}

type richTextWire struct {
	Kind  CRDTKind        `json:"kind"`
	Text  json.RawMessage `json:"text"`
	Marks json.RawMessage `json:"marks"`
}

// Kind implements CRDT.
func (d *RichText) Kind() CRDTKind { return KindRichText }

// Marshal produces the canonical encoding.
func (d *RichText) Marshal() ([]byte, error) {
	text, err := d.text.Marshal()
	if err != nil {
		return nil, err
	}
	marks, err := d.marks.Marshal()
	if err != nil {
		return nil, err
	}
	return canonicalJSON(richTextWire{Kind: KindRichText, Text: text, Marks: marks})
}

// Unmarshal decodes a RichText from its canonical form.
func (d *RichText) Unmarshal(data []byte) error {
	var wire richTextWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return newErr(ErrKindLogic, "unmarshal", err)
	}
	if wire.Kind != KindRichText {
		return newErr(ErrKindLogic, "unmarshal", ErrUnknownKind)
	}
	d.text = NewRGA[rune]()
	if err := d.text.Unmarshal(wire.Text); err != nil {
		return err
	}
	d.marks = NewORSet[Mark]()
	if err := d.marks.Unmarshal(wire.Marks); err != nil {
		return err
	}
	return nil
}
