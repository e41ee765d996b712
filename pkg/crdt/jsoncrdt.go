package crdt

import "encoding/json"

// JSONKind names which of the three JSONValue shapes a node holds.
type JSONKind string

const (
	JSONScalar JSONKind = "scalar"
	JSONArray  JSONKind = "array"
	JSONObject JSONKind = "object"
)

// JSONValue is a recursive, tagged-union CRDT document node: a scalar
// resolved by last-write-wins, an array backed by an RGA of further
// JSONValue nodes, or an object mapping keys to further JSONValue nodes
// with per-key last-write-wins on reassignment. valueTag identifies the
// operation that created or last reassigned this node and is what Join
// uses to resolve a concurrent kind change (e.g. one replica turns a key
// into an array while another turns it into a scalar).
type JSONValue struct {
	kind     JSONKind
	valueTag Tag
	scalar   json.RawMessage
	arr      *RGA[*JSONValue]
	obj      map[string]*jsonObjectEntry
}

type jsonObjectEntry struct {
	tag   Tag
	value *JSONValue
}

// NewJSONObject returns an empty object node.
func NewJSONObject() *JSONValue {
	return &JSONValue{kind: JSONObject, obj: make(map[string]*jsonObjectEntry)}
}

// NewJSONArray returns an empty array node.
func NewJSONArray() *JSONValue {
	return &JSONValue{kind: JSONArray, arr: NewRGA[*JSONValue]()}
}

// NewJSONScalar returns a scalar node holding raw (a canonical JSON
// scalar: string, number, bool or null) under tag. raw is validated
// against the same NaN rule canonical encoding enforces everywhere else.
func NewJSONScalar(raw json.RawMessage, tag Tag) (*JSONValue, error) {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, newErr(ErrKindLogic, "new_json_scalar", err)
	}
	if _, err := normalize(decoded); err != nil {
		return nil, err
	}
	return &JSONValue{kind: JSONScalar, valueTag: tag, scalar: raw}, nil
}

// Bottom implements Lattice: the empty object, the conventional document
// root.
func (v *JSONValue) Bottom() *JSONValue { return NewJSONObject() }

// Shape reports which of the three JSONValue forms this node currently
// holds.
func (v *JSONValue) Shape() JSONKind { return v.kind }

// Kind implements CRDT.
func (v *JSONValue) Kind() CRDTKind { return KindJSON }

// ScalarValue returns the raw scalar payload, if this node is a scalar.
func (v *JSONValue) ScalarValue() (json.RawMessage, bool) {
	if v.kind != JSONScalar {
		return nil, false
	}
	return v.scalar, true
}

// ObjectGet returns the value stored at key, if this node is an object
// and key is present.
func (v *JSONValue) ObjectGet(key string) (*JSONValue, bool) {
	if v.kind != JSONObject {
		return nil, false
	}
	entry, ok := v.obj[key]
	if !ok {
		return nil, false
	}
	return entry.value, true
}

// ObjectKeys returns the object's keys in no particular order.
func (v *JSONValue) ObjectKeys() []string {
	out := make([]string, 0, len(v.obj))
	for k := range v.obj {
		out = append(out, k)
	}
	return out
}

// ObjectSet assigns value to key under tag, replacing whatever the key
// held before, and returns the single-key delta.
func (v *JSONValue) ObjectSet(key string, value *JSONValue, tag Tag) *JSONValue {
	v.obj[key] = &jsonObjectEntry{tag: tag, value: value}

	delta := NewJSONObject()
	delta.obj[key] = &jsonObjectEntry{tag: tag, value: value}
	return delta
}

// ArrayValues returns the live elements of an array node in list order.
func (v *JSONValue) ArrayValues() []*JSONValue {
	if v.kind != JSONArray {
		return nil
	}
	return v.arr.Traverse()
}

// ArrayInsert inserts value after parent (rgaRoot for the head of the
// array) under tag, and returns the delta.
func (v *JSONValue) ArrayInsert(parent Tag, value *JSONValue, tag Tag) *JSONValue {
	delta := NewJSONArray()
	delta.arr = v.arr.Insert(parent, value, tag)
	return delta
}

// ArrayRemove tombstones the element at tag and returns the delta.
func (v *JSONValue) ArrayRemove(tag Tag) *JSONValue {
	delta := NewJSONArray()
	delta.arr = v.arr.Remove(tag)
	return delta
}

// PathSegment addresses one step of a descent into a JSONValue document:
// either an object key or the tag of an array element.
type PathSegment struct {
	Key      string
	ElemTag  Tag
	IsObject bool
}

// Resolve walks path from v and returns the node it reaches.
func (v *JSONValue) Resolve(path []PathSegment) (*JSONValue, error) {
	cur := v
	for _, seg := range path {
		switch {
		case seg.IsObject:
			if cur.kind != JSONObject {
				return nil, newErr(ErrKindLogic, "resolve", ErrPathNotFound)
			}
			next, ok := cur.ObjectGet(seg.Key)
			if !ok {
				return nil, newErr(ErrKindLogic, "resolve", ErrPathNotFound)
			}
			cur = next
		default:
			if cur.kind != JSONArray {
				return nil, newErr(ErrKindLogic, "resolve", ErrPathNotFound)
			}
			node, ok := cur.arr.nodes[seg.ElemTag]
			if !ok || node.tombstone {
				return nil, newErr(ErrKindLogic, "resolve", ErrIndexOutOfBounds)
			}
			cur = node.value
		}
	}
	return cur, nil
}

func greaterTag(a, b Tag) Tag {
	if b.Greater(a) {
		return b
	}
	return a
}

// Join implements Lattice. A concurrent kind change (replica A turns a
// key into an array, replica B turns it into a scalar) resolves to
// whichever side's valueTag is greater, same as any other LWW reassignment;
// matching kinds merge structurally.
func (v *JSONValue) Join(other *JSONValue) *JSONValue {
	if v.kind != other.kind {
		if other.valueTag.Greater(v.valueTag) {
			return other
		}
		return v
	}
	switch v.kind {
	case JSONScalar:
		if other.valueTag.Greater(v.valueTag) {
			return other
		}
		return v
	case JSONArray:
		out := NewJSONArray()
		out.valueTag = greaterTag(v.valueTag, other.valueTag)
		out.arr = joinJSONArray(v.arr, other.arr)
		return out
	case JSONObject:
		out := NewJSONObject()
		out.valueTag = greaterTag(v.valueTag, other.valueTag)
		keys := make(map[string]struct{}, len(v.obj)+len(other.obj))
		for k := range v.obj {
			keys[k] = struct{}{}
		}
		for k := range other.obj {
			keys[k] = struct{}{}
		}
		for k := range keys {
			a, inA := v.obj[k]
			b, inB := other.obj[k]
			switch {
			case inA && inB:
				if a.tag == b.tag {
					out.obj[k] = &jsonObjectEntry{tag: a.tag, value: a.value.Join(b.value)}
				} else if b.tag.Greater(a.tag) {
					out.obj[k] = &jsonObjectEntry{tag: b.tag, value: b.value}
				} else {
					out.obj[k] = &jsonObjectEntry{tag: a.tag, value: a.value}
				}
			case inA:
				out.obj[k] = a
			default:
				out.obj[k] = b
			}
		}
		return out
	default:
		return v
	}
}

func joinJSONArray(a, b *RGA[*JSONValue]) *RGA[*JSONValue] {
	out := NewRGA[*JSONValue]()
	allTags := make(map[Tag]struct{}, len(a.nodes)+len(b.nodes))
	for t := range a.nodes {
		allTags[t] = struct{}{}
	}
	for t := range b.nodes {
		allTags[t] = struct{}{}
	}
	for t := range allTags {
		na, inA := a.nodes[t]
		nb, inB := b.nodes[t]
		switch {
		case inA && inB:
			var merged *JSONValue
			switch {
			case na.value != nil && nb.value != nil:
				merged = na.value.Join(nb.value)
			case na.value != nil:
				merged = na.value
			default:
				merged = nb.value
			}
			out.nodes[t] = &rgaNode[*JSONValue]{value: merged, tombstone: na.tombstone || nb.tombstone}
		case inA:
			out.nodes[t] = &rgaNode[*JSONValue]{value: na.value, tombstone: na.tombstone}
		default:
			out.nodes[t] = &rgaNode[*JSONValue]{value: nb.value, tombstone: nb.tombstone}
		}
	}

	childSeen := make(map[Tag]map[Tag]struct{})
	collect := func(src *RGA[*JSONValue]) {
		for t, n := range src.nodes {
			set := childSeen[t]
			if set == nil {
				set = make(map[Tag]struct{})
				childSeen[t] = set
			}
			for _, c := range n.children {
				set[c] = struct{}{}
			}
		}
	}
	collect(a)
	collect(b)
	for t, node := range out.nodes {
		children := make([]Tag, 0, len(childSeen[t]))
		for c := range childSeen[t] {
			children = append(children, c)
		}
		node.children = sortTagsDescRGA(children)
	}

	seen := make(map[Tag]struct{})
	out.rootChildren = mergeChildren(a.rootChildren, b.rootChildren, seen)
	return out
}

// Leq implements Lattice on a best-effort basis: object entries must be
// dominated key by key, array structure must be dominated node by node,
// and a scalar must carry a tag no greater than other's.
func (v *JSONValue) Leq(other *JSONValue) bool {
	if v.kind != other.kind {
		return !v.valueTag.Greater(other.valueTag)
	}
	switch v.kind {
	case JSONScalar:
		return !v.valueTag.Greater(other.valueTag)
	case JSONArray:
		return v.arr.Leq(other.arr)
	case JSONObject:
		for k, entry := range v.obj {
			oe, ok := other.obj[k]
			if !ok {
				return false
			}
			if entry.tag.Greater(oe.tag) {
				return false
			}
			if entry.tag == oe.tag && !entry.value.Leq(oe.value) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// JoinAssign merges delta into v in place.
func (v *JSONValue) JoinAssign(delta *JSONValue) {
	*v = *v.Join(delta)
}

type jsonObjectEntryWire struct {
	Tag   Tag             `json:"tag"`
	Value json.RawMessage `json:"value"`
}

type jsonValueWire struct {
	CRDTKind CRDTKind                       `json:"crdt_kind"`
	Kind     JSONKind                       `json:"kind"`
	ValueTag Tag                            `json:"value_tag,omitempty"`
	Scalar   json.RawMessage                `json:"scalar,omitempty"`
	Arr      json.RawMessage                `json:"arr,omitempty"`
	Obj      map[string]jsonObjectEntryWire `json:"obj,omitempty"`
}

// MarshalJSON implements json.Marshaler so JSONValue can be embedded as a
// type parameter of RGA without the generic machinery needing to know its
// concrete shape.
func (v *JSONValue) MarshalJSON() ([]byte, error) {
	wire := jsonValueWire{CRDTKind: KindJSON, Kind: v.kind, ValueTag: v.valueTag}
	switch v.kind {
	case JSONScalar:
		wire.Scalar = v.scalar
	case JSONArray:
		arrBytes, err := v.arr.Marshal()
		if err != nil {
			return nil, err
		}
		wire.Arr = arrBytes
	case JSONObject:
		wire.Obj = make(map[string]jsonObjectEntryWire, len(v.obj))
		for k, entry := range v.obj {
			valueBytes, err := entry.value.MarshalJSON()
			if err != nil {
				return nil, err
			}
			wire.Obj[k] = jsonObjectEntryWire{Tag: entry.tag, Value: valueBytes}
		}
	}
	return canonicalJSON(wire)
}

// UnmarshalJSON implements json.Unmarshaler, the counterpart to
// MarshalJSON.
func (v *JSONValue) UnmarshalJSON(data []byte) error {
	var wire jsonValueWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return newErr(ErrKindLogic, "unmarshal", err)
	}
	if wire.CRDTKind != KindJSON {
		return newErr(ErrKindLogic, "unmarshal", ErrUnknownKind)
	}
	v.kind = wire.Kind
	v.valueTag = wire.ValueTag
	switch wire.Kind {
	case JSONScalar:
		v.scalar = wire.Scalar
	case JSONArray:
		v.arr = NewRGA[*JSONValue]()
		if len(wire.Arr) > 0 {
			if err := v.arr.Unmarshal(wire.Arr); err != nil {
				return err
			}
		}
	case JSONObject:
		v.obj = make(map[string]*jsonObjectEntry, len(wire.Obj))
		for k, entryWire := range wire.Obj {
			value := &JSONValue{}
			if err := value.UnmarshalJSON(entryWire.Value); err != nil {
				return err
			}
			v.obj[k] = &jsonObjectEntry{tag: entryWire.Tag, value: value}
		}
	}
	return nil
}

// Marshal implements CRDT via MarshalJSON.
func (v *JSONValue) Marshal() ([]byte, error) { return v.MarshalJSON() }

// Unmarshal implements CRDT via UnmarshalJSON.
func (v *JSONValue) Unmarshal(data []byte) error { return v.UnmarshalJSON(data) }
