package crdt

import "encoding/json"

// rgaRoot is the sentinel parent tag of every node inserted at the head of
// the list; it is never itself a real node.
var rgaRoot = Tag{}

type rgaNode[T any] struct {
	value     T
	tombstone bool
	children  []Tag
}

// RGA is a replicated growable array: a causal tree of tag-keyed nodes
// where each node names its insertion parent, and siblings under the same
// parent are ordered by the pinned descending (Counter, ReplicaID)
// comparator so every replica that has seen the same set of inserts
// agrees on their order regardless of delivery order. Removal tombstones
// a node rather than deleting it, so a concurrent insert anchored to a
// removed node is never orphaned.
type RGA[T any] struct {
	nodes map[Tag]*rgaNode[T]
	// children of the root sentinel, kept alongside nodes so Insert and
	// Traverse share one insertion helper for both root and non-root
	// parents.
	rootChildren []Tag
}

// NewRGA returns the bottom element: an empty list.
func NewRGA[T any]() *RGA[T] {
	return &RGA[T]{nodes: make(map[Tag]*rgaNode[T])}
}

// Bottom implements Lattice.
func (a *RGA[T]) Bottom() *RGA[T] { return NewRGA[T]() }

// Insert places value under a fresh tag, anchored immediately after
// parent (rgaRoot to insert at the head of the list). The returned delta
// carries only the new node.
func (a *RGA[T]) Insert(parent Tag, value T, tag Tag) *RGA[T] {
	a.insertNode(parent, tag, &rgaNode[T]{value: value})

	delta := NewRGA[T]()
	delta.insertNode(parent, tag, &rgaNode[T]{value: value})
	return delta
}

func (a *RGA[T]) insertNode(parent Tag, tag Tag, node *rgaNode[T]) {
	a.nodes[tag] = node
	if parent == rgaRoot {
		a.rootChildren = insertSorted(a.rootChildren, tag)
		return
	}
	p, ok := a.nodes[parent]
	if !ok {
		// Parent not yet observed locally; Insert is only ever called
		// with a parent this replica has already admitted, and merged
		// deltas arrive topologically ordered by the sync layer, so this
		// should not happen in practice. Attach under root rather than
		// drop the node, so it still surfaces on Traverse.
		a.rootChildren = insertSorted(a.rootChildren, tag)
		return
	}
	p.children = insertSorted(p.children, tag)
}

func insertSorted(children []Tag, tag Tag) []Tag {
	i := 0
	for i < len(children) && RGALess(children[i], tag) {
		i++
	}
	out := make([]Tag, 0, len(children)+1)
	out = append(out, children[:i]...)
	out = append(out, tag)
	out = append(out, children[i:]...)
	return out
}

// Remove tombstones the node at tag. Removing an unknown tag is a no-op.
func (a *RGA[T]) Remove(tag Tag) *RGA[T] {
	delta := NewRGA[T]()
	node, ok := a.nodes[tag]
	if !ok || node.tombstone {
		return delta
	}
	node.tombstone = true

	delta.nodes[tag] = &rgaNode[T]{value: node.value, tombstone: true}
	return delta
}

// Traverse walks the list depth-first from the root sentinel in sibling
// order, returning the live (non-tombstoned) values in list order.
func (a *RGA[T]) Traverse() []T {
	out := make([]T, 0, len(a.nodes))
	a.walk(a.rootChildren, &out)
	return out
}

func (a *RGA[T]) walk(children []Tag, out *[]T) {
	for _, tag := range children {
		node := a.nodes[tag]
		if node == nil {
			continue
		}
		if !node.tombstone {
			*out = append(*out, node.value)
		}
		a.walk(node.children, out)
	}
}

// TraverseTags returns the tags of the live nodes in the same order
// Traverse returns their values, used by callers (RichText) that must
// reason about positions in terms of the tags that anchor them rather
// than the bare value sequence.
func (a *RGA[T]) TraverseTags() []Tag {
	out := make([]Tag, 0, len(a.nodes))
	a.walkTags(a.rootChildren, &out)
	return out
}

func (a *RGA[T]) walkTags(children []Tag, out *[]Tag) {
	for _, tag := range children {
		node := a.nodes[tag]
		if node == nil {
			continue
		}
		if !node.tombstone {
			*out = append(*out, tag)
		}
		a.walkTags(node.children, out)
	}
}

// Join implements Lattice: union every node (tombstone wins on conflict,
// since tombstone is monotone), union sibling sets and re-sort.
func (a *RGA[T]) Join(other *RGA[T]) *RGA[T] {
	out := NewRGA[T]()
	for tag, node := range a.nodes {
		out.nodes[tag] = &rgaNode[T]{value: node.value, tombstone: node.tombstone}
	}
	for tag, node := range other.nodes {
		if existing, ok := out.nodes[tag]; ok {
			existing.tombstone = existing.tombstone || node.tombstone
			continue
		}
		out.nodes[tag] = &rgaNode[T]{value: node.value, tombstone: node.tombstone}
	}

	seen := make(map[Tag]struct{})
	out.rootChildren = mergeChildren(a.rootChildren, other.rootChildren, seen)

	// Rebuild each node's children as the union of both inputs' children
	// lists for that tag, since a tag present in only one input still
	// needs its subtree reattached.
	childSeen := make(map[Tag]map[Tag]struct{})
	collectChildren := func(src *RGA[T]) {
		for tag, node := range src.nodes {
			set := childSeen[tag]
			if set == nil {
				set = make(map[Tag]struct{})
				childSeen[tag] = set
			}
			for _, c := range node.children {
				set[c] = struct{}{}
			}
		}
	}
	collectChildren(a)
	collectChildren(other)
	for tag, node := range out.nodes {
		children := make([]Tag, 0, len(childSeen[tag]))
		for c := range childSeen[tag] {
			children = append(children, c)
		}
		node.children = sortTagsDescRGA(children)
	}
	return out
}

func mergeChildren(a, b []Tag, seen map[Tag]struct{}) []Tag {
	all := make([]Tag, 0, len(a)+len(b))
	for _, t := range a {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			all = append(all, t)
		}
	}
	for _, t := range b {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			all = append(all, t)
		}
	}
	return sortTagsDescRGA(all)
}

func sortTagsDescRGA(tags []Tag) []Tag {
	out := append([]Tag(nil), tags...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && RGALess(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Leq implements Lattice: every node and tombstone flag of a must be
// present (and at least as tombstoned) in other.
func (a *RGA[T]) Leq(other *RGA[T]) bool {
	for tag, node := range a.nodes {
		oNode, ok := other.nodes[tag]
		if !ok {
			return false
		}
		if node.tombstone && !oNode.tombstone {
			return false
		}
	}
	return true
}

// JoinAssign merges delta into a in place.
func (a *RGA[T]) JoinAssign(delta *RGA[T]) {
	*a = *a.Join(delta)
}

type rgaNodeWire[T any] struct {
	Tag       Tag    `json:"tag"`
	Parent    Tag    `json:"parent"`
	Value     T      `json:"value,omitempty"`
	Tombstone bool   `json:"tombstone,omitempty"`
}

type rgaWire[T any] struct {
	Kind  CRDTKind        `json:"kind"`
	Nodes []rgaNodeWire[T] `json:"nodes"`
}

// Kind implements CRDT.
func (a *RGA[T]) Kind() CRDTKind { return KindRGA }

// Marshal produces the canonical encoding: every node with its parent tag,
// in a stable (parent tag, tag) order.
func (a *RGA[T]) Marshal() ([]byte, error) {
	parentOf := make(map[Tag]Tag)
	for _, tag := range a.rootChildren {
		parentOf[tag] = rgaRoot
	}
	for tag, node := range a.nodes {
		for _, c := range node.children {
			parentOf[c] = tag
		}
	}

	wire := make([]rgaNodeWire[T], 0, len(a.nodes))
	for tag, node := range a.nodes {
		wire = append(wire, rgaNodeWire[T]{
			Tag:       tag,
			Parent:    parentOf[tag],
			Value:     node.value,
			Tombstone: node.tombstone,
		})
	}
	sortRGAWire(wire)
	return canonicalJSON(rgaWire[T]{Kind: KindRGA, Nodes: wire})
}

// Unmarshal decodes an RGA from its canonical form.
func (a *RGA[T]) Unmarshal(data []byte) error {
	var wire rgaWire[T]
	if err := json.Unmarshal(data, &wire); err != nil {
		return newErr(ErrKindLogic, "unmarshal", err)
	}
	if wire.Kind != KindRGA {
		return newErr(ErrKindLogic, "unmarshal", ErrUnknownKind)
	}
	a.nodes = make(map[Tag]*rgaNode[T], len(wire.Nodes))
	a.rootChildren = nil
	for _, n := range wire.Nodes {
		a.nodes[n.Tag] = &rgaNode[T]{value: n.Value, tombstone: n.Tombstone}
	}
	for _, n := range wire.Nodes {
		if n.Parent == rgaRoot {
			a.rootChildren = insertSorted(a.rootChildren, n.Tag)
			continue
		}
		if p, ok := a.nodes[n.Parent]; ok {
			p.children = insertSorted(p.children, n.Tag)
		}
	}
	return nil
}

func sortRGAWire[T any](wire []rgaNodeWire[T]) {
	keys := make([]string, len(wire))
	for i, n := range wire {
		b, _ := json.Marshal(struct {
			Parent Tag
			Tag    Tag
		}{n.Parent, n.Tag})
		keys[i] = string(b)
	}
	for i := 1; i < len(wire); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			wire[j], wire[j-1] = wire[j-1], wire[j]
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}
