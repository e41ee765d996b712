// Package digest computes a Merkle hash tree over a flat key/value
// keyspace, used to detect storage-backend corruption (bit rot, partial
// writes) independently of the causal Cid chain pkg/merkledag maintains.
// It is a narrower auxiliary than the DAG: a digest.Tree has no notion of
// parents, authorship, or height, only "does this keyspace hash to what
// it hashed to last time".
package digest

import (
	"crypto/sha256"
	"errors"
	"sort"
)

// ErrEmptyTree is returned by NewTree when given no data.
var ErrEmptyTree = errors.New("digest: cannot build a tree over no data")

// ErrKeyNotFound is returned by GetProof for a key the tree was not built
// from.
var ErrKeyNotFound = errors.New("digest: key not found in tree")

// Node is one node of the hash tree: a leaf carries Key/Value, an
// internal node carries only the hash of its children.
type Node struct {
	Left, Right *Node
	Hash        []byte
	IsLeaf      bool
	Key         []byte
	Value       []byte
}

// Tree is a Merkle hash tree over a fixed key/value keyspace, rebuilt
// whenever the keyspace changes (it is not an incremental structure).
type Tree struct {
	Root  *Node
	leafs []*Node
}

// NewTree builds a tree over data, sorting keys first so that the same
// keyspace always produces the same root hash regardless of map
// iteration order.
func NewTree(data map[string][]byte) (*Tree, error) {
	if len(data) == 0 {
		return nil, ErrEmptyTree
	}

	leafs := make([]*Node, 0, len(data))
	for k, v := range data {
		leafs = append(leafs, &Node{
			Hash:   leafHash([]byte(k), v),
			IsLeaf: true,
			Key:    []byte(k),
			Value:  v,
		})
	}
	sort.Slice(leafs, func(i, j int) bool { return string(leafs[i].Key) < string(leafs[j].Key) })

	return &Tree{Root: buildTree(leafs), leafs: leafs}, nil
}

func buildTree(nodes []*Node) *Node {
	if len(nodes) == 1 {
		return nodes[0]
	}

	next := make([]*Node, 0, (len(nodes)+1)/2)
	for i := 0; i < len(nodes); i += 2 {
		left := nodes[i]
		right := left
		if i+1 < len(nodes) {
			right = nodes[i+1]
		}
		next = append(next, &Node{
			Left:  left,
			Right: right,
			Hash:  innerHash(left.Hash, right.Hash),
		})
	}
	return buildTree(next)
}

// RootHash returns the tree's root hash, or nil if the tree is empty.
func (t *Tree) RootHash() []byte {
	if t == nil || t.Root == nil {
		return nil
	}
	return t.Root.Hash
}

// Get returns the value stored for key, if present.
func (t *Tree) Get(key []byte) ([]byte, bool) {
	for _, n := range t.leafs {
		if string(n.Key) == string(key) {
			return n.Value, true
		}
	}
	return nil, false
}

// ProofStep is one sibling hash encountered walking from a leaf to the
// root; Right records which side the sibling was on, since that
// determines the order VerifyProof must re-hash in.
type ProofStep struct {
	Hash  []byte
	Right bool
}

// GetProof returns the sibling path from key's leaf to the root.
func (t *Tree) GetProof(key []byte) ([]ProofStep, error) {
	var target *Node
	for _, n := range t.leafs {
		if string(n.Key) == string(key) {
			target = n
			break
		}
	}
	if target == nil {
		return nil, ErrKeyNotFound
	}

	var proof []ProofStep
	current := target
	for current != t.Root {
		parent := findParent(t.Root, current)
		if parent == nil {
			break
		}
		if parent.Left == current {
			proof = append(proof, ProofStep{Hash: parent.Right.Hash, Right: true})
		} else {
			proof = append(proof, ProofStep{Hash: parent.Left.Hash, Right: false})
		}
		current = parent
	}
	return proof, nil
}

func findParent(root, target *Node) *Node {
	if root == nil || root == target || root.IsLeaf {
		return nil
	}
	if root.Left == target || root.Right == target {
		return root
	}
	if p := findParent(root.Left, target); p != nil {
		return p
	}
	return findParent(root.Right, target)
}

// VerifyProof recomputes the root hash from (key, value) and proof and
// reports whether it matches rootHash.
func VerifyProof(rootHash []byte, key, value []byte, proof []ProofStep) bool {
	h := leafHash(key, value)
	for _, step := range proof {
		if step.Right {
			h = innerHash(h, step.Hash)
		} else {
			h = innerHash(step.Hash, h)
		}
	}
	return string(h) == string(rootHash)
}

func leafHash(key, value []byte) []byte {
	h := sha256.New()
	h.Write([]byte{0x00})
	h.Write(key)
	h.Write(value)
	return h.Sum(nil)
}

func innerHash(left, right []byte) []byte {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}
