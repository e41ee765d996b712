package syncengine

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
)

// MessageKind is the p2p.Msg code each envelope travels under. These are
// the four message kinds spec.md's transport contract names; HeadGossip
// rides the same envelope/codec even though internal/gossip, not this
// package, is what actually publishes it over pubsub.
type MessageKind uint64

const (
	KindFrontierAnnounce MessageKind = iota
	KindSyncRequest
	KindSyncResponse
	KindHeadGossip
)

// FrontierAnnounce carries a replica's current head set.
type FrontierAnnounce struct {
	Heads []string `json:"heads"`
}

// SyncRequest is the gap probe: Have is the requester's own heads (so the
// sender knows where the requester's already-admitted frontier sits),
// Want is the subset of the remote frontier the requester lacks, and
// MaxDepth bounds how far back the sender may walk in a single round.
type SyncRequest struct {
	Have     []string `json:"have"`
	Want     []string `json:"want"`
	MaxDepth uint64   `json:"max_depth"`
}

// WireNode is merkledag.Node in a JSON-transportable shape.
type WireNode struct {
	Parents []string `json:"parents"`
	Author  string   `json:"author"`
	Height  uint64   `json:"height"`
	Kind    uint8    `json:"kind"`
	Delta   []byte   `json:"delta,omitempty"`
}

// SyncResponse carries the nodes the sender holds that the requester's
// Want named, in topological order (parents before children, ties by
// Cid) so the receiver can deliver them to the DAG store in order.
type SyncResponse struct {
	Nodes []WireNode `json:"nodes"`
}

// HeadGossip is the best-effort broadcast of a single newly admitted head,
// fanned out by internal/gossip.
type HeadGossip struct {
	Head   string `json:"head"`
	Author string `json:"author"`
}

func cidStrings(cids []merkledag.Cid) []string {
	out := make([]string, len(cids))
	for i, c := range cids {
		out[i] = c.String()
	}
	sort.Strings(out)
	return out
}

func parseCids(ss []string) ([]merkledag.Cid, error) {
	out := make([]merkledag.Cid, len(ss))
	for i, s := range ss {
		c, err := merkledag.ParseCid(s)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// NewFrontierAnnounce builds the wire form of heads.
func NewFrontierAnnounce(heads []merkledag.Cid) FrontierAnnounce {
	return FrontierAnnounce{Heads: cidStrings(heads)}
}

// Cids decodes the wire heads back into merkledag.Cid values.
func (f FrontierAnnounce) Cids() ([]merkledag.Cid, error) {
	return parseCids(f.Heads)
}

// NewSyncRequest builds the wire form of a gap probe.
func NewSyncRequest(have, want []merkledag.Cid, maxDepth uint64) SyncRequest {
	return SyncRequest{Have: cidStrings(have), Want: cidStrings(want), MaxDepth: maxDepth}
}

// HaveCids and WantCids decode the request's two Cid sets.
func (r SyncRequest) HaveCids() ([]merkledag.Cid, error) { return parseCids(r.Have) }
func (r SyncRequest) WantCids() ([]merkledag.Cid, error) { return parseCids(r.Want) }

// toWireNode converts an admitted node and its Cid into wire form.
func toWireNode(c merkledag.Cid, n merkledag.Node) WireNode {
	_ = c // the Cid is recomputed by the receiver from the node's own fields, never trusted as given
	return WireNode{
		Parents: cidStrings(n.Parents),
		Author:  string(n.Author),
		Height:  n.Height,
		Kind:    uint8(n.Payload.Kind),
		Delta:   n.Payload.Delta,
	}
}

// Node decodes a WireNode back into a merkledag.Node. The caller (not this
// method) is responsible for admitting it through merkledag.DAGStore.Put,
// which is what actually verifies the reconstructed Cid.
func (w WireNode) Node() (merkledag.Node, error) {
	parents, err := parseCids(w.Parents)
	if err != nil {
		return merkledag.Node{}, newErr(ErrKindIntegrity, "WireNode.Node", err)
	}
	return merkledag.Node{
		Parents: parents,
		Author:  crdt.ReplicaID(w.Author),
		Height:  w.Height,
		Payload: merkledag.Payload{Kind: merkledag.PayloadKind(w.Kind), Delta: w.Delta},
	}, nil
}

// NewSyncResponse builds the wire form of a batch of nodes, which the
// caller must already have ordered topologically.
func NewSyncResponse(dag merkledag.DAGStore, cids []merkledag.Cid) (SyncResponse, error) {
	nodes := make([]WireNode, 0, len(cids))
	for _, c := range cids {
		n, err := dag.Get(c)
		if err != nil {
			return SyncResponse{}, err
		}
		nodes = append(nodes, toWireNode(c, n))
	}
	return SyncResponse{Nodes: nodes}, nil
}

// NewHeadGossip builds the wire form of a single head announcement.
func NewHeadGossip(head merkledag.Cid, author crdt.ReplicaID) HeadGossip {
	return HeadGossip{Head: head.String(), Author: string(author)}
}

// Cid decodes the announced head back into a merkledag.Cid.
func (h HeadGossip) Cid() (merkledag.Cid, error) {
	return merkledag.ParseCid(h.Head)
}

// EncodeHeadGossip canonically encodes a head announcement for transports
// outside this package's own p2p.Msg framing, namely internal/gossip's
// pubsub topic.
func EncodeHeadGossip(h HeadGossip) ([]byte, error) {
	return encodeCanonical(h)
}

// DecodeHeadGossip decodes a canonically encoded head announcement
// received off a pubsub topic.
func DecodeHeadGossip(data []byte) (HeadGossip, error) {
	var h HeadGossip
	err := decodeCanonical(data, &h)
	return h, err
}

// encodeCanonical marshals v through encoding/json, which already emits
// map keys in sorted order; the Cid sets above are pre-sorted by
// cidStrings for the same reason, so two equal messages always produce
// byte-identical frames the way pkg/crdt/canonical.go guarantees for
// lattice values.
func encodeCanonical(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func decodeCanonical(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	return nil
}
