// Package gossip is the best-effort head broadcaster: a thin libp2p+pubsub
// fan-out of newly admitted heads, adapted from the teacher's GossipProtocol
// (which gossiped and anti-entropied an entire ad-hoc map[string]interface{}
// "CRDT state" over hand-rolled streams). The only thing this layer
// disseminates now is HeadGossip(Cid); it never carries lattice state and
// is never the authority on it. Any head it announces that the local
// replica doesn't recognize is handed to internal/syncengine, the
// authoritative path, rather than merged in directly.
package gossip

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p-pubsub"
	"github.com/multiformats/go-multiaddr"

	"github.com/mdcs-io/mdcs/internal/syncengine"
	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
)

// headTopic is the single pubsub topic this package ever publishes or
// subscribes to.
const headTopic = "/mdcs/heads/1.0.0"

// UnknownHeadHandler is invoked, from the broadcaster's own read loop, for
// every gossiped head this replica does not already hold. Wired to
// internal/syncengine.Engine.RequestHead in internal/node.
type UnknownHeadHandler func(head merkledag.Cid) error

// Broadcaster disseminates newly admitted heads to a configurable fan-out
// of peers over gossipsub, and reacts to incoming head announcements by
// triggering the authoritative sync path for anything unrecognized.
type Broadcaster struct {
	host  host.Host
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	dag       merkledag.DAGStore
	self      crdt.ReplicaID
	onUnknown UnknownHeadHandler

	cancel context.CancelFunc
	done   chan struct{}
}

// NewBroadcaster starts a libp2p host listening on listenAddr, joins the
// head-gossip topic with a gossipsub mesh degree of fanout, and launches
// the read loop that reacts to incoming announcements. onUnknown may be
// nil if the caller does not want to react to gossip (e.g. in tests).
func NewBroadcaster(listenAddr string, dag merkledag.DAGStore, self crdt.ReplicaID, fanout int, onUnknown UnknownHeadHandler) (*Broadcaster, error) {
	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		return nil, fmt.Errorf("gossip: create libp2p host: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	params := pubsub.DefaultGossipSubParams()
	if fanout > 0 {
		params.D = fanout
		params.Dlo = fanout
		params.Dhi = fanout * 2
	}
	ps, err := pubsub.NewGossipSub(ctx, h, pubsub.WithGossipSubParams(params))
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("gossip: create gossipsub router: %w", err)
	}

	topic, err := ps.Join(headTopic)
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("gossip: join topic: %w", err)
	}

	sub, err := topic.Subscribe()
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("gossip: subscribe to topic: %w", err)
	}

	b := &Broadcaster{
		host:      h,
		topic:     topic,
		sub:       sub,
		dag:       dag,
		self:      self,
		onUnknown: onUnknown,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go b.readLoop(ctx)

	log.Printf("gossip: broadcaster started on %s, peer ID %s", listenAddr, h.ID())
	return b, nil
}

// AddPeer connects to a peer given as a /p2p multiaddr, so gossipsub can
// include it in its mesh.
func (b *Broadcaster) AddPeer(peerAddr string) error {
	addr, err := multiaddr.NewMultiaddr(peerAddr)
	if err != nil {
		return fmt.Errorf("gossip: invalid peer address: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("gossip: parse peer info: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("gossip: connect to peer: %w", err)
	}
	return nil
}

// Announce publishes head to the gossip topic. Best-effort: callers that
// need delivery guarantees rely on the frontier exchange in
// internal/syncengine, not on this call succeeding.
func (b *Broadcaster) Announce(head merkledag.Cid) error {
	data, err := syncengine.EncodeHeadGossip(syncengine.NewHeadGossip(head, b.self))
	if err != nil {
		return fmt.Errorf("gossip: encode head announcement: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.topic.Publish(ctx, data); err != nil {
		return fmt.Errorf("gossip: publish head announcement: %w", err)
	}
	return nil
}

// Stop tears the broadcaster down: cancels the read loop, leaves the
// topic, and closes the libp2p host.
func (b *Broadcaster) Stop() error {
	b.sub.Cancel()
	b.cancel()
	<-b.done
	if err := b.topic.Close(); err != nil {
		log.Printf("gossip: error closing topic: %v", err)
	}
	return b.host.Close()
}

// readLoop consumes the subscription until it is cancelled, handing any
// head this replica does not already have to onUnknown.
func (b *Broadcaster) readLoop(ctx context.Context) {
	defer close(b.done)

	for {
		msg, err := b.sub.Next(ctx)
		if err != nil {
			return // context cancelled, or subscription cancelled in Stop
		}
		if msg.ReceivedFrom == b.host.ID() {
			continue // gossipsub echoes our own publishes back to us
		}

		announced, err := syncengine.DecodeHeadGossip(msg.Data)
		if err != nil {
			log.Printf("gossip: dropping malformed head announcement from %s: %v", msg.ReceivedFrom, err)
			continue
		}
		head, err := announced.Cid()
		if err != nil {
			log.Printf("gossip: dropping head announcement with unparseable Cid from %s: %v", msg.ReceivedFrom, err)
			continue
		}
		if b.dag.Has(head) {
			continue
		}
		if b.onUnknown == nil {
			continue
		}
		if err := b.onUnknown(head); err != nil {
			log.Printf("gossip: sync trigger for unknown head failed: %v", err)
		}
	}
}
