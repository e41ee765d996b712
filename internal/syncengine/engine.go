// Package syncengine is the authoritative anti-entropy transport: frontier
// exchange, bounded gap probing, and topological delta delivery between two
// replicas. It is adapted from the teacher's devp2p-style P2PServer
// (internal/gcl/p2p.go) down to the protocol-registration and per-peer
// message-loop shape, but the protocol itself now does real work instead of
// logging "unknown message code" and discarding everything.
package syncengine

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/p2p"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
)

// Config holds the engine's listening and retry parameters.
type Config struct {
	Port  int
	Seeds []string

	// MaxDepthPerRound bounds how many height-levels a single gap-probe
	// round may walk back from a requested Cid.
	MaxDepthPerRound uint64
	// MaxRoundsPerSync bounds how many successive gap-probe rounds a
	// single sync session with one peer may run before it is reported as
	// exceeding its ceiling.
	MaxRoundsPerSync int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxElapsedTime time.Duration
}

// DefaultConfig returns sane defaults for a single-process node.
func DefaultConfig() Config {
	return Config{
		Port:             26751,
		MaxDepthPerRound: 256,
		MaxRoundsPerSync: 8,
		InitialBackoff:   100 * time.Millisecond,
		MaxBackoff:       5 * time.Second,
		MaxElapsedTime:   30 * time.Second,
	}
}

// IntegrityHook is invoked whenever a peer sends a node that fails hash or
// cycle verification, so the caller can surface an observability event or
// demote the peer; policy beyond that is left to the caller (spec.md
// §4.3: "the offending peer MAY be demoted (policy left to collaborator)").
type IntegrityHook func(peer enode.ID, cid merkledag.Cid, err error)

// FrontierHook is invoked with a peer's own frontier, translated into a
// version vector, whenever this engine finishes admitting everything that
// peer advertised as its heads. Wired to
// internal/compaction.StabilityMonitor.ReportPeerFrontier in internal/node,
// since stability can only advance once a peer's counters are known to
// have actually landed here, not merely been requested.
type FrontierHook func(peer enode.ID, vv crdt.VersionVector)

// peerConn pairs a connected p2p.Peer with the MsgReadWriter its protocol
// handler was given, plus this engine's bookkeeping for outstanding sync
// rounds with it.
type peerConn struct {
	peer *p2p.Peer
	rw   p2p.MsgReadWriter

	mu        sync.Mutex
	rounds    int
	lastHeads []merkledag.Cid // the peer's most recently announced frontier
}

// Engine drives the three-phase exchange (frontier exchange, gap probe,
// delta application) described in spec.md §4.3 over a devp2p-style
// transport.
type Engine struct {
	dag merkledag.DAGStore
	cfg Config

	privKey *ecdsa.PrivateKey
	server  *p2p.Server

	mu    sync.RWMutex
	peers map[enode.ID]*peerConn

	onIntegrityViolation IntegrityHook
	onPeerFrontier       FrontierHook
}

// NewEngine builds an Engine over dag. onIntegrityViolation and
// onPeerFrontier may both be nil.
func NewEngine(dag merkledag.DAGStore, cfg Config, onIntegrityViolation IntegrityHook, onPeerFrontier FrontierHook) (*Engine, error) {
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, newErr(ErrKindIO, "NewEngine", fmt.Errorf("generate node key: %w", err))
	}

	e := &Engine{
		dag:                  dag,
		cfg:                  cfg,
		privKey:              privKey,
		peers:                make(map[enode.ID]*peerConn),
		onIntegrityViolation: onIntegrityViolation,
		onPeerFrontier:       onPeerFrontier,
	}

	serverConfig := p2p.Config{
		PrivateKey:      privKey,
		Name:            "mdcs-syncengine",
		ListenAddr:      fmt.Sprintf(":%d", cfg.Port),
		Protocols:       e.makeProtocols(),
		BootstrapNodes:  []*enode.Node{},
		StaticNodes:     []*enode.Node{},
		TrustedNodes:    []*enode.Node{},
		NoDiscovery:     false,
		DialRatio:       3,
		MaxPeers:        50,
		MaxPendingPeers: 50,
	}
	for _, seed := range cfg.Seeds {
		n, err := enode.Parse(enode.ValidSchemes, seed)
		if err != nil {
			log.Printf("syncengine: failed to parse seed %s: %v", seed, err)
			continue
		}
		serverConfig.BootstrapNodes = append(serverConfig.BootstrapNodes, n)
	}

	e.server = &p2p.Server{Config: serverConfig}
	return e, nil
}

// Start brings the transport up.
func (e *Engine) Start() error {
	if err := e.server.Start(); err != nil {
		return newErr(ErrKindIO, "Start", err)
	}
	log.Printf("syncengine: started, node ID %s", e.server.Self())
	return nil
}

// Stop tears the transport down.
func (e *Engine) Stop() error {
	e.server.Stop()
	return nil
}

func (e *Engine) makeProtocols() []p2p.Protocol {
	return []p2p.Protocol{
		{
			Name:    "mdcs-sync",
			Version: 1,
			Length:  uint64(KindHeadGossip) + 1,
			Run:     e.handlePeer,
		},
	}
}

func (e *Engine) handlePeer(peer *p2p.Peer, rw p2p.MsgReadWriter) error {
	conn := &peerConn{peer: peer, rw: rw}
	e.mu.Lock()
	e.peers[peer.ID()] = conn
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.peers, peer.ID())
		e.mu.Unlock()
	}()

	if err := e.announceFrontier(conn); err != nil {
		return err
	}

	for {
		msg, err := rw.ReadMsg()
		if err != nil {
			return err
		}
		if err := e.dispatch(conn, msg); err != nil {
			log.Printf("syncengine: peer %s: %v", peer.ID(), err)
		}
		msg.Discard()
	}
}

func (e *Engine) dispatch(conn *peerConn, msg p2p.Msg) error {
	payload, err := io.ReadAll(io.LimitReader(msg.Payload, int64(msg.Size)))
	if err != nil {
		return newErr(ErrKindIO, "dispatch", err)
	}

	switch msg.Code {
	case uint64(KindFrontierAnnounce):
		var m FrontierAnnounce
		if err := decodeCanonical(payload, &m); err != nil {
			return err
		}
		return e.onFrontierAnnounce(conn, m)
	case uint64(KindSyncRequest):
		var m SyncRequest
		if err := decodeCanonical(payload, &m); err != nil {
			return err
		}
		return e.onSyncRequest(conn, m)
	case uint64(KindSyncResponse):
		var m SyncResponse
		if err := decodeCanonical(payload, &m); err != nil {
			return err
		}
		return e.onSyncResponse(conn, m)
	case uint64(KindHeadGossip):
		var m HeadGossip
		if err := decodeCanonical(payload, &m); err != nil {
			return err
		}
		return e.onHeadGossip(conn, m)
	default:
		log.Printf("syncengine: unknown message code %d from %s", msg.Code, conn.peer.ID())
		return nil
	}
}
