// Package node is the top-level orchestrator: it owns the durable store,
// the Merkle-DAG, the sync engine, the gossip broadcaster, and the
// compactor, and starts/stops them together. Adapted from the teacher's
// internal/gcl/node.go (context+cancel, single run goroutine, ordered
// shutdown), generalized from one hardcoded subsystem list to this store's
// actual components.
package node

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/p2p/enode"

	"github.com/mdcs-io/mdcs/internal/api"
	"github.com/mdcs-io/mdcs/internal/cas"
	"github.com/mdcs-io/mdcs/internal/compaction"
	"github.com/mdcs-io/mdcs/internal/gossip"
	"github.com/mdcs-io/mdcs/internal/security"
	"github.com/mdcs-io/mdcs/internal/storage"
	"github.com/mdcs-io/mdcs/internal/syncengine"
	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
)

// Config collects everything Node needs to construct and wire its
// subsystems. Mirrors the shape of pkg/config.Config's node/network/
// storage/gossip/api sections, narrowed to what this store actually has.
type Config struct {
	ReplicaID crdt.ReplicaID
	DataDir   string

	SyncEngine   syncengine.Config
	GossipListen string
	GossipFanout int

	CompactionInterval time.Duration
	MaxPrunePerCycle   int
	SnapshotPolicy     compaction.ThresholdPolicy

	CASEndpoint  string
	CASAccessKey string
	CASSecretKey string
	CASBucket    string
	CASUseSSL    bool

	RESTAddr string
	GRPCAddr string

	// TLSCertFile/TLSKeyFile/TLSCAFile, when both cert and key are set,
	// make both front ends terminate TLS (mutual TLS if CAFile is also
	// set). Left empty, both front ends serve plaintext.
	TLSCertFile string
	TLSKeyFile  string
	TLSCAFile   string

	// AuditLog enables security-event logging (node admissions, integrity
	// violations reported by peers) through internal/security.AuditLogger.
	AuditLog bool
}

// Node owns the full subsystem graph for one replica process.
type Node struct {
	cfg Config

	store     *storage.BadgerStore
	dag       *merkledag.BadgerDAGStore
	stability *compaction.StabilityMonitor
	snapshots *compaction.SnapshotManager
	compactor *compaction.Compactor

	engine      *syncengine.Engine
	broadcaster *gossip.Broadcaster

	audit      *security.AuditLogger
	restServer *api.Server
	grpcServer *api.GRPCServer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs every subsystem but starts none of them; call Start to
// bring the replica up.
func New(cfg Config) (*Node, error) {
	store, err := storage.NewBadgerStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("node: open store: %w", err)
	}

	dag, err := merkledag.NewBadgerDAGStore(store, 0)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("node: open dag: %w", err)
	}

	keyManager, err := security.NewKeyManager()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("node: init key manager: %w", err)
	}

	var blobs *cas.CAS
	if cfg.CASEndpoint != "" {
		blobs, err = cas.NewCAS(cfg.CASEndpoint, cfg.CASAccessKey, cfg.CASSecretKey, cfg.CASBucket, cfg.CASUseSSL)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("node: init cas: %w", err)
		}
	}

	compactionInterval := cfg.CompactionInterval
	if compactionInterval <= 0 {
		compactionInterval = time.Minute
	}

	stability := compaction.NewStabilityMonitor()
	snapshots := compaction.NewSnapshotManager(store, blobs, keyManager, joinDocument, cfg.SnapshotPolicy)
	compactor := compaction.NewCompactor(dag, stability, snapshots, foldDocument, compactionInterval, cfg.MaxPrunePerCycle)

	n := &Node{
		cfg:       cfg,
		store:     store,
		dag:       dag,
		stability: stability,
		snapshots: snapshots,
		compactor: compactor,
	}

	engine, err := syncengine.NewEngine(dag, cfg.SyncEngine, n.onIntegrityViolation, n.onPeerFrontier)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("node: init sync engine: %w", err)
	}
	n.engine = engine

	if cfg.GossipListen != "" {
		broadcaster, err := gossip.NewBroadcaster(cfg.GossipListen, dag, cfg.ReplicaID, cfg.GossipFanout, n.onUnknownHead)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("node: init gossip: %w", err)
		}
		n.broadcaster = broadcaster
	}

	n.audit = security.NewAuditLogger(cfg.AuditLog)
	n.restServer = api.NewServer(dag, engine, n.broadcaster)
	n.restServer.SetAuditLogger(n.audit)
	n.grpcServer = api.NewGRPCServer(n.restServer)

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		tlsMeta, err := security.LoadTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile, cfg.TLSCAFile)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("node: load tls config: %w", err)
		}
		tlsCfg, err := tlsMeta.Load()
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("node: load tls config: %w", err)
		}
		n.restServer.SetTLSConfig(tlsCfg)
		n.grpcServer.SetTLSConfig(tlsCfg.Clone())
	}

	return n, nil
}

func (n *Node) onIntegrityViolation(peer enode.ID, cid merkledag.Cid, err error) {
	log.Printf("node: integrity violation from peer %s on %s: %v", peer, cid, err)
	n.audit.LogSecurityEvent("integrity_violation", fmt.Sprintf("peer=%s cid=%s err=%v", peer, cid, err))
}

func (n *Node) onPeerFrontier(peer enode.ID, vv crdt.VersionVector) {
	n.stability.ReportPeerFrontier(crdt.ReplicaID(peer.String()), vv)
}

func (n *Node) onUnknownHead(head merkledag.Cid) error {
	return n.engine.RequestHead(head)
}

// Start brings every subsystem up: the sync transport first (so it can
// start accepting peers immediately), then the compactor, then the REST
// and gRPC front ends in their own goroutines.
func (n *Node) Start(ctx context.Context) error {
	_, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	if err := n.engine.Start(); err != nil {
		cancel()
		return fmt.Errorf("node: start sync engine: %w", err)
	}

	n.compactor.Start()

	if n.cfg.RESTAddr != "" {
		n.wg.Add(1)
		go n.runREST()
	}
	if n.cfg.GRPCAddr != "" {
		n.wg.Add(1)
		go n.runGRPC()
	}

	log.Printf("node: %s started", n.cfg.ReplicaID)
	return nil
}

func (n *Node) runREST() {
	defer n.wg.Done()
	if err := n.restServer.Start(n.cfg.RESTAddr); err != nil && err != http.ErrServerClosed {
		log.Printf("node: REST server error: %v", err)
	}
}

func (n *Node) runGRPC() {
	defer n.wg.Done()
	if err := n.grpcServer.Start(n.cfg.GRPCAddr); err != nil {
		log.Printf("node: gRPC server error: %v", err)
	}
}

// Stop tears every subsystem down in reverse order, waiting for the
// front-end goroutines to exit before closing the store underneath them.
func (n *Node) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}

	if n.cfg.RESTAddr != "" {
		if err := n.restServer.Stop(); err != nil {
			log.Printf("node: error stopping REST server: %v", err)
		}
	}
	if n.cfg.GRPCAddr != "" {
		n.grpcServer.Stop()
	}

	if n.broadcaster != nil {
		if err := n.broadcaster.Stop(); err != nil {
			log.Printf("node: error stopping gossip broadcaster: %v", err)
		}
	}

	// The compaction loop runs only after Start; stopping it otherwise
	// would wait on a loop that never ran.
	if n.cancel != nil {
		n.compactor.Stop()
	}

	if err := n.engine.Stop(); err != nil {
		log.Printf("node: error stopping sync engine: %v", err)
	}

	n.wg.Wait()

	return n.store.Close()
}

// Heads returns the replica's current minimal antichain.
func (n *Node) Heads() []merkledag.Cid {
	return n.dag.Heads()
}

// StableVV returns the stability monitor's current view of the pointwise
// meet of this replica's own frontier and every peer frontier reported to
// it so far.
func (n *Node) StableVV() crdt.VersionVector {
	return n.stability.StableVV()
}

// Compact runs a single scan/evaluate/snapshot/prune cycle synchronously,
// for administrative triggering outside the ticker loop.
func (n *Node) Compact() error {
	return n.compactor.RunOnce()
}

// Local is the read/administer surface over a replica's on-disk state
// without bringing its network transports up, for cmd/mdcsctl subcommands
// that operate directly on a data directory (dump the stable version
// vector, force a compaction pass) rather than over the wire.
// Unlike Node it never starts the compaction ticker, so Close never has to
// wait on a loop that was never running.
type Local struct {
	store     *storage.BadgerStore
	dag       *merkledag.BadgerDAGStore
	stability *compaction.StabilityMonitor
	compactor *compaction.Compactor
}

// OpenLocal opens the store and DAG at dataDir and wires a Compactor over
// them, without a key manager, CAS client, or sync engine: nothing is
// replicated, and a snapshot taken by Compact is stored inline in the
// store, unencrypted.
func OpenLocal(dataDir string, policy compaction.ThresholdPolicy, maxPrunePerCycle int) (*Local, error) {
	store, err := storage.NewBadgerStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("node: open store: %w", err)
	}

	dag, err := merkledag.NewBadgerDAGStore(store, 0)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("node: open dag: %w", err)
	}

	stability := compaction.NewStabilityMonitor()
	snapshots := compaction.NewSnapshotManager(store, nil, nil, joinDocument, policy)
	compactor := compaction.NewCompactor(dag, stability, snapshots, foldDocument, time.Hour, maxPrunePerCycle)

	return &Local{store: store, dag: dag, stability: stability, compactor: compactor}, nil
}

// Heads returns the replica's current minimal antichain.
func (l *Local) Heads() []merkledag.Cid {
	return l.dag.Heads()
}

// StableVV returns the stability monitor's current view. Since nothing
// ever reports a peer frontier in a local session, this is exactly the
// replica's own last-observed frontier.
func (l *Local) StableVV() crdt.VersionVector {
	heads := l.dag.Heads()
	vv, err := l.dag.FrontierVV(heads)
	if err != nil {
		return l.stability.StableVV()
	}
	l.stability.ObserveSelf(vv)
	return l.stability.StableVV()
}

// Compact runs a single scan/evaluate/snapshot/prune cycle synchronously.
func (l *Local) Compact() error {
	return l.compactor.RunOnce()
}

// Close releases the underlying store.
func (l *Local) Close() error {
	return l.store.Close()
}
