package compaction

import (
	"sync"

	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
)

// StabilityMonitor tracks how far this replica's own frontier and its
// peers' reported frontiers have advanced, and folds them into a single
// stable version vector: a replica's counter is stable only once every
// known peer has observed it, so no future sync round can still need it.
type StabilityMonitor struct {
	mu            sync.RWMutex
	selfVV        crdt.VersionVector
	peerFrontiers map[crdt.ReplicaID]crdt.VersionVector
}

// NewStabilityMonitor returns a monitor with no observations yet; its
// StableVV is the bottom vector until ObserveSelf is first called. While no
// peer frontier has been reported, StableVV equals this replica's own
// observed frontier.
func NewStabilityMonitor() *StabilityMonitor {
	return &StabilityMonitor{
		selfVV:        crdt.NewVersionVector(),
		peerFrontiers: make(map[crdt.ReplicaID]crdt.VersionVector),
	}
}

// ObserveSelf joins vv into this replica's own frontier, normally called
// each time the local Merkle-DAG admits a new head.
func (m *StabilityMonitor) ObserveSelf(vv crdt.VersionVector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selfVV = m.selfVV.Join(vv)
}

// ReportPeerFrontier records the version vector peer last advertised as
// its own frontier, normally delivered by the sync engine after a
// successful exchange with that peer.
func (m *StabilityMonitor) ReportPeerFrontier(peer crdt.ReplicaID, vv crdt.VersionVector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peerFrontiers[peer] = vv
}

// ForgetPeer drops a peer's last-reported frontier, used when a peer is
// evicted from the replica set so its stale frontier can no longer hold
// stability back.
func (m *StabilityMonitor) ForgetPeer(peer crdt.ReplicaID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peerFrontiers, peer)
}

// StableVV returns the pointwise meet of the local frontier and every
// known peer frontier: the highest counter per replica that is guaranteed
// to already be present everywhere this replica knows about.
func (m *StabilityMonitor) StableVV() crdt.VersionVector {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stableVVLocked()
}

func (m *StabilityMonitor) stableVVLocked() crdt.VersionVector {
	stable := m.selfVV.Clone()
	for _, peerVV := range m.peerFrontiers {
		stable = stable.Meet(peerVV)
	}
	return stable
}

// IsStable reports whether the given (author, counter) pair is covered by
// every known peer's frontier.
func (m *StabilityMonitor) IsStable(author crdt.ReplicaID, counter uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stableVVLocked().Covers(author, counter)
}

// IsStableFrontier reports whether every ancestor of every head in the
// given frontier is stable, i.e. whether pruning could, in principle,
// remove all of it without losing anything any peer still needs.
func (m *StabilityMonitor) IsStableFrontier(dag merkledag.DAGStore, heads []merkledag.Cid) (bool, error) {
	m.mu.RLock()
	stable := m.stableVVLocked()
	m.mu.RUnlock()

	seen := make(map[merkledag.Cid]struct{})
	for _, h := range heads {
		ancestors, err := dag.Ancestors(h, nil)
		if err != nil {
			return false, err
		}
		for _, a := range ancestors {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			n, err := dag.Get(a)
			if err != nil {
				return false, err
			}
			if !stable.Covers(n.Author, n.Height+1) {
				return false, nil
			}
		}
	}
	return true, nil
}
