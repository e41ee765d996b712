package compaction

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mdcs-io/mdcs/internal/cas"
	"github.com/mdcs-io/mdcs/internal/security"
	"github.com/mdcs-io/mdcs/internal/storage"
	"github.com/mdcs-io/mdcs/pkg/crdt"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
)

// Snapshot is a point-in-time join of every delta admitted up to a
// frontier, kept so the deltas themselves can later be pruned without
// losing the state they contributed.
type Snapshot struct {
	FrontierVV      crdt.VersionVector
	State           []byte
	RootCid         merkledag.Cid
	CreatedAtHeight uint64
}

// ThresholdPolicy controls how much new, unsnapshotted progress must
// accumulate before MaybeSnapshot actually takes a snapshot. Whichever
// condition fires first wins; a zero field is treated as disabled.
type ThresholdPolicy struct {
	MinNewNodes uint64
	MinNewBytes uint64
	MinInterval time.Duration
}

// JoinDelta folds one admitted delta's payload into the running state,
// the same way the caller's concrete lattice type would via Join/Merge.
// compaction never decodes delta payloads itself; this callback is how a
// node's main loop supplies that behavior without pkg/merkledag or
// internal/compaction needing to know which CRDT types are in play.
type JoinDelta func(state []byte, delta []byte) ([]byte, error)

// SnapshotManager produces, persists, and reloads Snapshots. Small state
// blobs are kept inline in the metadata record; when blobs is non-nil,
// state is instead pushed to content-addressed storage keyed by the
// snapshot's root Cid, and the metadata record only holds a pointer to it.
type SnapshotManager struct {
	mu sync.Mutex

	meta       storage.Store
	blobs      *cas.CAS
	keyManager *security.KeyManager
	join       JoinDelta
	policy     ThresholdPolicy

	last            *Snapshot
	lastCommittedAt time.Time
	nodesSinceLast  uint64
	bytesSinceLast  uint64
	pendingDeltas   [][]byte
}

// NewSnapshotManager builds a manager persisting metadata to meta. blobs
// and keyManager are both optional (nil disables out-of-line blob storage
// and at-rest encryption respectively).
func NewSnapshotManager(meta storage.Store, blobs *cas.CAS, keyManager *security.KeyManager, join JoinDelta, policy ThresholdPolicy) *SnapshotManager {
	return &SnapshotManager{
		meta:            meta,
		blobs:           blobs,
		keyManager:      keyManager,
		join:            join,
		policy:          policy,
		lastCommittedAt: time.Time{},
	}
}

// Observe records that a newly admitted node contributed delta, advancing
// the accumulators MaybeSnapshot's threshold checks read and buffering the
// payload so the next snapshot (if any) folds it in.
func (m *SnapshotManager) Observe(delta []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodesSinceLast++
	m.bytesSinceLast += uint64(len(delta))
	m.pendingDeltas = append(m.pendingDeltas, delta)
}

// Latest returns the most recently committed snapshot, or nil if none has
// been taken yet this process (call LoadLatest first to recover one
// persisted by an earlier run).
func (m *SnapshotManager) Latest() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// MaybeSnapshot takes a new snapshot if stableVV has progressed past the
// last snapshot's frontier and the configured threshold has been met,
// folding every delta buffered by Observe since the last snapshot into the
// running state, in the order they were observed. Returns nil, nil if no
// snapshot was warranted this round.
func (m *SnapshotManager) MaybeSnapshot(stableVV crdt.VersionVector, rootCid merkledag.Cid, createdAtHeight uint64) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.last != nil {
		if stableVV.Leq(m.last.FrontierVV) {
			return nil, nil
		}
		if !m.thresholdMetLocked() {
			return nil, nil
		}
	}

	var state []byte
	if m.last != nil {
		state = append([]byte{}, m.last.State...)
	}
	for _, delta := range m.pendingDeltas {
		var err error
		state, err = m.join(state, delta)
		if err != nil {
			return nil, newErr(ErrKindIO, "MaybeSnapshot", fmt.Errorf("failed to fold delta into snapshot state: %w", err))
		}
	}

	snap := &Snapshot{
		FrontierVV:      stableVV.Clone(),
		State:           state,
		RootCid:         rootCid,
		CreatedAtHeight: createdAtHeight,
	}

	if err := m.persistLocked(snap); err != nil {
		return nil, err
	}

	m.last = snap
	m.lastCommittedAt = time.Now()
	m.nodesSinceLast = 0
	m.bytesSinceLast = 0
	m.pendingDeltas = nil
	return snap, nil
}

func (m *SnapshotManager) thresholdMetLocked() bool {
	if m.policy.MinNewNodes > 0 && m.nodesSinceLast >= m.policy.MinNewNodes {
		return true
	}
	if m.policy.MinNewBytes > 0 && m.bytesSinceLast >= m.policy.MinNewBytes {
		return true
	}
	if m.policy.MinInterval > 0 && time.Since(m.lastCommittedAt) >= m.policy.MinInterval {
		return true
	}
	return false
}

// snapshotMetaWire is the JSON record persisted under meta's keyspace; the
// (possibly encrypted) state payload either travels inline or, when blobs
// is configured, is uploaded separately and only referenced here.
type snapshotMetaWire struct {
	FrontierVV      map[string]uint64 `json:"frontier_vv"`
	RootCid         string            `json:"root_cid"`
	CreatedAtHeight uint64            `json:"created_at_height"`
	BlobStored      bool              `json:"blob_stored,omitempty"`
	InlineState     []byte            `json:"inline_state,omitempty"`
	EncryptedKey    []byte            `json:"encrypted_key,omitempty"`
}

func snapshotKey(height uint64) []byte {
	return []byte(fmt.Sprintf("snapshot/%020d", height))
}

func vvToWire(vv crdt.VersionVector) map[string]uint64 {
	out := make(map[string]uint64, len(vv))
	for r, c := range vv {
		out[string(r)] = c
	}
	return out
}

func vvFromWire(w map[string]uint64) crdt.VersionVector {
	vv := crdt.NewVersionVector()
	for r, c := range w {
		vv[crdt.ReplicaID(r)] = c
	}
	return vv
}

func (m *SnapshotManager) persistLocked(snap *Snapshot) error {
	wire := snapshotMetaWire{
		FrontierVV:      vvToWire(snap.FrontierVV),
		RootCid:         snap.RootCid.String(),
		CreatedAtHeight: snap.CreatedAtHeight,
	}

	payload := snap.State
	if m.keyManager != nil {
		ciphertext, encKey, err := m.keyManager.EncryptData(snap.State)
		if err != nil {
			return newErr(ErrKindIO, "persist", fmt.Errorf("failed to encrypt snapshot state: %w", err))
		}
		payload = ciphertext
		wire.EncryptedKey = encKey
	}

	if m.blobs != nil {
		if err := m.blobs.Put(context.Background(), snap.RootCid.String(), payload); err != nil {
			return newErr(ErrKindIO, "persist", fmt.Errorf("failed to upload snapshot blob: %w", err))
		}
		wire.BlobStored = true
	} else {
		wire.InlineState = payload
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return newErr(ErrKindIO, "persist", err)
	}
	if err := m.meta.Set(context.Background(), snapshotKey(snap.CreatedAtHeight), data); err != nil {
		return newErr(ErrKindIO, "persist", fmt.Errorf("failed to write snapshot metadata: %w", err))
	}
	return nil
}

// LoadLatest scans meta for the highest-height committed snapshot and
// loads it as the manager's current baseline, decrypting and/or fetching
// its blob as needed. Used on startup to resume where a previous process
// left off instead of re-snapshotting from scratch.
func (m *SnapshotManager) LoadLatest() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *snapshotMetaWire
	var bestHeight uint64
	found := false

	err := m.meta.Iterate(context.Background(), []byte("snapshot/"), func(_ []byte, value []byte) error {
		var w snapshotMetaWire
		if err := json.Unmarshal(value, &w); err != nil {
			return fmt.Errorf("corrupt snapshot metadata: %w", err)
		}
		if !found || w.CreatedAtHeight > bestHeight {
			best = &w
			bestHeight = w.CreatedAtHeight
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, newErr(ErrKindIO, "LoadLatest", err)
	}
	if !found {
		return nil, ErrNoSnapshot
	}

	payload := best.InlineState
	if best.BlobStored {
		if m.blobs == nil {
			return nil, newErr(ErrKindIO, "LoadLatest", fmt.Errorf("snapshot %s is blob-stored but no CAS is configured", best.RootCid))
		}
		data, err := m.blobs.Get(context.Background(), best.RootCid)
		if err != nil {
			return nil, newErr(ErrKindIO, "LoadLatest", fmt.Errorf("failed to fetch snapshot blob: %w", err))
		}
		payload = data
	}

	state := payload
	if m.keyManager != nil && len(best.EncryptedKey) > 0 {
		plaintext, err := m.keyManager.DecryptData(payload, best.EncryptedKey)
		if err != nil {
			return nil, newErr(ErrKindIO, "LoadLatest", fmt.Errorf("failed to decrypt snapshot state: %w", err))
		}
		state = plaintext
	}

	rootCid, err := merkledag.ParseCid(best.RootCid)
	if err != nil {
		return nil, newErr(ErrKindIO, "LoadLatest", err)
	}

	snap := &Snapshot{
		FrontierVV:      vvFromWire(best.FrontierVV),
		State:           state,
		RootCid:         rootCid,
		CreatedAtHeight: best.CreatedAtHeight,
	}
	m.last = snap
	m.lastCommittedAt = time.Now()
	m.nodesSinceLast = 0
	m.bytesSinceLast = 0
	return snap, nil
}
