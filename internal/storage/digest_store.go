package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/mdcs-io/mdcs/pkg/digest"
)

// DigestStore wraps a Store and maintains a digest.Tree mirror of its
// keyspace, used to detect storage-backend corruption independently of
// pkg/merkledag's own Cid chain. digest.Tree is not an incremental
// structure, so DigestStore keeps a live map mirror (cheap to update per
// write) and only rebuilds the tree lazily, the next time a root hash or
// proof is actually requested.
type DigestStore struct {
	base Store

	mu     sync.RWMutex
	data   map[string][]byte
	tree   *digest.Tree
	dirty  bool
	height uint64
}

// NewDigestStore wraps base, loading its existing keyspace as the initial
// mirror.
func NewDigestStore(base Store) (*DigestStore, error) {
	ds := &DigestStore{base: base, data: make(map[string][]byte)}

	err := base.Iterate(context.Background(), nil, func(key, value []byte) error {
		if isInternalKey(key) {
			return nil
		}
		ds.data[string(key)] = append([]byte{}, value...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load keyspace into digest store: %w", err)
	}

	ds.dirty = true
	return ds, nil
}

// Get retrieves a value by key.
func (ds *DigestStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	return ds.base.Get(ctx, key)
}

// Set sets a value for a key and marks the digest tree stale.
func (ds *DigestStore) Set(ctx context.Context, key, value []byte) error {
	if err := ds.base.Set(ctx, key, value); err != nil {
		return fmt.Errorf("failed to set key in base store: %w", err)
	}

	ds.mu.Lock()
	ds.data[string(key)] = append([]byte{}, value...)
	ds.dirty = true
	ds.mu.Unlock()
	return nil
}

// Delete removes a key and marks the digest tree stale.
func (ds *DigestStore) Delete(ctx context.Context, key []byte) error {
	if err := ds.base.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete key from base store: %w", err)
	}

	ds.mu.Lock()
	delete(ds.data, string(key))
	ds.dirty = true
	ds.mu.Unlock()
	return nil
}

// Has checks if a key exists.
func (ds *DigestStore) Has(ctx context.Context, key []byte) (bool, error) {
	return ds.base.Has(ctx, key)
}

// Iterate iterates over all keys with the given prefix.
func (ds *DigestStore) Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	return ds.base.Iterate(ctx, prefix, fn)
}

// Close closes the underlying store.
func (ds *DigestStore) Close() error {
	return ds.base.Close()
}

// ensureTree rebuilds the digest tree if the mirror has changed since the
// last rebuild. Caller must hold ds.mu for writing.
func (ds *DigestStore) ensureTree() error {
	if !ds.dirty && ds.tree != nil {
		return nil
	}
	if len(ds.data) == 0 {
		ds.tree = nil
		ds.dirty = false
		return nil
	}
	tree, err := digest.NewTree(ds.data)
	if err != nil {
		return fmt.Errorf("failed to build digest tree: %w", err)
	}
	ds.tree = tree
	ds.dirty = false
	return nil
}

// RootHash returns the current digest root hash, or nil if the keyspace is
// empty.
func (ds *DigestStore) RootHash() ([]byte, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if err := ds.ensureTree(); err != nil {
		return nil, err
	}
	if ds.tree == nil {
		return nil, nil
	}
	return ds.tree.RootHash(), nil
}

// GetProof returns an inclusion proof for key against the current digest
// tree.
func (ds *DigestStore) GetProof(key []byte) ([]digest.ProofStep, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if err := ds.ensureTree(); err != nil {
		return nil, err
	}
	if ds.tree == nil {
		return nil, digest.ErrKeyNotFound
	}
	return ds.tree.GetProof(key)
}

// VerifyProof verifies proof against the current root hash.
func (ds *DigestStore) VerifyProof(key, value []byte, proof []digest.ProofStep) (bool, error) {
	root, err := ds.RootHash()
	if err != nil {
		return false, err
	}
	return digest.VerifyProof(root, key, value, proof), nil
}

// Commit snapshots the current root hash under a height key and returns
// it.
func (ds *DigestStore) Commit() ([]byte, error) {
	root, err := ds.RootHash()
	if err != nil {
		return nil, err
	}

	ds.mu.Lock()
	height := ds.height
	ds.height++
	ds.mu.Unlock()

	rootKey := digestRootKey(height)
	if err := ds.base.Set(context.Background(), rootKey, root); err != nil {
		return nil, fmt.Errorf("failed to store root hash: %w", err)
	}
	return root, nil
}

// LoadState loads a previously committed root hash.
func (ds *DigestStore) LoadState(height uint64) ([]byte, error) {
	return ds.base.Get(context.Background(), digestRootKey(height))
}

func digestRootKey(height uint64) []byte {
	return []byte(fmt.Sprintf("_root/%d", height))
}

func isInternalKey(key []byte) bool {
	return len(key) >= 6 && string(key[:6]) == "_root/"
}
