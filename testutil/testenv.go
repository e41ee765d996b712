// Package testutil provides shared test scaffolding for spinning up a
// fully wired replica (store, DAG, sync engine, compactor, REST/gRPC
// front ends) over a temp directory, the way integration tests across the
// module need to without each reimplementing the wiring.
package testutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/mdcs-io/mdcs/internal/node"
	"github.com/mdcs-io/mdcs/internal/syncengine"
	"github.com/mdcs-io/mdcs/pkg/crdt"
)

// TestEnvironment manages a single running replica for integration tests.
type TestEnvironment struct {
	T       *testing.T
	TempDir string
	Node    *node.Node
	RESTURL string
}

// NewTestEnvironment builds and starts a replica with a free REST port,
// cleaning itself up via t.Cleanup.
func NewTestEnvironment(t *testing.T, replicaID crdt.ReplicaID) *TestEnvironment {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "mdcs-test-*")
	if err != nil {
		t.Fatalf("testutil: create temp dir: %v", err)
	}

	restAddr := mustFreeAddr(t)

	cfg := node.Config{
		ReplicaID:          replicaID,
		DataDir:            tempDir,
		SyncEngine:         syncengine.DefaultConfig(),
		CompactionInterval: 50 * time.Millisecond,
		MaxPrunePerCycle:   1000,
		RESTAddr:           restAddr,
	}
	// avoid two environments in the same test run colliding on the sync
	// engine's default fixed port
	cfg.SyncEngine.Port = 0

	n, err := node.New(cfg)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("testutil: build node: %v", err)
	}

	env := &TestEnvironment{
		T:       t,
		TempDir: tempDir,
		Node:    n,
		RESTURL: fmt.Sprintf("http://%s", restAddr),
	}

	if err := n.Start(context.Background()); err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("testutil: start node: %v", err)
	}
	waitForHealth(t, env.RESTURL)

	t.Cleanup(env.Close)
	return env
}

// Close stops the replica and removes its temp directory.
func (env *TestEnvironment) Close() {
	env.T.Helper()
	if err := env.Node.Stop(); err != nil {
		env.T.Logf("testutil: error stopping node: %v", err)
	}
	if env.TempDir != "" {
		if err := os.RemoveAll(env.TempDir); err != nil {
			env.T.Logf("testutil: error removing temp dir: %v", err)
		}
	}
}

func mustFreeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("testutil: find free port: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()
	return addr
}

func waitForHealth(t *testing.T, baseURL string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := (&net.Dialer{Timeout: 50 * time.Millisecond}).Dial("tcp", baseURL[len("http://"):])
		if err == nil {
			_ = resp.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("testutil: node at %s never became reachable", baseURL)
}
