package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdcs-io/mdcs/internal/syncengine"
	"github.com/mdcs-io/mdcs/pkg/crdt"
)

func testConfig(t *testing.T) Config {
	return Config{
		ReplicaID:          crdt.ReplicaID("replica-a"),
		DataDir:            t.TempDir(),
		SyncEngine:         syncengine.DefaultConfig(),
		CompactionInterval: 50 * time.Millisecond,
		MaxPrunePerCycle:   100,
	}
}

func TestNewBuildsAnIdleNodeOverAnEmptyStore(t *testing.T) {
	n, err := New(testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, n)
	t.Cleanup(func() { _ = n.Stop() })

	assert.Empty(t, n.Heads())
	assert.Empty(t, n.StableVV())
}

func TestStartStopBringsEverySubsystemUpAndDownCleanly(t *testing.T) {
	n, err := New(testConfig(t))
	require.NoError(t, err)

	require.NoError(t, n.Start(context.Background()))
	require.NoError(t, n.Stop())
}

func TestCompactRunsOneCycleSynchronously(t *testing.T) {
	n, err := New(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Stop() })

	assert.NoError(t, n.Compact())
}

func TestNewWithAuditLogEnabledBuildsCleanly(t *testing.T) {
	cfg := testConfig(t)
	cfg.AuditLog = true

	n, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Stop() })
}

func TestNewFailsWhenTLSCertFilesDoNotExist(t *testing.T) {
	cfg := testConfig(t)
	cfg.TLSCertFile = "/nonexistent/cert.pem"
	cfg.TLSKeyFile = "/nonexistent/key.pem"

	_, err := New(cfg)
	assert.Error(t, err)
}
