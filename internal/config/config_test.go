package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigWithNoFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig().SyncEngine.Port, cfg.SyncEngine.Port)
	assert.Equal(t, DefaultConfig().API.REST.Address, cfg.API.REST.Address)
	assert.True(t, cfg.API.REST.Enabled)
	assert.True(t, cfg.API.GRPC.Enabled)
}

func TestNodeConfigGeneratesAReplicaIDWhenNoneConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.ReplicaID = ""

	nc := cfg.NodeConfig()
	assert.NotEmpty(t, nc.ReplicaID)
}

func TestNodeConfigPrefersStoragePathOverNodeDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.DataDir = "./data"
	cfg.Storage.Path = "/var/lib/mdcs"

	nc := cfg.NodeConfig()
	assert.Equal(t, "/var/lib/mdcs", nc.DataDir)
}

func TestNodeConfigLeavesAddressesEmptyWhenTransportDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.REST.Enabled = false
	cfg.API.GRPC.Enabled = false

	nc := cfg.NodeConfig()
	assert.Empty(t, nc.RESTAddr)
	assert.Empty(t, nc.GRPCAddr)
}
