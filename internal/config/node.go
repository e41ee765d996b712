package config

import (
	"github.com/mdcs-io/mdcs/internal/compaction"
	"github.com/mdcs-io/mdcs/internal/node"
	"github.com/mdcs-io/mdcs/internal/security"
	"github.com/mdcs-io/mdcs/internal/syncengine"
	"github.com/mdcs-io/mdcs/pkg/crdt"
)

// NodeConfig translates a loaded Config into the internal/node.Config shape
// Node.New expects, generating a fresh replica identity when none was
// configured.
func (c *Config) NodeConfig() node.Config {
	replicaID := crdt.ReplicaID(c.Node.ReplicaID)
	if replicaID == "" {
		replicaID = security.NewReplicaID()
	}

	dataDir := c.Storage.Path
	if dataDir == "" {
		dataDir = c.Node.DataDir
	}

	var restAddr, grpcAddr string
	if c.API.REST.Enabled {
		restAddr = c.API.REST.Address
	}
	if c.API.GRPC.Enabled {
		grpcAddr = c.API.GRPC.Address
	}

	return node.Config{
		ReplicaID: replicaID,
		DataDir:   dataDir,

		SyncEngine: syncengine.Config{
			Port:             c.SyncEngine.Port,
			Seeds:            c.SyncEngine.Seeds,
			MaxDepthPerRound: c.SyncEngine.MaxDepthPerRound,
			MaxRoundsPerSync: c.SyncEngine.MaxRoundsPerSync,
			InitialBackoff:   c.SyncEngine.InitialBackoff,
			MaxBackoff:       c.SyncEngine.MaxBackoff,
			MaxElapsedTime:   c.SyncEngine.MaxElapsedTime,
		},
		GossipListen: c.Gossip.ListenAddress,
		GossipFanout: c.Gossip.Fanout,

		CompactionInterval: c.Compaction.Interval,
		MaxPrunePerCycle:   c.Compaction.MaxPrunePerCycle,
		SnapshotPolicy: compaction.ThresholdPolicy{
			MinNewNodes: c.Compaction.MinNewNodes,
			MinNewBytes: c.Compaction.MinNewBytes,
			MinInterval: c.Compaction.MinInterval,
		},

		CASEndpoint:  c.CAS.Endpoint,
		CASAccessKey: c.CAS.AccessKey,
		CASSecretKey: c.CAS.SecretKey,
		CASBucket:    c.CAS.Bucket,
		CASUseSSL:    c.CAS.UseSSL,

		RESTAddr: restAddr,
		GRPCAddr: grpcAddr,

		TLSCertFile: c.Security.TLSCertFile,
		TLSKeyFile:  c.Security.TLSKeyFile,
		TLSCAFile:   c.Security.TLSCAFile,
		AuditLog:    c.Security.AuditLog,
	}
}
