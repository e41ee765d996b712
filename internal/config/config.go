// Package config loads and validates a replica's configuration, the same
// viper-based way pkg/config does it upstream, narrowed to the sections
// this store actually has and extended with the sync engine, gossip, and
// compaction threshold settings spec.md's anti-entropy and compaction
// engines need.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for an mdcs replica process.
type Config struct {
	Node       NodeConfig       `mapstructure:"node"`
	Storage    StorageConfig    `mapstructure:"storage"`
	SyncEngine SyncEngineConfig `mapstructure:"sync_engine"`
	Gossip     GossipConfig     `mapstructure:"gossip"`
	Compaction CompactionConfig `mapstructure:"compaction"`
	CAS        CASConfig        `mapstructure:"cas"`
	API        APIConfig        `mapstructure:"api"`
	Security   SecurityConfig   `mapstructure:"security"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// NodeConfig holds replica identity configuration.
type NodeConfig struct {
	ReplicaID string `mapstructure:"replica_id"`
	DataDir   string `mapstructure:"data_dir"`
}

// StorageConfig holds the durable store's configuration.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// SyncEngineConfig holds the anti-entropy transport's configuration.
type SyncEngineConfig struct {
	Port             int           `mapstructure:"port"`
	Seeds            []string      `mapstructure:"seeds"`
	MaxDepthPerRound uint64        `mapstructure:"max_depth_per_round"`
	MaxRoundsPerSync int           `mapstructure:"max_rounds_per_sync"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	MaxElapsedTime   time.Duration `mapstructure:"max_elapsed_time"`
}

// GossipConfig holds the best-effort head-announcement layer's configuration.
type GossipConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
	Fanout        int    `mapstructure:"fanout"`
}

// CompactionConfig holds the stability and compaction engine's configuration.
type CompactionConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	MaxPrunePerCycle int           `mapstructure:"max_prune_per_cycle"`
	MinNewNodes      uint64        `mapstructure:"min_new_nodes"`
	MinNewBytes      uint64        `mapstructure:"min_new_bytes"`
	MinInterval      time.Duration `mapstructure:"min_interval"`
}

// CASConfig holds the optional blob-storage backend's configuration. An
// empty Endpoint disables CAS-backed snapshot storage entirely, falling
// back to the metadata store alone.
type CASConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// APIConfig holds the transport front ends' configuration.
type APIConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	GRPC GRPCConfig `mapstructure:"grpc"`
}

// RESTConfig holds the REST transport's configuration.
type RESTConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// GRPCConfig holds the gRPC transport's configuration.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// SecurityConfig holds the front ends' TLS material and the audit trail
// toggle. An empty CertFile/KeyFile leaves both front ends on plaintext.
type SecurityConfig struct {
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`
	TLSCAFile   string `mapstructure:"tls_ca_file"`
	AuditLog    bool   `mapstructure:"audit_log"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a default configuration for a single-process replica.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ReplicaID: "",
			DataDir:   "./data",
		},
		Storage: StorageConfig{
			Path: "",
		},
		SyncEngine: SyncEngineConfig{
			Port:             26751,
			Seeds:            []string{},
			MaxDepthPerRound: 256,
			MaxRoundsPerSync: 8,
			InitialBackoff:   100 * time.Millisecond,
			MaxBackoff:       5 * time.Second,
			MaxElapsedTime:   30 * time.Second,
		},
		Gossip: GossipConfig{
			ListenAddress: "0.0.0.0:26752",
			Fanout:        3,
		},
		Compaction: CompactionConfig{
			Interval:         30 * time.Second,
			MaxPrunePerCycle: 1000,
			MinNewNodes:      256,
			MinNewBytes:      1024 * 1024,
			MinInterval:      time.Minute,
		},
		CAS: CASConfig{
			Endpoint:  "",
			Bucket:    "mdcs-snapshots",
			AccessKey: "",
			SecretKey: "",
			UseSSL:    false,
		},
		API: APIConfig{
			REST: RESTConfig{
				Enabled: true,
				Address: "0.0.0.0:8080",
			},
			GRPC: GRPCConfig{
				Enabled: true,
				Address: "0.0.0.0:9090",
			},
		},
		Security: SecurityConfig{
			TLSCertFile: "",
			TLSKeyFile:  "",
			TLSCAFile:   "",
			AuditLog:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from file and environment variables,
// starting from DefaultConfig's values.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()

	v.SetDefault("node.replica_id", cfg.Node.ReplicaID)
	v.SetDefault("node.data_dir", cfg.Node.DataDir)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("sync_engine.port", cfg.SyncEngine.Port)
	v.SetDefault("sync_engine.seeds", cfg.SyncEngine.Seeds)
	v.SetDefault("sync_engine.max_depth_per_round", cfg.SyncEngine.MaxDepthPerRound)
	v.SetDefault("sync_engine.max_rounds_per_sync", cfg.SyncEngine.MaxRoundsPerSync)
	v.SetDefault("sync_engine.initial_backoff", cfg.SyncEngine.InitialBackoff)
	v.SetDefault("sync_engine.max_backoff", cfg.SyncEngine.MaxBackoff)
	v.SetDefault("sync_engine.max_elapsed_time", cfg.SyncEngine.MaxElapsedTime)
	v.SetDefault("gossip.listen_address", cfg.Gossip.ListenAddress)
	v.SetDefault("gossip.fanout", cfg.Gossip.Fanout)
	v.SetDefault("compaction.interval", cfg.Compaction.Interval)
	v.SetDefault("compaction.max_prune_per_cycle", cfg.Compaction.MaxPrunePerCycle)
	v.SetDefault("compaction.min_new_nodes", cfg.Compaction.MinNewNodes)
	v.SetDefault("compaction.min_new_bytes", cfg.Compaction.MinNewBytes)
	v.SetDefault("compaction.min_interval", cfg.Compaction.MinInterval)
	v.SetDefault("cas.endpoint", cfg.CAS.Endpoint)
	v.SetDefault("cas.bucket", cfg.CAS.Bucket)
	v.SetDefault("cas.access_key", cfg.CAS.AccessKey)
	v.SetDefault("cas.secret_key", cfg.CAS.SecretKey)
	v.SetDefault("cas.use_ssl", cfg.CAS.UseSSL)
	v.SetDefault("api.rest.enabled", cfg.API.REST.Enabled)
	v.SetDefault("api.rest.address", cfg.API.REST.Address)
	v.SetDefault("api.grpc.enabled", cfg.API.GRPC.Enabled)
	v.SetDefault("api.grpc.address", cfg.API.GRPC.Address)
	v.SetDefault("security.tls_cert_file", cfg.Security.TLSCertFile)
	v.SetDefault("security.tls_key_file", cfg.Security.TLSKeyFile)
	v.SetDefault("security.tls_ca_file", cfg.Security.TLSCAFile)
	v.SetDefault("security.audit_log", cfg.Security.AuditLog)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetEnvPrefix("MDCS")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return cfg, nil
}
