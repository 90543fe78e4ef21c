package config

import (
	"time"

	"github.com/nexops/operator/pkg/database"
)

// DefaultServerConfig returns the built-in HTTP server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:       ":8080",
		OfflineThreshold: 60 * time.Second,
	}
}

// DefaultDatabaseConfig returns the built-in database connection
// defaults. Host, user, password, and database name still need to
// come from the environment in any real deployment; these are local
// development defaults.
func DefaultDatabaseConfig() *database.Config {
	return &database.Config{
		Host:            "localhost",
		Port:            5432,
		User:            "operator",
		Database:        "operator",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// DefaultShardConfig returns the built-in sharding defaults.
func DefaultShardConfig() *ShardConfig {
	return &ShardConfig{
		Count:        16,
		VirtualNodes: 150,
	}
}

// DefaultGossipConfig returns the built-in gossip protocol defaults.
func DefaultGossipConfig() *GossipConfig {
	return &GossipConfig{
		IntervalMs:          100,
		Fanout:              2,
		MaxOperationsPerMsg: 100,
		AntiEntropyInterval: 60 * time.Second,
	}
}
