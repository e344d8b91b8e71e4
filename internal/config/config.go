// Package config loads runtime settings for the lexsync core. Values are
// resolved in three passes: built-in defaults, then a JSON file (if one is
// named via -c/-config), then command-line flags. Later sources win.
package config

import "time"

// Config holds every tunable of the sync/audit core.
//
// MaxSyncAttempts, MerkleBatchSize and MerkleInterval ship with the same
// defaults the original system hardcoded (5 / 500 / 6h). They are exposed as
// configuration because nothing suggests those numbers encode a tested SLA.
type Config struct {
	// ServerEndpointAddr is the base URL of the remote backend.
	ServerEndpointAddr string
	// DatabasePath is the SQLite file backing the local store.
	DatabasePath string

	// OnlineCheckInterval is how often the connectivity monitor probes the
	// backend. SyncInterval is the wall-clock trigger for drain cycles.
	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration

	// MaxSyncAttempts is the retry ceiling before a queue entry turns failed.
	MaxSyncAttempts int
	// CleanupAfterDays is the grace period for completed queue entries.
	CleanupAfterDays int

	// MerkleBatchSize caps how many unconsolidated audit events go into one
	// tree; MerkleInterval is the time-based consolidation trigger.
	MerkleBatchSize int
	MerkleInterval  time.Duration
	// TimestampAuthorityURL is the optional external witness for tree roots.
	// Empty disables submission and every proof is marked local.
	TimestampAuthorityURL string

	// AuditRetentionDays bounds how long detailed audit events are kept once
	// they are represented in the consolidated rollup.
	AuditRetentionDays int
	// SensitiveFieldPatterns are substrings matched (case-insensitively)
	// against field names during audit data sanitization. Exposed as data so
	// locale-specific names are not buried in code.
	SensitiveFieldPatterns []string
	// FallbackBufferSize bounds the in-memory buffer that catches audit
	// events when local persistence fails.
	FallbackBufferSize int
}

// DefaultSensitiveFieldPatterns covers password-, document-number-, card- and
// biometric-like field names in both Portuguese and English.
func DefaultSensitiveFieldPatterns() []string {
	return []string{
		"senha", "password", "secret", "token",
		"cpf", "cnpj", "rg", "document",
		"cartao", "card", "cvv",
		"biometri", "digital",
	}
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DatabasePath = "lexsync.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 1 * time.Minute
	c.MaxSyncAttempts = 5
	c.CleanupAfterDays = 7
	c.MerkleBatchSize = 500
	c.MerkleInterval = 6 * time.Hour
	c.AuditRetentionDays = 90
	c.SensitiveFieldPatterns = DefaultSensitiveFieldPatterns()
	c.FallbackBufferSize = 256
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
