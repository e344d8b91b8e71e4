package config

import (
	"encoding/json"
	"os"

	"github.com/advocatech/lexsync/internal/flagx"
	"github.com/advocatech/lexsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations use
// timex.Duration so the file can specify either "6h" or integer nanoseconds.
// Pointer fields distinguish "absent" from zero, so the JSON file only
// overrides what it actually sets.
type JsonConfig struct {
	ServerEndpointAddr     *string         `json:"server_endpoint_addr"`
	DatabasePath           *string         `json:"database_path"`
	OnlineCheckInterval    *timex.Duration `json:"online_check_interval"`
	SyncInterval           *timex.Duration `json:"sync_interval"`
	MaxSyncAttempts        *int            `json:"max_sync_attempts"`
	CleanupAfterDays       *int            `json:"cleanup_after_days"`
	MerkleBatchSize        *int            `json:"merkle_batch_size"`
	MerkleInterval         *timex.Duration `json:"merkle_interval"`
	TimestampAuthorityURL  *string         `json:"timestamp_authority_url"`
	AuditRetentionDays     *int            `json:"audit_retention_days"`
	SensitiveFieldPatterns []string        `json:"sensitive_field_patterns"`
	FallbackBufferSize     *int            `json:"fallback_buffer_size"`
}

// parseJson overlays cfg with values loaded from the JSON file named via
// -c/-config. No file means no overlay. Read or unmarshal errors panic;
// startup configuration problems should be loud.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != nil {
		cfg.ServerEndpointAddr = *jc.ServerEndpointAddr
	}
	if jc.DatabasePath != nil {
		cfg.DatabasePath = *jc.DatabasePath
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.MaxSyncAttempts != nil {
		cfg.MaxSyncAttempts = *jc.MaxSyncAttempts
	}
	if jc.CleanupAfterDays != nil {
		cfg.CleanupAfterDays = *jc.CleanupAfterDays
	}
	if jc.MerkleBatchSize != nil {
		cfg.MerkleBatchSize = *jc.MerkleBatchSize
	}
	if jc.MerkleInterval != nil {
		cfg.MerkleInterval = jc.MerkleInterval.Duration
	}
	if jc.TimestampAuthorityURL != nil {
		cfg.TimestampAuthorityURL = *jc.TimestampAuthorityURL
	}
	if jc.AuditRetentionDays != nil {
		cfg.AuditRetentionDays = *jc.AuditRetentionDays
	}
	if len(jc.SensitiveFieldPatterns) > 0 {
		cfg.SensitiveFieldPatterns = jc.SensitiveFieldPatterns
	}
	if jc.FallbackBufferSize != nil {
		cfg.FallbackBufferSize = *jc.FallbackBufferSize
	}
}
