// Package cryptox implements the canonical serialization and hashing used by
// the audit log. Two events with the same content must always hash to the same
// value, regardless of map iteration order, so the serializer sorts object
// keys at every nesting level.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/advocatech/lexsync/internal/models"
)

// CanonicalJSON serializes v with object keys sorted at every level. Only the
// JSON-compatible subset is supported (maps, slices, strings, numbers, bools,
// nil); anything else falls back to encoding/json for its scalar form.
func CanonicalJSON(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := CanonicalJSON(val[k])
			if err != nil {
				return nil, err
			}
			out = append(out, kb...)
			out = append(out, ':')
			out = append(out, vb...)
		}
		return append(out, '}'), nil
	case []any:
		out := []byte{'['}
		for i, item := range val {
			if i > 0 {
				out = append(out, ',')
			}
			b, err := CanonicalJSON(item)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return append(out, ']'), nil
	default:
		return json.Marshal(v)
	}
}

// HashEvent computes the SHA-256 hex digest of the event's canonical form.
// The Hash and MerkleTreeID fields are excluded: the first is the output of
// this function, the second is back-filled later and must not break the chain
// of custody when it appears.
func HashEvent(e *models.AuditEvent) (string, error) {
	canonical := map[string]any{
		"id":         e.ID,
		"timestamp":  strconv.FormatInt(e.Timestamp.UnixNano(), 10),
		"event_type": string(e.EventType),
		"entity":     string(e.Entity),
		"entity_id":  e.EntityID,
		"user_id":    e.UserID,
		"user_ip":    e.UserIP,
		"user_agent": e.UserAgent,
		"data":       e.Data,
	}

	b, err := CanonicalJSON(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to serialize event %s: %w", e.ID, err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// HashPair combines two node hashes into their parent hash. Used when
// building and verifying Merkle trees over event hashes.
func HashPair(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}
