package models

import "time"

// ProofSource distinguishes an externally witnessed timestamp from a locally
// sourced one. A local timestamp is not cryptographically authoritative.
type ProofSource string

const (
	ProofSourceAuthority ProofSource = "authority"
	ProofSourceLocal     ProofSource = "local"
)

// TimestampProof is the stored outcome of submitting a tree's root hash to a
// timestamping authority, or the marked local fallback when the authority is
// unreachable.
type TimestampProof struct {
	RootHash string      `json:"root_hash"`
	Token    string      `json:"token,omitempty"`
	Source   ProofSource `json:"source"`
	IssuedAt time.Time   `json:"issued_at"`
}

// MerkleTree records one consolidation batch: the ordered event ids it
// covers, the resulting root hash and the tree height (number of pairing
// rounds performed while reducing the leaves).
type MerkleTree struct {
	ID           string
	CreatedAt    time.Time
	RootHash     string
	Height       int
	EventIDs     []string
	FirstEventAt time.Time
	LastEventAt  time.Time
	Proof        *TimestampProof
}

// TreeIntegrityResult is the advisory outcome of re-verifying a stored tree
// against the current contents of the audit log.
type TreeIntegrityResult struct {
	CountValid   bool
	RootValid    bool
	ProofValid   bool
	OverallValid bool
	EventCount   int
	MissingIDs   []string
}
