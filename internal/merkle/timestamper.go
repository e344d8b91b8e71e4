package merkle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/advocatech/lexsync/internal/models"
)

// Timestamper witnesses a tree's root hash at a point in time.
type Timestamper interface {
	Timestamp(ctx context.Context, rootHash string) (*models.TimestampProof, error)
}

// LocalTimestamper issues proofs from the local clock. The proof is marked so
// verification knows it carries no external authority.
type LocalTimestamper struct{}

func (LocalTimestamper) Timestamp(_ context.Context, rootHash string) (*models.TimestampProof, error) {
	return &models.TimestampProof{
		RootHash: rootHash,
		Source:   models.ProofSourceLocal,
		IssuedAt: time.Now(),
	}, nil
}

// HTTPTimestamper submits root hashes to an external timestamping authority.
// Submission is retried with backoff; if the authority stays unreachable the
// caller falls back to a local proof rather than blocking consolidation.
type HTTPTimestamper struct {
	url  string
	http *http.Client
}

func NewHTTPTimestamper(url string) *HTTPTimestamper {
	return &HTTPTimestamper{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *HTTPTimestamper) Timestamp(ctx context.Context, rootHash string) (*models.TimestampProof, error) {
	var proof *models.TimestampProof

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := t.submit(ctx, rootHash)
		if err != nil {
			return retry.RetryableError(err)
		}
		proof = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proof, nil
}

func (t *HTTPTimestamper) submit(ctx context.Context, rootHash string) (*models.TimestampProof, error) {
	body, err := json.Marshal(map[string]string{"hash": rootHash})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("timestamp authority returned status %d", resp.StatusCode)
	}

	var reply struct {
		Token    string    `json:"token"`
		IssuedAt time.Time `json:"issued_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to decode timestamp reply: %w", err)
	}
	if reply.IssuedAt.IsZero() {
		reply.IssuedAt = time.Now()
	}

	return &models.TimestampProof{
		RootHash: rootHash,
		Token:    reply.Token,
		Source:   models.ProofSourceAuthority,
		IssuedAt: reply.IssuedAt,
	}, nil
}
