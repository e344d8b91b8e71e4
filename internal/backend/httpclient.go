package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/advocatech/lexsync/internal/common"
	"github.com/advocatech/lexsync/internal/models"
)

// HTTPClient talks to the hosted backend's REST surface. Requests carry a
// bearer access token; when the token is close to expiry (or the server
// answers 401 once) the client exchanges the refresh token and retries,
// mirroring how the interactive app keeps its session alive.
type HTTPClient struct {
	baseURL string
	http    *http.Client

	// mu guards the token pair; the sync engine and the connectivity
	// monitor share one client across goroutines.
	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// requestTimeout bounds every round-trip so a stalled call during drain
// cannot block subsequent engine runs.
const requestTimeout = 12 * time.Second

// tokenExpiryMargin is how close to expiry the access token may get before
// the client refreshes proactively instead of waiting for a 401.
const tokenExpiryMargin = 30 * time.Second

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// SetTokens installs the session obtained by the (external) auth layer.
func (c *HTTPClient) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	c.refreshToken = refresh
}

// tokens snapshots the current pair under the lock.
func (c *HTTPClient) tokens() (access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

// remoteRecord is the wire form of an entity record.
type remoteRecord struct {
	ID        string         `json:"id"`
	Data      map[string]any `json:"data"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return common.ErrUnavailable
	}
	return nil
}

func (c *HTTPClient) Fetch(ctx context.Context, collection, id string) (*models.Record, error) {
	resp, err := c.do(ctx, http.MethodGet, c.recordPath(collection, id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := mapStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var rr remoteRecord
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &models.Record{ID: rr.ID, Data: rr.Data, UpdatedAt: rr.UpdatedAt}, nil
}

func (c *HTTPClient) Upsert(ctx context.Context, collection string, rec *models.Record) error {
	return c.put(ctx, collection, rec, false)
}

func (c *HTTPClient) ForceUpsert(ctx context.Context, collection string, rec *models.Record) error {
	return c.put(ctx, collection, rec, true)
}

func (c *HTTPClient) put(ctx context.Context, collection string, rec *models.Record, force bool) error {
	body, err := json.Marshal(remoteRecord{ID: rec.ID, Data: rec.Data, UpdatedAt: rec.UpdatedAt})
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	path := c.recordPath(collection, rec.ID)
	if force {
		path += "?force=1"
	}

	resp, err := c.do(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return mapStatus(resp.StatusCode)
}

func (c *HTTPClient) Delete(ctx context.Context, collection, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.recordPath(collection, id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Deleting something already gone satisfies the intent.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return mapStatus(resp.StatusCode)
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) recordPath(collection, id string) string {
	return "/collections/" + url.PathEscape(collection) + "/records/" + url.PathEscape(id)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	access, refreshTok := c.tokens()
	if access != "" && tokenExpiringSoon(access) && refreshTok != "" {
		// Best effort; if refresh fails the original token is still tried.
		_ = c.refresh(ctx)
	}

	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && refreshTok != "" {
		_ = resp.Body.Close()
		if err := c.refresh(ctx); err != nil {
			return nil, common.ErrUnauthorized
		}
		return c.send(ctx, method, path, body)
	}

	return resp, nil
}

func (c *HTTPClient) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access, _ := c.tokens(); access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	return resp, nil
}

func (c *HTTPClient) refresh(ctx context.Context) error {
	_, refreshTok := c.tokens()
	body, err := json.Marshal(map[string]string{"refresh_token": refreshTok})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return common.ErrUnauthorized
	}

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}

	c.mu.Lock()
	c.accessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		c.refreshToken = tokens.RefreshToken
	}
	c.mu.Unlock()
	return nil
}

// tokenExpiringSoon inspects the JWT's exp claim without verifying the
// signature; only the server can verify, the client just schedules refresh.
func tokenExpiringSoon(token string) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < tokenExpiryMargin
}

func mapStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return common.ErrUnauthorized
	case code == http.StatusNotFound:
		return common.ErrNotFound
	case code == http.StatusConflict:
		return common.ErrConflict
	case code >= 500:
		return common.ErrUnavailable
	default:
		return fmt.Errorf("%w: status %d", common.ErrRejected, code)
	}
}
