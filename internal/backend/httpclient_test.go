package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advocatech/lexsync/internal/common"
	"github.com/advocatech/lexsync/internal/models"
)

func TestPing(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL)
	require.NoError(t, c.Ping(context.Background()))
}

func TestPing_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	c := NewHTTPClient(ts.URL)
	err := c.Ping(context.Background())
	require.ErrorIs(t, err, common.ErrUnavailable)
}

func TestUpsert_SendsRecordAndToken(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody remoteRecord

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL)
	c.SetTokens("tok", "refresh")

	rec := &models.Record{ID: "c1", Data: map[string]any{"nome": "Ana"}, UpdatedAt: time.Now()}
	require.NoError(t, c.Upsert(context.Background(), "clientes", rec))

	assert.Equal(t, "/collections/clientes/records/c1", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "Ana", gotBody.Data["nome"])
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusInternalServerError, common.ErrUnavailable},
		{http.StatusConflict, common.ErrConflict},
		{http.StatusForbidden, common.ErrUnauthorized},
		{http.StatusUnprocessableEntity, common.ErrRejected},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			c := NewHTTPClient(ts.URL)
			err := c.Upsert(context.Background(), "clientes", &models.Record{ID: "x"})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDelete_NotFoundIsOK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL)
	require.NoError(t, c.Delete(context.Background(), "clientes", "gone"))
}

func TestRefreshOn401(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"access_token":  "fresh",
				"refresh_token": "refresh2",
			})
		default:
			calls++
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL)
	c.SetTokens("stale", "refresh1")

	require.NoError(t, c.Upsert(context.Background(), "clientes", &models.Record{ID: "c1"}))
	assert.Equal(t, 2, calls, "expected the original call plus one retry")

	access, refresh := c.tokens()
	assert.Equal(t, "fresh", access)
	assert.Equal(t, "refresh2", refresh)
}

func TestConcurrentRefreshAndRequests(t *testing.T) {
	var mu sync.Mutex
	accepted := map[string]bool{"Bearer fresh": true}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh"})
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			mu.Lock()
			ok := accepted[r.Header.Get("Authorization")]
			mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL)
	c.SetTokens("stale", "refresh1")

	// A pinging monitor and a draining engine share the client; the 401
	// driven refresh must not race either of them.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = c.Ping(context.Background())
			}
		}()
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = c.Upsert(context.Background(), "clientes",
					&models.Record{ID: fmt.Sprintf("c%d-%d", n, j)})
			}
		}(i)
	}
	wg.Wait()

	access, _ := c.tokens()
	assert.Equal(t, "fresh", access)
}

func TestTokenExpiringSoon(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

	makeToken := func(exp time.Time) string {
		claims, _ := json.Marshal(map[string]any{"exp": exp.Unix()})
		return header + "." + base64.RawURLEncoding.EncodeToString(claims) + ".sig"
	}

	assert.True(t, tokenExpiringSoon(makeToken(time.Now().Add(5*time.Second))))
	assert.False(t, tokenExpiringSoon(makeToken(time.Now().Add(10*time.Minute))))
	assert.False(t, tokenExpiringSoon("not-a-jwt"))
}
