package ion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noSleep replaces the retry sleep in tests.
func noSleep(_ context.Context, _ time.Duration) error { return nil }

// newTestClient creates a Client against srv with retries that do not sleep.
func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	c := NewClient(srv.URL, srv.Client(), StaticToken("test-token"), slog.Default(), "")
	c.sleepFunc = noSleep

	return c
}

func TestStaticToken_Empty(t *testing.T) {
	_, err := StaticToken("").Token()
	require.Error(t, err)

	tok, err := StaticToken("abc").Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestDo_SetsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, defaultUserAgent, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("X-Client-Request-Id"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv).Do(context.Background(), http.MethodGet, "/x", nil)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv).Do(context.Background(), http.MethodGet, "/", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_RetriesResendBody(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"a":1}`, string(body))

		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv).Do(context.Background(), http.MethodPost, "/", []byte(`{"a":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("X-Request-Id", "req-1")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"code":"X","message":"nope"}`))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Do(context.Background(), http.MethodGet, "/", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "req-1", apiErr.RequestID)
			assert.Contains(t, apiErr.Error(), "req-1")
		})
	}
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Do(context.Background(), http.MethodGet, "/", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(maxRetries+1), calls.Load())
}

func TestDo_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv).Do(ctx, http.MethodGet, "/", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryBackoff_HonorsRetryAfter(t *testing.T) {
	c := NewClient("http://unused", nil, StaticToken("t"), nil, "")
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	resp.Header.Set("Retry-After", "7")

	assert.Equal(t, 7*time.Second, c.retryBackoff(resp, 0))
}

func TestCalcBackoff_Capped(t *testing.T) {
	c := NewClient("http://unused", nil, StaticToken("t"), nil, "")

	for attempt := range 12 {
		d := c.calcBackoff(attempt)
		assert.LessOrEqual(t, d, time.Duration(float64(maxBackoff)*(1+jitterFraction)))
		assert.Positive(t, d)
	}
}

func TestSetRateLimit(t *testing.T) {
	c := NewClient("http://unused", nil, StaticToken("t"), nil, "")

	c.SetRateLimit(5, 0)
	require.NotNil(t, c.limiter)
	assert.Equal(t, 1, c.limiter.Burst())

	c.SetRateLimit(0, 3)
	assert.Nil(t, c.limiter)
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/me", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"username":"ada","email":"ada@example.com","emailVerified":true,
			"avatar":"https://a/x.png","storage":{"used":10,"total":100}}`))
	}))
	defer srv.Close()

	p, err := newTestClient(t, srv).Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, "ada", p.Username)
	assert.True(t, p.EmailVerified)
	assert.Equal(t, int64(10), p.StorageUsed)
	assert.Equal(t, int64(100), p.StorageTotal)
}

func TestMe_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Me(context.Background())
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestMe_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Me(context.Background())
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAssets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/assets", r.URL.Path)
		_, _ = w.Write([]byte(`{"items":[
			{"id":1,"name":"World Terrain","type":"TERRAIN","status":"COMPLETE","percentComplete":100,
			 "dateAdded":"2024-01-02T03:04:05Z"},
			{"id":2,"name":"OSM Buildings","type":"3DTILES","bytes":2048,"status":"COMPLETE"}
		],"nextPage":"p2"}`))
	}))
	defer srv.Close()

	assets, err := newTestClient(t, srv).Assets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets.Items, 2)
	assert.Equal(t, "World Terrain", assets.Items[0].Name)
	assert.Equal(t, 2024, assets.Items[0].DateAdded.Year())
	assert.Equal(t, int64(2048), assets.Items[1].Bytes)
	assert.Equal(t, "p2", assets.NextPage)
}

func TestAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/assets/96188" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		_, _ = w.Write([]byte(`{"id":96188,"name":"Buildings","type":"3DTILES"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	a, err := c.Asset(context.Background(), 96188)
	require.NoError(t, err)
	assert.Equal(t, "Buildings", a.Name)

	_, err = c.Asset(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/tokens", r.URL.Path)
		_, _ = w.Write([]byte(`{"items":[
			{"id":"a","name":"Default","token":"secret-a","isDefault":true,"scopes":["assets:read"]},
			{"id":"b","name":"Mine","token":"secret-b","assetIds":[1,2]}
		]}`))
	}))
	defer srv.Close()

	tokens, err := newTestClient(t, srv).Tokens(context.Background())
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.True(t, tokens[0].IsDefault)
	assert.Equal(t, "secret-b", tokens[1].Value)
	assert.Equal(t, []int64{1, 2}, tokens[1].AssetIDs)
}

func TestCreateToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req createTokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Demo (Created by ion-go)", req.Name)
		assert.Equal(t, []string{"assets:read"}, req.Scopes)
		assert.Nil(t, req.AssetIDs)

		_, _ = w.Write([]byte(`{"id":"new","name":"Demo (Created by ion-go)","token":"secret-new"}`))
	}))
	defer srv.Close()

	tok, err := newTestClient(t, srv).CreateToken(context.Background(), "Demo (Created by ion-go)", []string{"assets:read"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", tok.ID)
	assert.Equal(t, "secret-new", tok.Value)
	assert.False(t, tok.IsZero())
}

func TestCreateToken_Forbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).CreateToken(context.Background(), "x", []string{"assets:read"}, nil)
	assert.ErrorIs(t, err, ErrForbidden)
}
