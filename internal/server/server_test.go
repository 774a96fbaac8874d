package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockroom/internal/auth"
	"stockroom/internal/config"
	"stockroom/internal/stock"
	"stockroom/internal/storage/memory"
)

const testToken = "valid-token"

type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, token string) (*auth.Claims, error) {
	if token != testToken {
		return nil, fmt.Errorf("%w: unknown token", auth.ErrUnauthenticated)
	}
	return &auth.Claims{Subject: "tester"}, nil
}

type downStore struct{ *memory.Store }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, mutate func(*config.Server)) *httptest.Server {
	t.Helper()
	cfg := config.Default().Server
	cfg.PublicBaseURL = "http://stock.test"
	if mutate != nil {
		mutate(&cfg)
	}

	store := memory.NewStore(memory.Seed...)
	handler := NewRouter(cfg, Deps{
		Service:  stock.NewService(store),
		Health:   store,
		Verifier: tokenVerifier{},
		Logger:   logr.Discard(),
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, token, body string) (*http.Response, string) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestStockLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := do(t, srv, http.MethodGet, "/api/stock", testToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"title":"Cat Food"`)
	assert.Contains(t, body, `"title":"Dog Food"`)
	assert.NotContains(t, body, `"id"`)

	resp, body = do(t, srv, http.MethodPost, "/api/stock", testToken, `{"title":"Fish Food"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{
		"uri": "http://stock.test/api/stock/3",
		"title": "Fish Food",
		"description": "",
		"price": "",
		"imageUri": "",
		"done": false
	}`, body)

	resp, body = do(t, srv, http.MethodGet, "/api/stock/3", testToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"title":"Fish Food"`)

	resp, body = do(t, srv, http.MethodPut, "/api/stock/3", testToken, `{"price":"4.99","done":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"price":"4.99"`)
	assert.Contains(t, body, `"done":true`)
	assert.Contains(t, body, `"title":"Fish Food"`)

	resp, body = do(t, srv, http.MethodDelete, "/api/stock/3", testToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"result":true}`, body)

	resp, body = do(t, srv, http.MethodGet, "/api/stock/3", testToken, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Not found"}`, body)
}

func TestUnauthorized(t *testing.T) {
	srv := newTestServer(t, nil)

	cases := []struct{ method, path, token, body string }{
		{http.MethodGet, "/api/stock", "", ""},
		{http.MethodGet, "/api/stock/1", "expired", ""},
		{http.MethodPost, "/api/stock", "", `{"title":"x"}`},
		{http.MethodPut, "/api/stock/1", "expired", `{"title":"x"}`},
		{http.MethodDelete, "/api/stock/1", "", ""},
	}
	for _, c := range cases {
		t.Run(c.method+" "+c.path, func(t *testing.T) {
			resp, body := do(t, srv, c.method, c.path, c.token, c.body)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.JSONEq(t, `{"error":"Unauthorized Access"}`, body)
		})
	}

	// Nothing was deleted by the rejected request.
	resp, _ := do(t, srv, http.MethodGet, "/api/stock/1", testToken, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPublicReads(t *testing.T) {
	srv := newTestServer(t, func(c *config.Server) { c.PublicReads = true })

	resp, _ := do(t, srv, http.MethodGet, "/api/stock", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/api/stock", "", `{"title":"Fish Food"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestErrors(t *testing.T) {
	srv := newTestServer(t, nil)

	cases := []struct {
		name, method, path, body string
		status                   int
		errMsg                   string
	}{
		{"missing title", http.MethodPost, "/api/stock", `{"description":"no title"}`, http.StatusBadRequest, ""},
		{"null title", http.MethodPost, "/api/stock", `{"title":null}`, http.StatusBadRequest, ""},
		{"mistyped done", http.MethodPut, "/api/stock/1", `{"done":"yes"}`, http.StatusBadRequest, ""},
		{"unknown field", http.MethodPost, "/api/stock", `{"title":"x","colour":"red"}`, http.StatusBadRequest, ""},
		{"empty update", http.MethodPut, "/api/stock/1", `{}`, http.StatusBadRequest, ""},
		{"update unknown id", http.MethodPut, "/api/stock/99", `{"title":"x"}`, http.StatusNotFound, "Not found"},
		{"bad body on unknown id", http.MethodPut, "/api/stock/99", `{`, http.StatusNotFound, "Not found"},
		{"delete unknown id", http.MethodDelete, "/api/stock/99", "", http.StatusNotFound, "Not found"},
		{"non-integer id", http.MethodGet, "/api/stock/abc", "", http.StatusNotFound, "Not found"},
		{"unknown route", http.MethodGet, "/api/other", "", http.StatusNotFound, "Not found"},
		{"method not allowed", http.MethodPatch, "/api/stock/1", `{"title":"x"}`, http.StatusMethodNotAllowed, "Method not allowed"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp, body := do(t, srv, c.method, c.path, testToken, c.body)
			assert.Equal(t, c.status, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			if c.errMsg != "" {
				assert.JSONEq(t, `{"error":"`+c.errMsg+`"}`, body)
			} else {
				assert.Contains(t, body, `"error"`)
			}
		})
	}
}

func TestWriteRateLimit(t *testing.T) {
	srv := newTestServer(t, func(c *config.Server) {
		c.WriteRateLimit = 0.001
		c.WriteBurst = 1
	})

	resp, _ := do(t, srv, http.MethodPost, "/api/stock", testToken, `{"title":"first"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := do(t, srv, http.MethodPost, "/api/stock", testToken, `{"title":"second"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Too many requests"}`, body)

	// Reads are not throttled.
	resp, _ = do(t, srv, http.MethodGet, "/api/stock", testToken, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, _ := do(t, srv, http.MethodGet, "/healthz", "", "")
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, body := do(t, srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	store := downStore{memory.NewStore()}
	handler := NewRouter(config.Default().Server, Deps{
		Service:  stock.NewService(store),
		Health:   store,
		Verifier: tokenVerifier{},
		Logger:   logr.Discard(),
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCompression(t *testing.T) {
	srv := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/stock", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Accept-Encoding", "br")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "br", resp.Header.Get("Content-Encoding"))
}

func TestRecoverer(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestServe_GracefulShutdown(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := config.Default().Server
	cfg.ShutdownTimeout = time.Second
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := New(cfg, handler, logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + lis.Addr().String())
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
