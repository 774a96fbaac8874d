package stock_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"

	"stockroom/internal/stock"
	"stockroom/internal/storage/memory"
)

func newRouter(store stock.Store, baseURL string) http.Handler {
	h := stock.NewHandler(stock.NewService(store), baseURL, logr.Discard())
	r := chi.NewRouter()
	r.Get("/api/stock", h.ListStock)
	r.Post("/api/stock", h.CreateStock)
	r.Get("/api/stock/{id}", h.GetStock)
	r.Put("/api/stock/{id}", h.UpdateStock)
	r.Delete("/api/stock/{id}", h.DeleteStock)
	return r
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_BaseURL(t *testing.T) {
	store := memory.NewStore(memory.Seed...)

	req := httptest.NewRequest(http.MethodGet, "/api/stock/1", nil)
	req.Host = "inventory.local:8080"
	rec := serve(newRouter(store, ""), req)
	assert.Contains(t, rec.Body.String(), `"uri":"http://inventory.local:8080/api/stock/1"`)

	req = httptest.NewRequest(http.MethodGet, "/api/stock/1", nil)
	req.Host = "inventory.example.com"
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = serve(newRouter(store, ""), req)
	assert.Contains(t, rec.Body.String(), `"uri":"https://inventory.example.com/api/stock/1"`)

	req = httptest.NewRequest(http.MethodGet, "/api/stock/1", nil)
	rec = serve(newRouter(store, "https://cdn.example.com/"), req)
	assert.Contains(t, rec.Body.String(), `"uri":"https://cdn.example.com/api/stock/1"`)
}

func TestHandler_GetWrapsSingleItem(t *testing.T) {
	rec := serve(newRouter(memory.NewStore(memory.Seed...), "http://x"),
		httptest.NewRequest(http.MethodGet, "/api/stock/2", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stock":[{
		"uri":"http://x/api/stock/2",
		"title":"Dog Food",
		"description":"It's dog food",
		"price":"",
		"imageUri":"",
		"done":false
	}]}`, rec.Body.String())
}

func TestHandler_BodyErrors(t *testing.T) {
	h := newRouter(memory.NewStore(memory.Seed...), "http://x")

	cases := []struct {
		name, method, path, body string
		want                     int
	}{
		{"empty body", http.MethodPost, "/api/stock", "", http.StatusBadRequest},
		{"not json", http.MethodPost, "/api/stock", "title=x", http.StatusBadRequest},
		{"trailing data", http.MethodPost, "/api/stock", `{"title":"x"}{"title":"y"}`, http.StatusBadRequest},
		{"trailing brace", http.MethodPost, "/api/stock", `{"title":"x"}}`, http.StatusBadRequest},
		{"trailing garbage", http.MethodPost, "/api/stock", `{"title":"x"} x`, http.StatusBadRequest},
		{"wrong member type", http.MethodPost, "/api/stock", `{"title":"x","done":"yes"}`, http.StatusBadRequest},
		{"null title", http.MethodPost, "/api/stock", `{"title":null}`, http.StatusBadRequest},
		{"array body", http.MethodPost, "/api/stock", `[]`, http.StatusBadRequest},
		{"too large", http.MethodPost, "/api/stock", `{"title":"` + strings.Repeat("a", 2<<20) + `"}`, http.StatusBadRequest},
		{"zero id", http.MethodGet, "/api/stock/0", "", http.StatusNotFound},
		{"negative id", http.MethodDelete, "/api/stock/-1", "", http.StatusNotFound},
		{"update empty body", http.MethodPut, "/api/stock/1", "", http.StatusBadRequest},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
			rec := serve(h, req)
			assert.Equal(t, c.want, rec.Code)
			if c.want == http.StatusBadRequest {
				assert.JSONEq(t, `{"error":"Bad request"}`, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestHandler_TrailingWhitespaceAccepted(t *testing.T) {
	h := newRouter(memory.NewStore(), "http://x")
	req := httptest.NewRequest(http.MethodPost, "/api/stock", strings.NewReader("{\"title\":\"x\"}\n\t "))
	rec := serve(h, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHandler_RejectedCreateConsumesNoID(t *testing.T) {
	store := memory.NewStore(memory.Seed...)
	h := newRouter(store, "http://x")

	for _, body := range []string{`{}`, `{"description":"no title"}`, `{"title":"x"}}`} {
		rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/stock", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/stock", strings.NewReader(`{"title":"Fish Food"}`)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"uri":"http://x/api/stock/3"`)

	items, err := store.List(context.Background())
	assert.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestHandler_StoreFailureIs500(t *testing.T) {
	rec := serve(newRouter(brokenStore{memory.NewStore()}, "http://x"),
		httptest.NewRequest(http.MethodGet, "/api/stock", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "connection reset")
}
