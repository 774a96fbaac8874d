// internal/stock/handler.go
package stock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	service Service
	baseURL string
	logger  logr.Logger
}

// NewHandler builds the HTTP handlers. When baseURL is empty the item URIs
// are derived from the incoming request.
func NewHandler(service Service, baseURL string, logger logr.Logger) *Handler {
	return &Handler{service: service, baseURL: baseURL, logger: logger}
}

type listResponse struct {
	Stock []PublicItem `json:"stock"`
}

type deleteResponse struct {
	Result bool `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) ListStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	base := h.base(r)
	resp := listResponse{Stock: make([]PublicItem, 0, len(items))}
	for _, item := range items {
		resp.Stock = append(resp.Stock, ToPublic(item, base))
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetStock answers with a one-element collection, the same shape as ListStock.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, listResponse{Stock: []PublicItem{ToPublic(*item, h.base(r))}})
}

func (h *Handler) CreateStock(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.service.CreateItem(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, ToPublic(*item, h.base(r)))
}

func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		// An unknown id wins over a malformed body.
		if _, getErr := h.service.GetItem(r.Context(), id); getErr != nil {
			h.writeError(w, r, getErr)
			return
		}
		h.writeError(w, r, err)
		return
	}

	item, err := h.service.UpdateItem(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, ToPublic(*item, h.base(r)))
}

func (h *Handler) DeleteStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteItem(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, deleteResponse{Result: true})
}

// itemID parses the {id} route parameter. Anything that is not a positive
// integer cannot name an item and is answered with 404.
func (h *Handler) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusNotFound, "Not found")
		return 0, false
	}
	return id, true
}

func (h *Handler) base(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrBadRequest):
		h.logger.V(1).Info("rejected request", "method", r.Method, "path", r.URL.Path, "reason", err.Error())
		WriteError(w, http.StatusBadRequest, "Bad request")
	default:
		h.logger.Error(err, "request failed", "method", r.Method, "path", r.URL.Path)
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: missing body", ErrBadRequest)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: missing body", ErrBadRequest)
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	// The body must hold exactly one JSON value.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after body", ErrBadRequest)
	}
	return nil
}

// WriteJSON encodes data as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes the {"error": message} body used by every failure.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, errorResponse{Error: message})
}
