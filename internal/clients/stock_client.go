// internal/clients/stock_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"stockroom/internal/stock"
)

// APIError is a non-2xx answer of the stock API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stock api: %d %s", e.Status, e.Message)
}

// ItemInput is the body of create and update calls. Nil members are left
// out of the request.
type ItemInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Price       *string `json:"price,omitempty"`
	ImageURI    *string `json:"imageUri,omitempty"`
	Done        *bool   `json:"done,omitempty"`
}

type StockClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewStockClient creates a client for the API rooted at baseURL. A nil
// httpClient falls back to http.DefaultClient.
func NewStockClient(baseURL, token string, httpClient *http.Client) *StockClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &StockClient{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: httpClient}
}

func (c *StockClient) List(ctx context.Context) ([]stock.PublicItem, error) {
	var resp struct {
		Stock []stock.PublicItem `json:"stock"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/stock", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Stock, nil
}

func (c *StockClient) Get(ctx context.Context, id int64) (*stock.PublicItem, error) {
	var resp struct {
		Stock []stock.PublicItem `json:"stock"`
	}
	if err := c.do(ctx, http.MethodGet, itemPath(id), nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	if len(resp.Stock) != 1 {
		return nil, fmt.Errorf("expected one item, got %d", len(resp.Stock))
	}
	return &resp.Stock[0], nil
}

func (c *StockClient) Create(ctx context.Context, in ItemInput) (*stock.PublicItem, error) {
	var item stock.PublicItem
	if err := c.do(ctx, http.MethodPost, "/api/stock", in, http.StatusCreated, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *StockClient) Update(ctx context.Context, id int64, in ItemInput) (*stock.PublicItem, error) {
	var item stock.PublicItem
	if err := c.do(ctx, http.MethodPut, itemPath(id), in, http.StatusOK, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *StockClient) Delete(ctx context.Context, id int64) error {
	var resp struct {
		Result bool `json:"result"`
	}
	if err := c.do(ctx, http.MethodDelete, itemPath(id), nil, http.StatusOK, &resp); err != nil {
		return err
	}
	if !resp.Result {
		return fmt.Errorf("delete of item %d not confirmed", id)
	}
	return nil
}

// IDFromURI extracts the numeric id of an item URI.
func IDFromURI(uri string) (int64, error) {
	i := strings.LastIndex(uri, stock.ItemPath)
	if i < 0 {
		return 0, fmt.Errorf("not an item uri: %q", uri)
	}
	return strconv.ParseInt(uri[i+len(stock.ItemPath):], 10, 64)
}

func itemPath(id int64) string {
	return stock.ItemPath + strconv.FormatInt(id, 10)
}

func (c *StockClient) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		}
		return apiErr
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
