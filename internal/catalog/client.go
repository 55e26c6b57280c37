package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError reports a failed call to the inventory API. Status is zero for
// transport failures.
type APIError struct {
	Op     string
	Status int
	Err    error
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("catalog: %s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("catalog: %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// UserMessage is the banner text shown for the failed operation.
func (e *APIError) UserMessage() string {
	return "Error while trying to " + e.Op + ". Please try again."
}

// PageResult is one listing response.
type PageResult struct {
	Content       []Product `json:"content"`
	Page          int       `json:"page"`
	Size          int       `json:"size"`
	TotalElements int       `json:"totalElements"`
}

// Client wraps interactions with the inventory REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// List fetches products matching the query.
func (c *Client) List(ctx context.Context, q Query) (PageResult, error) {
	const op = "list products"
	endpoint := c.baseURL + "/products"
	if params := q.Values().Encode(); params != "" {
		endpoint += "?" + params
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PageResult{}, &APIError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PageResult{}, &APIError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return PageResult{}, &APIError{Op: op, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PageResult{}, &APIError{Op: op, Err: err}
	}
	result, err := decodeListing(body)
	if err != nil {
		return PageResult{}, &APIError{Op: op, Err: err}
	}
	return result, nil
}

// decodeListing accepts the paged envelope or, from older backends, a bare array.
func decodeListing(body []byte) (PageResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var products []Product
		if err := json.Unmarshal(trimmed, &products); err != nil {
			return PageResult{}, err
		}
		return PageResult{Content: products, Size: len(products), TotalElements: len(products)}, nil
	}
	var result PageResult
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return PageResult{}, err
	}
	if result.Content == nil {
		result.Content = []Product{}
	}
	return result, nil
}

// Create posts a new product.
func (c *Client) Create(ctx context.Context, p Product) error {
	return c.send(ctx, "create product", http.MethodPost, "/products", p, http.StatusCreated)
}

// Update replaces the product identified by id.
func (c *Client) Update(ctx context.Context, id int64, p Product) error {
	return c.send(ctx, "update product", http.MethodPut, fmt.Sprintf("/products/%d", id), p, http.StatusNoContent)
}

// Delete removes the product identified by id.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.send(ctx, "delete product", http.MethodDelete, fmt.Sprintf("/products/delete/%d", id), nil, http.StatusNoContent)
}

// MarkOutOfStock flags the product as out of stock. The API treats the call as idempotent.
func (c *Client) MarkOutOfStock(ctx context.Context, id int64) error {
	return c.send(ctx, "mark out of stock", http.MethodPost, fmt.Sprintf("/products/%d/outofstock", id), nil, 0)
}

// MarkInStock restores the product's stock status.
func (c *Client) MarkInStock(ctx context.Context, id int64) error {
	return c.send(ctx, "mark in stock", http.MethodPut, fmt.Sprintf("/products/%d/instock", id), nil, 0)
}

// send issues a request and checks the response status. A zero want accepts any 2xx.
func (c *Client) send(ctx context.Context, op, method, path string, payload any, want int) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &APIError{Op: op, Err: err}
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if want == 0 {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &APIError{Op: op, Status: resp.StatusCode}
		}
		return nil
	}
	if resp.StatusCode != want {
		return &APIError{Op: op, Status: resp.StatusCode}
	}
	return nil
}
