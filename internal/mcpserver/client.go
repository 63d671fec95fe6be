package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mbd888/walletrisk/internal/report"
)

// Config holds the connection settings for the walletrisk API.
type Config struct {
	APIURL  string // Base URL, e.g. "http://localhost:8080"
	Timeout time.Duration
}

// Client is an HTTP client for the walletrisk read API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// apiError is the error body returned by the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// APIError is a non-2xx API response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// NotFound reports whether the API answered 404.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// do sends a request and decodes a successful JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var e apiError
		if json.Unmarshal(respBody, &e) == nil && e.Message != "" {
			apiErr.Code = e.Error
			apiErr.Message = e.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// WalletRisk returns the latest score for address.
func (c *Client) WalletRisk(ctx context.Context, address string) (*report.WalletScore, error) {
	var resp struct {
		Score report.WalletScore `json:"score"`
	}
	path := "/v1/wallets/" + url.PathEscape(address) + "/risk"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Score, nil
}

// BatchRisk returns the latest scores for several addresses.
func (c *Client) BatchRisk(ctx context.Context, addresses []string) (*report.BatchResponse, error) {
	var resp report.BatchResponse
	body := report.BatchRequest{Addresses: addresses}
	if err := c.do(ctx, http.MethodPost, "/v1/wallets/batch", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LatestRun returns the most recent run.
func (c *Client) LatestRun(ctx context.Context) (*report.Run, error) {
	var resp struct {
		Run report.Run `json:"run"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/runs/latest", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Run, nil
}

// RunWallets returns up to limit wallets of a run, riskiest first.
func (c *Client) RunWallets(ctx context.Context, runID string, limit int) ([]report.WalletScore, error) {
	var resp struct {
		Wallets []report.WalletScore `json:"wallets"`
	}
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/runs/" + url.PathEscape(runID) + "/wallets"
	if err := c.do(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Wallets, nil
}
