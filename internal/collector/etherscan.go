package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/mbd888/walletrisk/internal/circuitbreaker"
	"github.com/mbd888/walletrisk/internal/metrics"
)

// Explorer request defaults.
const (
	DefaultChainID        = "1"
	DefaultPageSize       = 1000
	DefaultRequestsPerSec = 4
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetryTime   = 30 * time.Second

	// Consecutive failed pages before the client stops calling the explorer.
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = time.Minute
)

// Transaction is one entry of an account txlist response. Numeric fields
// stay as the decimal strings the explorer returns.
type Transaction struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	Gas             string `json:"gas"`
	GasPrice        string `json:"gasPrice"`
	GasUsed         string `json:"gasUsed"`
	IsError         string `json:"isError"`
	TxReceiptStatus string `json:"txreceipt_status"`
	MethodID        string `json:"methodId"`
	FunctionName    string `json:"functionName"`

	// Set by the collector, not the explorer.
	WalletAddress   string `json:"-"`
	ProtocolVersion string `json:"-"`
}

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// StatusError is a non-200 explorer response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return "explorer returned " + strconv.Itoa(e.StatusCode) + " " + http.StatusText(e.StatusCode)
}

// Client pages through an Etherscan-compatible account API.
type Client struct {
	baseURL      string
	apiKey       string
	chainID      string
	pageSize     int
	maxRetryTime time.Duration
	httpClient   *http.Client
	limiter      *rate.Limiter
	breaker      *circuitbreaker.Breaker
	logger       *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the request rate. Zero or negative disables limiting.
func WithRateLimit(perSec float64) ClientOption {
	return func(c *Client) {
		if perSec <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// WithPageSize sets the txlist page size.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMaxRetryTime bounds how long one page request is retried.
func WithMaxRetryTime(d time.Duration) ClientOption {
	return func(c *Client) { c.maxRetryTime = d }
}

// WithBreaker replaces the default circuit breaker. Nil disables it.
func WithBreaker(b *circuitbreaker.Breaker) ClientOption {
	return func(c *Client) { c.breaker = b }
}

// WithChainID selects the chain on multi-chain endpoints.
func WithChainID(id string) ClientOption {
	return func(c *Client) { c.chainID = id }
}

// NewClient creates an explorer client for baseURL.
func NewClient(baseURL, apiKey string, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		chainID:      DefaultChainID,
		pageSize:     DefaultPageSize,
		maxRetryTime: DefaultMaxRetryTime,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		limiter:      rate.NewLimiter(rate.Limit(DefaultRequestsPerSec), 1),
		breaker:      circuitbreaker.New("etherscan", DefaultBreakerThreshold, DefaultBreakerCooldown),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transactions returns every normal transaction of address in ascending
// block order. Paging stops at the first short page or the first response
// whose status is not "1". On a request failure the pages fetched so far
// are returned together with the error.
func (c *Client) Transactions(ctx context.Context, address string) ([]Transaction, error) {
	var all []Transaction
	for page := 1; ; page++ {
		txs, ok, err := c.page(ctx, address, page)
		if err != nil {
			return all, fmt.Errorf("fetch page %d for %s: %w", page, address, err)
		}
		if !ok {
			return all, nil
		}
		all = append(all, txs...)
		if len(txs) < c.pageSize {
			return all, nil
		}
	}
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return backoff.Permanent(&permanentError{err: err})
}

func unwrapPermanent(err error) error {
	var perm *permanentError
	if errors.As(err, &perm) {
		return perm.err
	}
	return err
}

// fetch runs operation under the retry policy. Transient failures count
// against the breaker; once it opens, fetch waits out the cooldown and
// tries again instead of failing the page.
func (c *Client) fetch(ctx context.Context, operation backoff.Operation, policy backoff.BackOff, notify backoff.Notify) error {
	for {
		if c.breaker != nil {
			if err := c.breaker.Wait(ctx); err != nil {
				return err
			}
		}
		err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)

		if c.breaker == nil {
			return unwrapPermanent(err)
		}
		var perm *permanentError
		if errors.As(err, &perm) && ctx.Err() == nil {
			// The explorer answered; the request itself is bad.
			c.breaker.Record(nil)
			return perm.err
		}
		c.breaker.Record(err)
		if err == nil || ctx.Err() != nil || c.breaker.State() != circuitbreaker.StateOpen {
			return unwrapPermanent(err)
		}
		c.logger.Warn("explorer unavailable, waiting for circuit to close", "error", err)
	}
}

func (c *Client) page(ctx context.Context, address string, page int) ([]Transaction, bool, error) {
	q := url.Values{}
	q.Set("chainid", c.chainID)
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	q.Set("page", strconv.Itoa(page))
	q.Set("offset", strconv.Itoa(c.pageSize))
	q.Set("sort", "asc")
	q.Set("apikey", c.apiKey)
	endpoint := c.baseURL + "?" + q.Encode()

	var body apiResponse
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.CollectorRequestsTotal.WithLabelValues("error").Inc()
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			metrics.CollectorRequestsTotal.WithLabelValues("error").Inc()
			_, _ = io.Copy(io.Discard, resp.Body)
			statusErr := &StatusError{StatusCode: resp.StatusCode}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return statusErr
			}
			return permanent(statusErr)
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			metrics.CollectorRequestsTotal.WithLabelValues("error").Inc()
			return permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.maxRetryTime
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("explorer request retry", "address", address, "page", page, "wait", wait, "error", err)
	}
	if err := c.fetch(ctx, operation, policy, notify); err != nil {
		return nil, false, err
	}

	if body.Status != "1" {
		metrics.CollectorRequestsTotal.WithLabelValues("empty").Inc()
		c.logger.Debug("explorer returned no transactions",
			"address", address, "page", page, "message", body.Message)
		return nil, false, nil
	}

	var txs []Transaction
	if err := json.Unmarshal(body.Result, &txs); err != nil {
		metrics.CollectorRequestsTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("decode result: %w", err)
	}
	metrics.CollectorRequestsTotal.WithLabelValues("ok").Inc()
	return txs, true, nil
}
