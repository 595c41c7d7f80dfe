package dart

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the Open DART API.
	DefaultBaseURL = "https://opendart.fss.or.kr/api"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	// maxErrorBody caps how much of an error response is kept for messages.
	maxErrorBody = 512
)

// RequestObserver is notified after every upstream request with its endpoint and outcome.
type RequestObserver func(endpoint, outcome string)

// Client is an Open DART API client.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
	observer   RequestObserver
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP timeout on the default client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			return
		}
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithObserver registers a callback for request outcomes (used for metrics).
func WithObserver(observer RequestObserver) ClientOption {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient creates a new Open DART API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// fetch performs a rate-limited GET and returns the raw body of a 200 response.
func (c *Client) fetch(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RateLimitError{RetryAfter: time.Second, Endpoint: path}
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("crtfc_key", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Str("corp_code", params.Get("corp_code")).
			Str("bsns_year", params.Get("bsns_year")).
			Str("reprt_code", params.Get("reprt_code")).
			Str("fs_div", params.Get("fs_div")).
			Msg("DART API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(path, "network_error")
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.observe(path, "rate_limited")
		return nil, &RateLimitError{RetryAfter: retryAfter(resp.Header.Get("Retry-After")), Endpoint: path}
	}

	if resp.StatusCode != http.StatusOK {
		c.observe(path, "http_"+strconv.Itoa(resp.StatusCode))
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(body)),
			Endpoint:   path,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(path, "network_error")
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}

// getJSON fetches a JSON endpoint and decodes it after checking the status envelope.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, result interface{}) error {
	body, err := c.fetch(ctx, path, params)
	if err != nil {
		return err
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.observe(path, "decode_error")
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := c.checkStatus(path, env.Status, env.Message); err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		c.observe(path, "decode_error")
		return fmt.Errorf("failed to decode response: %w", err)
	}

	c.observe(path, "ok")
	return nil
}

// checkStatus converts a DART status code into a typed error.
func (c *Client) checkStatus(path, status, message string) error {
	switch status {
	case StatusOK:
		return nil
	case StatusRateLimited:
		c.observe(path, "rate_limited")
		return &RateLimitError{RetryAfter: time.Minute, Endpoint: path}
	case StatusNoData:
		c.observe(path, "no_data")
	default:
		c.observe(path, "status_"+status)
	}
	return &StatusError{Status: status, Message: message, Endpoint: path}
}

func (c *Client) observe(endpoint, outcome string) {
	if c.observer != nil {
		c.observer(endpoint, outcome)
	}
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Minute
}
