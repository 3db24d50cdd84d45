package flickr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"flickrbackup/pkg/config"
	errs "flickrbackup/pkg/errors"
	"flickrbackup/pkg/logger"
	"flickrbackup/pkg/ratelimit"
	"flickrbackup/pkg/retry"
)

// maxResponseSize bounds the JSON bodies read from the API
const maxResponseSize = 32 << 20

// Flickr error codes that mean the credentials are unusable
var authCodes = map[int]bool{
	96:  true, // invalid signature
	97:  true, // missing signature
	98:  true, // login failed / invalid auth token
	99:  true, // insufficient permissions
	100: true, // invalid API key
}

// APIError is a stat="fail" reply from the Flickr API
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("flickr code %d: %s", e.Code, e.Message)
}

// Client talks to the Flickr REST API on behalf of one configured user.
// A Client is meant to live for a single run; call Close when done.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	apiSecret  string
	username   string
	userAgent  string
	perPage    int
	limiter    ratelimit.Limiter
	retry      *retry.Config
	logger     logger.Logger

	nsid string
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for API calls and downloads
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter replaces the rate limiter built from the configuration
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetry replaces the retry policy built from the configuration
func WithRetry(r *retry.Config) Option {
	return func(c *Client) { c.retry = r }
}

// NewClient creates a client from the application configuration. It fails
// with a configuration error when credentials are missing, without touching
// the network.
func NewClient(cfg *config.Config, log logger.Logger, opts ...Option) (*Client, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	endpoint := cfg.Flickr.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	perPage := cfg.Flickr.PerPage
	if perPage <= 0 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Download.Timeout},
		endpoint:   endpoint,
		apiKey:     cfg.Flickr.APIKey,
		apiSecret:  cfg.Flickr.APISecret,
		username:   cfg.Flickr.Username,
		userAgent:  cfg.Flickr.UserAgent,
		perPage:    perPage,
		limiter:    ratelimit.New(cfg.RateLimit),
		retry:      retry.FromSettings(cfg.Retry, log),
		logger:     log.WithField("component", "flickr"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// call invokes an API method with rate limiting and retries, decoding the
// reply into target.
func (c *Client) call(ctx context.Context, method string, params url.Values, target interface{}) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.callOnce(ctx, method, params, target)
	})
}

func (c *Client) callOnce(ctx context.Context, method string, params url.Values, target interface{}) error {
	reqURL := c.endpoint + "?" + buildQuery(method, c.apiKey, c.apiSecret, params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errs.RemoteService(method, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doRequest(req, method)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp, method); err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return errs.RemoteService(method, 0, fmt.Errorf("failed to read response body: %w", err))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return c.parseFailure(method, resp.StatusCode, body, err)
	}
	if env.Stat != "ok" {
		return c.apiFailure(method, env)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return c.parseFailure(method, resp.StatusCode, body, err)
	}
	return nil
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request, op string) (*http.Response, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"op":       op,
			"host":     req.URL.Host,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.RemoteService(op, 0, err)
	}

	logger.LogRequest(c.logger, req.Method, redact(req.URL), resp.StatusCode, float64(duration.Microseconds())/1000)
	return resp, nil
}

// checkResponseStatus maps non-2xx HTTP statuses to typed errors
func (c *Client) checkResponseStatus(resp *http.Response, op string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errs.Authentication(op, "request rejected by Flickr", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		logger.LogRateLimit(c.logger, op, 0)
		return errs.RemoteService(op, resp.StatusCode, errors.New("rate limit exceeded"))
	default:
		return errs.RemoteService(op, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}
}

// apiFailure classifies a stat="fail" reply. Failures other than
// credential problems carry 503 when Flickr reports itself unavailable and
// 400 otherwise, so only the former is retried.
func (c *Client) apiFailure(method string, env envelope) error {
	apiErr := &APIError{Code: env.Code, Message: env.Message}

	switch {
	case authCodes[env.Code]:
		return errs.Authentication(method, env.Message, env.Code)
	case method == MethodFindByUsername && env.Code == 1:
		return errs.Authentication(method, fmt.Sprintf("unknown Flickr user %q", c.username), env.Code)
	case env.Code == 105:
		return errs.RemoteService(method, http.StatusServiceUnavailable, apiErr)
	default:
		return errs.RemoteService(method, http.StatusBadRequest, apiErr)
	}
}

func (c *Client) parseFailure(method string, status int, body []byte, err error) error {
	preview := string(body)
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
		"method":       method,
		"status":       status,
		"error":        err.Error(),
		"body_preview": preview,
	})
	return errs.RemoteService(method, http.StatusBadRequest, fmt.Errorf("failed to parse JSON: %w", err))
}

// redact drops the query string, which carries the API key
func redact(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	return clean.String()
}
