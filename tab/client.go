package tab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bencousins22/tab-mcp/resilience"
)

// Client talks to the Tabcorp API through the resilience layer. All methods
// are safe for concurrent use; the access token is fetched lazily and shared.
type Client struct {
	cfg    Config
	http   *resilience.Client
	oauth  *resilience.Client
	logger *slog.Logger

	tokenMu sync.Mutex
	token   *Token

	now func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the underlying resilience client entirely.
func WithHTTPClient(client *resilience.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// New builds a Client. The default transport stack caches GET responses for
// five minutes, retries transient failures, deduplicates concurrent identical
// reads, and trips a circuit breaker after five consecutive failures. Token
// fetches run through a separate breaker so a data-plane outage cannot block
// re-authentication.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		httpOpts := []resilience.Option{
			resilience.WithRetryPolicy(resilience.DefaultRetryPolicy()),
			resilience.WithCustomCache(NewAPICache()),
			resilience.WithDeduplication(),
			resilience.WithBreaker("tab-api", defaultBreakerConfig()),
			resilience.WithTimeout(30 * time.Second),
		}
		if c.logger != nil {
			httpOpts = append(httpOpts, resilience.WithLogger(c.logger))
		}
		c.http = resilience.New(httpOpts...)
	}
	if !c.http.IsValid() {
		return nil, c.http.ValidationError()
	}

	oauthOpts := []resilience.Option{
		resilience.WithRetryPolicy(resilience.DefaultRetryPolicy()),
		resilience.WithBreakerRegistry(c.http.Registry()),
		resilience.WithBreaker("tab-oauth", defaultBreakerConfig()),
		resilience.WithTimeout(30 * time.Second),
	}
	if c.logger != nil {
		oauthOpts = append(oauthOpts, resilience.WithLogger(c.logger))
	}
	c.oauth = resilience.New(oauthOpts...)
	if !c.oauth.IsValid() {
		return nil, c.oauth.ValidationError()
	}

	return c, nil
}

func defaultBreakerConfig() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenDuration:     60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// HTTP exposes the underlying resilience client for stats and breaker
// control.
func (c *Client) HTTP() *resilience.Client {
	return c.http
}

// Get performs an authenticated GET against any API path. The jurisdiction,
// when given, is validated and added unless params already carry one.
func (c *Client) Get(ctx context.Context, path string, params map[string]string, jurisdiction string) (json.RawMessage, error) {
	query := url.Values{}
	for key, value := range params {
		query.Set(key, value)
	}
	if query.Get("jurisdiction") == "" && jurisdiction != "" {
		j, err := ValidateJurisdiction(jurisdiction, c.cfg.Jurisdiction)
		if err != nil {
			return nil, err
		}
		query.Set("jurisdiction", j)
	}
	return c.get(ctx, path, query)
}

// Post performs an authenticated POST with a JSON body against any API path.
// Use it for wagering operations not wrapped by a typed method.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.post(ctx, path, body)
}

// jurisdictionQuery builds the base query every information endpoint takes.
func (c *Client) jurisdictionQuery(jurisdiction string) (url.Values, error) {
	j, err := ValidateJurisdiction(jurisdiction, c.cfg.Jurisdiction)
	if err != nil {
		return nil, err
	}
	return url.Values{"jurisdiction": {j}}, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path, query), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, token)

	return c.decode(c.http.Do(req))
}

func (c *Client) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path, nil), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, token)
	req.Header.Set("Content-Type", "application/json")

	return c.decode(c.http.Do(req))
}

func (c *Client) buildURL(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
}

// decode turns a transport outcome into the raw JSON payload or an APIError.
func (c *Client) decode(resp *http.Response, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return json.RawMessage(body), nil
}

// escape makes a caller-supplied path segment safe. Venue mnemonics and sport
// names may contain spaces.
func escape(segment string) string {
	return url.PathEscape(segment)
}
