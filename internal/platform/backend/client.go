// Package backend implements the HTTP client for the consumed sync surface.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wordnest/wordnest/internal/sync"
)

// Client errors.
var (
	// ErrUnauthorized is returned when the backend rejects the bearer token.
	ErrUnauthorized = errors.New("backend: unauthorized")

	// ErrBackend is returned for any other non-2xx backend response.
	ErrBackend = errors.New("backend: request failed")
)

// TokenProvider supplies the bearer token attached to every request. The
// token is opaque to the sync engine; auth proper lives outside this module.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token, typically from
// configuration.
type StaticToken string

// Token implements TokenProvider.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// DefaultTimeout bounds each backend request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Client talks to the sync backend over HTTP. It implements sync.Backend.
type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  TokenProvider
	logger  *slog.Logger
}

var _ sync.Backend = (*Client)(nil)

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, tokens TokenProvider, timeout time.Duration, log *slog.Logger) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("backend: base URL cannot be empty")
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		tokens:  tokens,
		logger:  log.With(slog.String("component", "backend_client")),
	}, nil
}

// PullChanges implements sync.Backend.
func (c *Client) PullChanges(ctx context.Context, req *sync.PullRequest) (*sync.PullResponse, error) {
	var resp sync.PullResponse
	if err := c.post(ctx, "/v1/sync/pull", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PushChanges implements sync.Backend.
func (c *Client) PushChanges(ctx context.Context, req *sync.PushRequest) (*sync.PushResponse, error) {
	var resp sync.PushResponse
	if err := c.post(ctx, "/v1/sync/push", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PullCatalog implements sync.Backend.
func (c *Client) PullCatalog(ctx context.Context, req *sync.CatalogPullRequest) (*sync.CatalogPullResponse, error) {
	var resp sync.CatalogPullResponse
	if err := c.post(ctx, "/v1/catalog/pull", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status implements sync.Backend.
func (c *Client) Status(ctx context.Context, childID string) (*sync.StatusResponse, error) {
	query := url.Values{"child_id": {childID}}
	var resp sync.StatusResponse
	if err := c.get(ctx, "/v1/sync/status", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("backend: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	token, err := c.tokens.Token(req.Context())
	if err != nil {
		return fmt.Errorf("backend: obtain token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s %s", ErrUnauthorized, req.Method, req.URL.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("backend request failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: %s %s: status %d: %s",
			ErrBackend, req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
