// Package api implements the HTTP client for the Turtl server's external
// interface (spec.md §6): auth probing, user management, the sync
// endpoints, attachments, and space invites/membership.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"turtlcore/internal/crypto"
	"turtlcore/internal/turtlerr"
)

var pkgLogger = log.New()

// SetLogger overrides the package-level logger.
func SetLogger(l *log.Logger) { pkgLogger = l }

// Config holds the per-server connection details (spec.md §6's
// `api.endpoint`/`api.proxy` config keys).
type Config struct {
	Endpoint string
	Proxy    string // optional host:port
	// RequestTimeout bounds a single non-long-poll request. Long-poll GETs
	// (sync) pass their own per-call timeout instead.
	RequestTimeout time.Duration
	// MaxRetries bounds the exponential backoff retry loop for transient
	// (network / 5xx) failures. 0 disables retry.
	MaxRetries uint64
}

// Client is a thin, retrying JSON HTTP client scoped to one Turtl server.
// It implements sync.Client.
type Client struct {
	cfg        Config
	httpClient *http.Client

	// Username/authHeader are set by Login and attached to every
	// subsequent request as Basic auth (spec.md §4.1).
	username   string
	authHeader string
}

// New builds a Client for the given server config.
func New(cfg Config) (*Client, error) {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	transport := &http.Transport{}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse("http://" + cfg.Proxy)
		if err != nil {
			return nil, turtlerr.BadValue("api.New: invalid proxy %q: %v", cfg.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport},
	}, nil
}

// SetAuth attaches the given username/derived-auth-token pair to every
// subsequent request (spec.md §4.1's Authorization: Basic header).
func (c *Client) SetAuth(username, authToken string) {
	c.username = username
	c.authHeader = crypto.BasicAuthHeader(username, authToken)
}

// do issues a single JSON request (or octet-stream if body is []byte),
// retrying transient failures with exponential backoff, and decodes a JSON
// response into out (if non-nil). A non-2xx response is returned as a
// turtlerr.API error carrying the status and raw body.
//
// If ctx carries no deadline of its own, do applies cfg.RequestTimeout.
// Callers that need a different bound — the sync long-poll GET, which
// waits up to ~60s per spec.md §4.8 — set their own ctx deadline before
// calling in, which this leaves untouched.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	operation := func() error {
		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			// A long-poll GET (sync) that times out is not a failure: surface
			// it as turtlerr.TryAgain() so callers (sync.Incoming) treat it
			// as a no-op rather than an error to retry/log (spec.md §4.8).
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return backoff.Permanent(turtlerr.TryAgain())
			}
			return turtlerr.IO("api.Client.do: %s %s: %v", method, path, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return turtlerr.IO("api.Client.do: reading response: %v", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := turtlerr.API(resp.StatusCode, string(respBody))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(apiErr)
			}
			return apiErr
		}
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return backoff.Permanent(turtlerr.Wrap(err, "api.Client.do: decoding response"))
			}
		}
		return nil
	}

	err := func() error {
		if c.cfg.MaxRetries == 0 {
			return operation()
		}
		b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries), ctx)
		return backoff.Retry(operation, b)
	}()
	// backoff.Retry unwraps *backoff.PermanentError itself, but a direct
	// operation() call (MaxRetries == 0) does not — unwrap here so callers
	// can type-assert/compare the turtlerr.Error underneath either path.
	var perr *backoff.PermanentError
	if errors.As(err, &perr) {
		return perr.Err
	}
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
		contentType = "application/octet-stream"
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, turtlerr.Wrap(err, "api.Client.newRequest: encoding body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint+path, reader)
	if err != nil {
		return nil, turtlerr.Wrap(err, "api.Client.newRequest")
	}
	req.Header.Set("Content-Type", contentType)
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}
	return req, nil
}

// get/post/put/delete are small conveniences over do().
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}
func (c *Client) put(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}
func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}
