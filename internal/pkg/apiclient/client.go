// Package apiclient issues JSON requests against the storefront's backend
// services, attaching the caller's bearer token when one is available.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/your-org/bookstore-storefront/internal/pkg/auth"
)

// ErrUnauthorized means the call needs a fresh login, not a retry
var ErrUnauthorized = errors.New("unauthorized")

// ServiceError is any other non-2xx answer from a backend service
type ServiceError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// TokenProvider yields the current access token, or "" when there is none
type TokenProvider interface {
	AccessToken(ctx context.Context) string
}

// TokenFunc adapts a function to TokenProvider
type TokenFunc func(ctx context.Context) string

// AccessToken calls f
func (f TokenFunc) AccessToken(ctx context.Context) string {
	return f(ctx)
}

// StaticToken always provides the same token
func StaticToken(token string) TokenProvider {
	return TokenFunc(func(context.Context) string { return token })
}

// NoToken never provides a token
var NoToken TokenProvider = StaticToken("")

// Client performs single round trips. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
}

// New creates a client for baseURL using tokens for the Authorization header
func New(baseURL string, httpClient *http.Client, tokens TokenProvider) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if tokens == nil {
		tokens = NoToken
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
	}
}

// WithTokens returns a copy of c that reads tokens from tokens
func (c *Client) WithTokens(tokens TokenProvider) *Client {
	clone := *c
	clone.tokens = tokens
	return &clone
}

// Token returns the current access token
func (c *Client) Token(ctx context.Context) string {
	return c.tokens.AccessToken(ctx)
}

// Get issues a GET and decodes the response into out
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put issues a PUT with a JSON body
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete issues a DELETE
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do sends one request. 401 and 403 map to ErrUnauthorized, other non-2xx
// statuses to *ServiceError. A 204 or a nil out skips decoding.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := c.tokens.AccessToken(ctx); token != "" {
		req.Header.Set("Authorization", auth.BearerHeader(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(text))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &ServiceError{Method: method, Path: path, Status: resp.StatusCode, Body: msg}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}
