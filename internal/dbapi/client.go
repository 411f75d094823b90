// Package dbapi is a thin HTTP adapter over the database api's
// /db/v1/scan surface. Transport anomalies collapse into miss/failure
// results; retry and cleanup policy stays with the callers.
package dbapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized marks a 401 reply on a scan write. It is not retried here.
var ErrUnauthorized = errors.New("dbapi: bearer token rejected")

// TokenSource yields the current bearer token for outbound scan calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to one database api instance.
type Client struct {
	baseURL string
	hc      *http.Client
	tokens  TokenSource
}

func NewClient(baseURL string, tokens TokenSource) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("dbapi: base url is empty")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
	}, nil
}

// Login exchanges the long-lived api key for a bearer token. The reply
// nests the token as Token.Token.
func Login(ctx context.Context, hc *http.Client, baseURL, apiKey string) (string, error) {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/db/v1/scan/login", nil)
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+apiKey)

	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("login: unexpected status %d", resp.StatusCode)
	}

	var reply struct {
		Token struct {
			Token string `json:"Token"`
		} `json:"Token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode login reply: %w", err)
	}
	if reply.Token.Token == "" {
		return "", errors.New("login reply carried no token")
	}
	return reply.Token.Token, nil
}

// CheckConnection reports whether the database api answers at all.
func (c *Client) CheckConnection(ctx context.Context) bool {
	return c.boolCheck(ctx, "/db/v1/scan/CanConnect", "")
}

// CheckAuth forwards the caller's own Authorization header and reports
// whether the database api accepts it.
func (c *Client) CheckAuth(ctx context.Context, authorization string) bool {
	return c.boolCheck(ctx, "/db/v1/scan/CanAuthenticate", authorization)
}

// IsInternalAuth reports whether the bearer was issued to pamaxie's own
// worker fleet.
func (c *Client) IsInternalAuth(ctx context.Context, authorization string) bool {
	return c.boolCheck(ctx, "/db/v1/scan/IsInternalToken", authorization)
}

func (c *Client) boolCheck(ctx context.Context, path, authorization string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// GetScan fetches the stored result for a fingerprint. Misses and non-2xx
// replies report found=false.
func (c *Client) GetScan(ctx context.Context, fingerprint string) (string, bool, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", false, fmt.Errorf("get scan: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/db/v1/scan/get="+fingerprint, nil)
	if err != nil {
		return "", false, fmt.Errorf("build get scan request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("get scan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("read scan reply: %w", err)
	}
	return string(body), true, nil
}

// SetScan stores a completed result. A 401 reply returns ErrUnauthorized.
func (c *Client) SetScan(ctx context.Context, resultJSON string) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("set scan: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/db/v1/scan/update", strings.NewReader(resultJSON))
	if err != nil {
		return fmt.Errorf("build set scan request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("set scan: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("set scan: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// DeleteScan removes a stored result, typically after it failed validation.
func (c *Client) DeleteScan(ctx context.Context, fingerprint string) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("delete scan: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/db/v1/scan/delete="+fingerprint, nil)
	if err != nil {
		return fmt.Errorf("build delete scan request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("delete scan: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delete scan: unexpected status %d", resp.StatusCode)
	}
	return nil
}
