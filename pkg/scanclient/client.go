// Package scanclient is the Go client for the Pamaxie scan api. It covers
// both sides of the surface: the detection endpoints callers submit media
// through, and the worker endpoints the recognition fleet leases jobs and
// posts results with.
package scanclient

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

// Config holds the scan api client configuration.
type Config struct {
	// BaseURL is the scan api endpoint, e.g. "https://scan.pamaxie.com".
	BaseURL string

	// Token is the bearer presented on authenticated endpoints.
	Token string

	// Timeout for one request. The default leaves headroom over the
	// server's own 4.5 s soft-timeout budget (default 30s).
	Timeout time.Duration
}

// Client talks to one scan api instance.
type Client struct {
	config Config
	hc     *http.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		config: cfg,
		hc:     &http.Client{Timeout: cfg.Timeout},
	}
}

// Status is the health reply of the scan api.
type Status struct {
	ScanStatus string `json:"SCAN_STATUS"`
	DBStatus   string `json:"DB_STATUS"`
}

// Job is a leased unit of recognition work.
type Job struct {
	ImageHash     string `json:"ImageHash"`
	ScanURL       string `json:"ScanUrl"`
	DataType      string `json:"DataType"`
	DataExtension string `json:"DataExtension"`
}

// Result is a completed recognition posted back by a worker. The server
// fills ScanMachineGuid and IsUserScan from the worker's token, so senders
// may leave them zero.
type Result struct {
	Key             string `json:"Key"`
	ScanResult      string `json:"ScanResult"`
	DataType        string `json:"DataType"`
	DataExtension   string `json:"DataExtension"`
	ScanMachineGUID string `json:"ScanMachineGuid"`
	IsUserScan      bool   `json:"IsUserScan"`
}

// GetStatus reports component health.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	body, _, err := c.do(ctx, http.MethodGet, "/scan/v1/status", nil, false)
	if err != nil {
		return nil, err
	}
	var status Status
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("scanclient: decode status: %w", err)
	}
	return &status, nil
}

// DetectImage submits image bytes and returns the stored recognition
// result JSON. A soft timeout on the server side returns ErrRetryLater;
// callers resubmit after the indicated delay and usually hit the cache.
func (c *Client) DetectImage(ctx context.Context, payload []byte) (string, error) {
	return c.detect(ctx, "/scan/v1/detection/detectImage", payload)
}

// Detect submits a payload of unknown kind.
func (c *Client) Detect(ctx context.Context, payload []byte) (string, error) {
	return c.detect(ctx, "/scan/v1/detection/detect", payload)
}

// DetectImageFromURL asks the scan api to fetch the image itself.
func (c *Client) DetectImageFromURL(ctx context.Context, url string) (string, error) {
	return c.detect(ctx, "/scan/v1/detection/detectImageFromUrl", []byte(url))
}

// GetHash returns the fingerprint of the raw bytes without scanning them.
func (c *Client) GetHash(ctx context.Context, payload []byte) (string, error) {
	body, _, err := c.do(ctx, http.MethodPost, "/scan/v1/detection/getHash", payload, false)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ErrRetryLater reports a soft timeout: the scan was accepted but no worker
// finished it inside the server's wait budget.
type ErrRetryLater struct {
	RetryAfter string
}

func (e *ErrRetryLater) Error() string {
	return "scanclient: result not ready, retry after " + e.RetryAfter + "s"
}

func (c *Client) detect(ctx context.Context, path string, payload []byte) (string, error) {
	body, resp, err := c.do(ctx, http.MethodPost, path, payload, true)
	if err != nil {
		return "", err
	}
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		return "", &ErrRetryLater{RetryAfter: retryAfter}
	}
	return string(body), nil
}

// GetWork leases one job descriptor. A fully drained queue is reported by
// the server as a client error; that maps to (nil, nil) here since "no work
// right now" is an ordinary answer for an idle fleet.
func (c *Client) GetWork(ctx context.Context) (*Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/scan/v1/worker/get_work", nil)
	if err != nil {
		return nil, fmt.Errorf("scanclient: build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scanclient: get_work: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("scanclient: read get_work reply: %w", err)
	}
	if resp.StatusCode == http.StatusBadRequest {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scanclient: get_work: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("scanclient: decode job descriptor: %w", err)
	}
	return &job, nil
}

// FetchPayload downloads the staged bytes a job descriptor points at.
func (c *Client) FetchPayload(ctx context.Context, job *Job) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.ScanURL, nil)
	if err != nil {
		return nil, fmt.Errorf("scanclient: build request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scanclient: fetch payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scanclient: fetch payload: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// PostResult submits a completed recognition.
func (c *Client) PostResult(ctx context.Context, result *Result) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("scanclient: marshal result: %w", err)
	}

	if _, _, err := c.do(ctx, http.MethodPost, "/scan/v1/worker/post_result", body, true); err != nil {
		return err
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.config.Token == "" {
		return
	}
	token := c.config.Token
	if !strings.HasPrefix(token, "Bearer ") {
		token = "Bearer " + token
	}
	req.Header.Set("Authorization", token)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, authed bool) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("scanclient: build request: %w", err)
	}
	if authed {
		c.authorize(req)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("scanclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("scanclient: read reply: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, nil, fmt.Errorf("scanclient: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, resp, nil
}
