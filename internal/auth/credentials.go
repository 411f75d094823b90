// Package auth owns the process-wide database api credentials and the
// claims carried inside worker bearer tokens.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// LoginFunc exchanges the long-lived api key for a fresh bearer token.
type LoginFunc func(ctx context.Context) (string, error)

// Default budgets for the refresher and for readers contending with it.
const (
	DefaultRefreshInterval = time.Hour
	DefaultReadAttempts    = 100
	DefaultReadInterval    = 30 * time.Millisecond
)

// ErrTokenUnavailable is returned when the credential slot stayed contended
// for the reader's whole retry budget.
var ErrTokenUnavailable = errors.New("auth: credential slot unavailable")

// Intervals tunes the credential budgets. Zero values fall back to the
// defaults above.
type Intervals struct {
	Refresh      time.Duration
	ReadAttempts int
	ReadInterval time.Duration
}

// Credentials holds the bearer token for the database api. A single
// background refresher overwrites the slot; request goroutines copy the
// token out under the same lock before each outbound call.
type Credentials struct {
	mu    sync.Mutex
	token string

	apiKey          string
	login           LoginFunc
	refreshInterval time.Duration
	readAttempts    int
	readInterval    time.Duration
}

func NewCredentials(apiKey string, login LoginFunc, intervals Intervals) *Credentials {
	if intervals.Refresh <= 0 {
		intervals.Refresh = DefaultRefreshInterval
	}
	if intervals.ReadAttempts <= 0 {
		intervals.ReadAttempts = DefaultReadAttempts
	}
	if intervals.ReadInterval <= 0 {
		intervals.ReadInterval = DefaultReadInterval
	}
	return &Credentials{
		apiKey:          apiKey,
		login:           login,
		refreshInterval: intervals.Refresh,
		readAttempts:    intervals.ReadAttempts,
		readInterval:    intervals.ReadInterval,
	}
}

// Run refreshes the token once per interval until ctx is canceled. Start it
// on its own goroutine; it never aborts in-flight requests.
func (c *Credentials) Run(ctx context.Context) {
	for {
		start := time.Now()

		// An empty api key is a programmer error; surface it loudly on the
		// first cycle instead of logging 401s forever.
		if c.apiKey == "" {
			panic("auth: PAM_AUTH_TOKEN is empty, the scan api cannot log in to the database api")
		}

		c.refreshOnce(ctx)

		wait := c.refreshInterval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// refreshOnce replaces the token under the lock. A contended slot skips the
// cycle rather than blocking the refresher.
func (c *Credentials) refreshOnce(ctx context.Context) {
	if !c.mu.TryLock() {
		slog.Warn("[Credentials] token slot contended, skipping refresh cycle")
		return
	}
	defer c.mu.Unlock()

	token, err := c.login(ctx)
	if err != nil {
		slog.Error("[Credentials] login against the database api failed", "error", err)
		return
	}
	c.token = token
	slog.Info("[Credentials] bearer token refreshed")
}

// Token copies the current bearer token out of the slot, retrying a bounded
// number of times while the refresher holds the lock. The token is empty
// until the first successful refresh; callers let the outbound call fail in
// that case.
func (c *Credentials) Token(ctx context.Context) (string, error) {
	for attempt := 0; attempt < c.readAttempts; attempt++ {
		if c.mu.TryLock() {
			token := c.token
			c.mu.Unlock()
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.readInterval):
		}
	}
	return "", ErrTokenUnavailable
}
