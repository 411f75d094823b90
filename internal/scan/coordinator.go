// Package scan implements the job lifecycle coordinator: fingerprint the
// payload, resolve a cache hit from the result store, otherwise stage the
// canonical bytes, publish a job descriptor and wait bounded for some worker
// to post the result.
package scan

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pamaxie/Pamaxie.Scan-API/internal/media"
)

// ResultStore is the slice of the database api the scan pipeline needs.
type ResultStore interface {
	GetScan(ctx context.Context, fingerprint string) (string, bool, error)
	SetScan(ctx context.Context, resultJSON string) error
	DeleteScan(ctx context.Context, fingerprint string) error
}

// ObjectStore stages canonical payloads between enqueue and worker pickup.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

// Queue carries job descriptors to the worker fleet.
type Queue interface {
	Send(ctx context.Context, body string) error
	ReceiveAndDelete(ctx context.Context) (string, error)
}

// Default wait budget before a request soft-times-out.
const (
	DefaultPollAttempts = 10
	DefaultPollInterval = 450 * time.Millisecond
)

// Coordinator drives the lifecycle of one recognition request. Requests for
// the same fingerprint never share in-process state; they meet only in the
// external result store.
type Coordinator struct {
	results ResultStore
	objects ObjectStore
	queue   Queue

	publicBaseURL string
	pollAttempts  int
	pollInterval  time.Duration
}

func NewCoordinator(results ResultStore, objects ObjectStore, queue Queue, publicBaseURL string, pollAttempts int, pollInterval time.Duration) *Coordinator {
	if pollAttempts <= 0 {
		pollAttempts = DefaultPollAttempts
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Coordinator{
		results:       results,
		objects:       objects,
		queue:         queue,
		publicBaseURL: publicBaseURL,
		pollAttempts:  pollAttempts,
		pollInterval:  pollInterval,
	}
}

// Recognize runs the full request lifecycle for an image payload and returns
// the stored result JSON verbatim.
func (c *Coordinator) Recognize(ctx context.Context, payload []byte) (string, error) {
	canonical, err := media.Canonicalize(payload)
	if err != nil {
		slog.Warn("[Coordinator] payload is not a decodable image", "error", err)
		scanOutcomes.WithLabelValues("bad_image").Inc()
		return "", &Error{Kind: KindBadImage, Message: msgBadImage}
	}

	fingerprint := media.Hash(canonical)

	if stored, ok := c.cachedResult(ctx, fingerprint); ok {
		scanOutcomes.WithLabelValues("cache_hit").Inc()
		return stored, nil
	}

	extension := media.SniffExtension(canonical)
	key := fingerprint + "." + extension

	if err := c.objects.Put(ctx, key, canonical, "image/"+extension); err != nil {
		slog.Error("[Coordinator] staging payload failed", "key", key, "error", err)
		scanOutcomes.WithLabelValues("stage_failed").Inc()
		return "", &Error{Kind: KindInternal, Message: msgStageFailed}
	}

	job := Job{
		ImageHash:     fingerprint,
		ScanURL:       c.publicBaseURL + "/scan/v1/worker/get_image/" + key,
		DataType:      "image",
		DataExtension: extension,
	}
	descriptor, err := json.Marshal(&job)
	if err != nil {
		return "", &Error{Kind: KindInternal, Message: msgEnqueueFailed}
	}
	if err := c.queue.Send(ctx, string(descriptor)); err != nil {
		slog.Error("[Coordinator] enqueue failed", "fingerprint", fingerprint, "error", err)
		if derr := c.objects.Delete(ctx, key); derr != nil {
			slog.Warn("[Coordinator] could not free staged payload after enqueue failure", "key", key, "error", derr)
		}
		scanOutcomes.WithLabelValues("enqueue_failed").Inc()
		return "", &Error{Kind: KindInternal, Message: msgEnqueueFailed}
	}

	return c.awaitResult(ctx, fingerprint)
}

// cachedResult is the pre-enqueue lookup. A stored result is returned only if
// it parses and validates; one that parses but fails validation is deleted so
// the artifact gets rescanned. Non-JSON blobs and lookup errors count as
// plain misses.
func (c *Coordinator) cachedResult(ctx context.Context, fingerprint string) (string, bool) {
	stored, found, err := c.results.GetScan(ctx, fingerprint)
	if err != nil {
		slog.Warn("[Coordinator] result lookup failed, treating as miss", "fingerprint", fingerprint, "error", err)
		return "", false
	}
	if !found {
		return "", false
	}

	var result Result
	if json.Unmarshal([]byte(stored), &result) != nil {
		return "", false
	}
	if result.Valid() {
		return stored, true
	}

	c.deleteCorrupt(ctx, fingerprint)
	return "", false
}

// awaitResult polls the result store until a worker completes the job or the
// wait budget runs out. Results failing validation are deleted and polling
// continues.
func (c *Coordinator) awaitResult(ctx context.Context, fingerprint string) (string, error) {
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}

		resultPolls.Inc()
		stored, found, err := c.results.GetScan(ctx, fingerprint)
		if err != nil || !found {
			continue
		}

		var result Result
		if json.Unmarshal([]byte(stored), &result) == nil && result.Valid() {
			scanOutcomes.WithLabelValues("completed").Inc()
			return stored, nil
		}
		c.deleteCorrupt(ctx, fingerprint)
	}

	scanOutcomes.WithLabelValues("timeout").Inc()
	return "", &Error{Kind: KindTimeout, Message: msgTimeout}
}

// deleteCorrupt removes an invalid stored result. Deletion failures are
// logged and never fail the surrounding request.
func (c *Coordinator) deleteCorrupt(ctx context.Context, fingerprint string) {
	corruptResults.Inc()
	if err := c.results.DeleteScan(ctx, fingerprint); err != nil {
		slog.Error("[Coordinator] could not remove an invalid scan result from the database", "fingerprint", fingerprint, "error", err)
	}
}
