// Command scan-worker is a development stand-in for the recognition fleet.
// It leases jobs from a running scan api, fetches the staged payload and
// posts back a stub result, which is enough to exercise the whole job
// lifecycle end to end without real recognition hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/pamaxie/Pamaxie.Scan-API/pkg/scanclient"
)

func main() {
	baseURL := flag.String("api", "http://localhost:8080", "Scan api base url")
	token := flag.String("token", os.Getenv("PAM_WORKER_TOKEN"), "Worker bearer token")
	idle := flag.Duration("idle", 2*time.Second, "Sleep between lease attempts when the queue is empty")
	flag.Parse()

	if *token == "" {
		log.Fatal("A worker bearer token is required (-token or PAM_WORKER_TOKEN)")
	}

	client := scanclient.New(scanclient.Config{BaseURL: *baseURL, Token: *token})
	machineGUID := uuid.NewString()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("🤖 Worker %s leasing from %s", machineGUID, *baseURL)

	for ctx.Err() == nil {
		job, err := client.GetWork(ctx)
		if err != nil {
			log.Printf("Lease failed: %v", err)
			sleep(ctx, *idle)
			continue
		}
		if job == nil {
			sleep(ctx, *idle)
			continue
		}

		log.Printf("📥 Leased job %s (%s.%s)", shortHash(job.ImageHash), job.DataType, job.DataExtension)

		payload, err := client.FetchPayload(ctx, job)
		if err != nil {
			log.Printf("Payload fetch failed for %s: %v", shortHash(job.ImageHash), err)
			continue
		}

		result := &scanclient.Result{
			Key:           job.ImageHash,
			ScanResult:    stubRecognition(payload),
			DataType:      job.DataType,
			DataExtension: job.DataExtension,
		}
		if err := client.PostResult(ctx, result); err != nil {
			log.Printf("Posting result for %s failed: %v", shortHash(job.ImageHash), err)
			continue
		}
		log.Printf("✅ Completed job %s", shortHash(job.ImageHash))
	}
}

// stubRecognition fakes a recognition payload so the stored result carries
// something inspectable.
func stubRecognition(payload []byte) string {
	return fmt.Sprintf(`{"label":"simulated","bytes":%d}`, len(payload))
}

// shortHash abbreviates a fingerprint for log lines. Leased descriptors
// come off the wire, so the hash may be any length.
func shortHash(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
