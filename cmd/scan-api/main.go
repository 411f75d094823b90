package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pamaxie/Pamaxie.Scan-API/internal/auth"
	"github.com/pamaxie/Pamaxie.Scan-API/internal/config"
	"github.com/pamaxie/Pamaxie.Scan-API/internal/dbapi"
	"github.com/pamaxie/Pamaxie.Scan-API/internal/objstore"
	"github.com/pamaxie/Pamaxie.Scan-API/internal/queue"
	"github.com/pamaxie/Pamaxie.Scan-API/internal/scan"
	"github.com/pamaxie/Pamaxie.Scan-API/internal/server"
)

func main() {
	// Local development convenience; production sets real environment.
	_ = godotenv.Load()

	if missing := config.MissingEnv(); len(missing) > 0 {
		log.Printf("Refusing to start, required configuration is missing: %s", strings.Join(missing, ", "))
		os.Exit(-501)
	}

	tunables, err := config.Load(os.Getenv("SCAN_API_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load tunables: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbURL := os.Getenv("DB_API_URL")
	apiKey := os.Getenv("PAM_AUTH_TOKEN")

	credentials := auth.NewCredentials(apiKey, func(ctx context.Context) (string, error) {
		return dbapi.Login(ctx, nil, dbURL, apiKey)
	}, auth.Intervals{
		Refresh:      tunables.Credentials.RefreshInterval(),
		ReadAttempts: tunables.Credentials.ReadAttempts,
		ReadInterval: tunables.Credentials.ReadInterval(),
	})

	db, err := dbapi.NewClient(dbURL, credentials)
	if err != nil {
		log.Fatalf("Failed to initialize database api client: %v", err)
	}

	objects, err := objstore.New(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize object store: %v", err)
	}

	jobQueue, err := queue.New(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize queue: %v", err)
	}

	coordinator := scan.NewCoordinator(db, objects, jobQueue, os.Getenv("PAM_BASE_URL"),
		tunables.Coordinator.PollAttempts, tunables.Coordinator.PollInterval())

	srv := server.New(coordinator, db, objects, jobQueue, server.Options{
		LeaseAttempts: tunables.Worker.LeaseAttempts,
		LeaseInterval: tunables.Worker.LeaseIntervalMs,
	})

	// One background goroutine owns the bearer token for outbound calls.
	go credentials.Run(ctx)

	port := config.Port()
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  tunables.Server.ReadTimeout(),
		WriteTimeout: tunables.Server.WriteTimeout(),
		IdleTimeout:  tunables.Server.IdleTimeout(),
	}

	go func() {
		<-ctx.Done()
		log.Println("Received shutdown signal, shutting down gracefully...")

		drainCtx, cancel := context.WithTimeout(context.Background(), tunables.Server.DrainTimeout())
		defer cancel()
		if err := httpServer.Shutdown(drainCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Pamaxie scan api starting on port %s", port)
	log.Printf("📊 Status endpoint: http://localhost:%s/scan/v1/status", port)

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}

	log.Println("Server stopped")
}
