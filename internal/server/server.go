// Package server exposes the scan api over HTTP: the client-facing
// detection surface, the worker-facing job surface and the status and
// metrics endpoints. Handlers stay thin; lifecycle policy lives in the
// scan coordinator.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pamaxie/Pamaxie.Scan-API/internal/scan"
)

// MaxBodyBytes caps every request payload at 250 MB.
const MaxBodyBytes = 250 << 20

// Database is the slice of the database api the HTTP surface needs beyond
// what the coordinator already consumes: connection and auth checks plus
// the result store for worker-side dedup and ingestion.
type Database interface {
	CheckConnection(ctx context.Context) bool
	CheckAuth(ctx context.Context, authorization string) bool
	IsInternalAuth(ctx context.Context, authorization string) bool
	scan.ResultStore
}

// Recognizer runs the job lifecycle for one image payload.
type Recognizer interface {
	Recognize(ctx context.Context, payload []byte) (string, error)
}

// Options tunes the worker lease loop.
type Options struct {
	LeaseAttempts int
	LeaseInterval int // milliseconds
}

// Server wires the HTTP routes to their dependencies.
type Server struct {
	recognizer Recognizer
	db         Database
	objects    scan.ObjectStore
	queue      scan.Queue

	leaseAttempts int
	leaseInterval int

	// fetch pulls remote payloads for detectImageFromUrl.
	fetch *http.Client
}

func New(recognizer Recognizer, db Database, objects scan.ObjectStore, queue scan.Queue, opts Options) *Server {
	if opts.LeaseAttempts <= 0 {
		opts.LeaseAttempts = 50
	}
	if opts.LeaseInterval <= 0 {
		opts.LeaseInterval = 100
	}
	return &Server{
		recognizer:    recognizer,
		db:            db,
		objects:       objects,
		queue:         queue,
		leaseAttempts: opts.LeaseAttempts,
		leaseInterval: opts.LeaseInterval,
		fetch:         &http.Client{Timeout: 30 * time.Second},
	}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(instrumentMiddleware)

	r.HandleFunc("/scan/v1/status", s.handleStatus).Methods(http.MethodGet)

	detection := r.PathPrefix("/scan/v1/detection").Subrouter()
	detection.HandleFunc("/detect", s.requireAuth(s.handleDetect)).Methods(http.MethodPost)
	detection.HandleFunc("/detectImage", s.requireAuth(s.handleDetectImage)).Methods(http.MethodPost)
	detection.HandleFunc("/detectImageFromUrl", s.requireAuth(s.handleDetectImageFromURL)).Methods(http.MethodPost)
	detection.HandleFunc("/getHash", s.handleGetHash).Methods(http.MethodPost)

	worker := r.PathPrefix("/scan/v1/worker").Subrouter()
	worker.HandleFunc("/get_work", s.requireInternal(s.handleGetWork)).Methods(http.MethodGet)
	worker.HandleFunc("/post_result", s.requireInternal(s.handlePostResult)).Methods(http.MethodPost)
	worker.HandleFunc("/get_image/{name}", s.handleGetImage).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}
