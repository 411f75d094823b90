package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// requestIDMiddleware tags every request so log lines from one request can
// be pulled together.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func instrumentMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		// Label by route template, never by raw path: get_image is public
		// and every distinct object name would otherwise mint a fresh
		// series.
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}

		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		requestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
		slog.Info("[Server] request handled",
			"method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}

// requireAuth rejects callers the database api does not recognize. An
// absent Authorization header is rejected without a database round trip.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := r.Header.Get("Authorization")
		if authorization == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !s.db.CheckAuth(r.Context(), authorization) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type ctxKey int

const internalAuthKey ctxKey = iota

// requireInternal additionally rejects tokens not issued to pamaxie's own
// worker fleet. The verdict is stashed on the context so post_result can
// stamp provenance without a second database round trip.
func (s *Server) requireInternal(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if !s.db.IsInternalAuth(r.Context(), r.Header.Get("Authorization")) {
			http.Error(w, "Currently only pamaxie's own clients are allowed to scan files. Stay tuned for more.", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), internalAuthKey, true)))
	})
}

// internalAuth reports the guard's verdict for the current request.
func internalAuth(r *http.Request) bool {
	verdict, _ := r.Context().Value(internalAuthKey).(bool)
	return verdict
}

// readBody drains a capped request body. The cap makes oversized uploads
// fail the read instead of buffering 250+ MB per request.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
}

var errPayloadTooLarge = errors.New("payload exceeds the upload cap")

// readAllCapped applies the same cap to fetched remote payloads. Reading
// one byte past the limit distinguishes an oversized payload from one
// that is exactly at the cap; a truncated read would otherwise surface
// later as a decode failure.
func readAllCapped(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errPayloadTooLarge
	}
	return data, nil
}
