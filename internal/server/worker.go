package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pamaxie/Pamaxie.Scan-API/internal/auth"
	"github.com/pamaxie/Pamaxie.Scan-API/internal/media"
	"github.com/pamaxie/Pamaxie.Scan-API/internal/scan"
)

// Worker-facing response texts.
const (
	msgNoWork        = "no work"
	msgBadClaims     = "Invalid JWT bearer payload data. Could not read required data from it."
	msgNoBody        = "No body found in request"
	msgInvalidResult = "Invalid data found in request"
	msgStoreFailed   = "Data could not be stored in API. Please try again later."
	msgStored        = "Data has been accepted and stored into our API"
)

// handleGetWork leases one job descriptor for the calling worker. Messages
// whose fingerprint already has a stored result are dropped on the floor:
// two clients racing the same artifact enqueue twice, but only the first
// descriptor survives this filter.
func (s *Server) handleGetWork(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	for attempt := 0; attempt < s.leaseAttempts; attempt++ {
		body, err := s.queue.ReceiveAndDelete(ctx)
		if err != nil {
			slog.Warn("[Worker] queue receive failed", "error", err)
		}
		if body == "" {
			workLeases.WithLabelValues("empty").Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(s.leaseInterval) * time.Millisecond):
			}
			continue
		}

		var job scan.Job
		if json.Unmarshal([]byte(body), &job) != nil || !job.Valid() {
			slog.Warn("[Worker] dropping malformed job descriptor")
			workLeases.WithLabelValues("dropped_invalid").Inc()
			continue
		}

		// The receive already destroyed the message, so a completed job is
		// simply not handed out again.
		if _, found, err := s.db.GetScan(ctx, job.ImageHash); err == nil && found {
			workLeases.WithLabelValues("deduplicated").Inc()
			continue
		}

		workLeases.WithLabelValues("dispatched").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
		return
	}

	http.Error(w, msgNoWork, http.StatusBadRequest)
}

// handlePostResult ingests a completed recognition. The body is untrusted:
// the worker's identity and the provenance flag always come from the
// authenticated token, whatever the body claims.
func (s *Server) handlePostResult(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ParseClaims(r.Header.Get("Authorization"))
	if err != nil {
		http.Error(w, msgBadClaims, http.StatusBadRequest)
		return
	}

	body, err := readBody(w, r)
	if err != nil || len(body) == 0 {
		http.Error(w, msgNoBody, http.StatusBadRequest)
		return
	}

	var result scan.Result
	if err := json.Unmarshal(body, &result); err != nil {
		http.Error(w, msgInvalidResult, http.StatusBadRequest)
		return
	}
	result.ScanMachineGUID = claims.APITokenMachineGUID
	result.IsUserScan = internalAuth(r)

	if !result.Valid() {
		http.Error(w, msgInvalidResult, http.StatusBadRequest)
		return
	}

	// Free the staged payload; the result now carries everything callers
	// will ever ask for.
	key := result.Key + "." + result.DataExtension
	if err := s.objects.Delete(r.Context(), key); err != nil {
		slog.Warn("[Worker] could not free staged payload", "key", key, "error", err)
	}

	stored, err := json.Marshal(&result)
	if err != nil {
		http.Error(w, msgStoreFailed, http.StatusInternalServerError)
		return
	}
	if err := s.db.SetScan(r.Context(), string(stored)); err != nil {
		slog.Error("[Worker] storing result failed", "key", result.Key, "error", err)
		http.Error(w, msgStoreFailed, http.StatusInternalServerError)
		return
	}

	resultsAccepted.Inc()
	w.Write([]byte(msgStored))
}

// handleGetImage serves a staged payload back to the worker that leased its
// job. The route is public: the fingerprint in the name is unguessable.
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	data, found, err := s.objects.Get(r.Context(), name)
	if err != nil || !found {
		if err != nil {
			slog.Warn("[Worker] staged payload fetch failed", "key", name, "error", err)
		}
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/"+media.SniffExtension(data))
	w.Write(data)
}
