package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/pamaxie/Pamaxie.Scan-API/internal/media"
	"github.com/pamaxie/Pamaxie.Scan-API/internal/scan"
)

// Client-facing response texts.
const (
	msgBadRequestBody  = "Could not process the request that has been sent to the server."
	msgUnsupportedKind = "We do not support this media type yet."
	msgIncorrectResult = "Incorrect Result"
	msgBadURL          = "Please ensure you specify a valid url to detect from"
	msgFetchFailed     = "Could not fetch the image from the given url. Please make sure the url is correct."
	msgFetchReadFailed = "Error while trying to load the image as bytes. Please ensure the url is correct and we can get images from it."
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	dbStatus := "Ok"
	if !s.db.CheckConnection(r.Context()) {
		dbStatus = "Unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"SCAN_STATUS": "Ok",
		"DB_STATUS":   dbStatus,
	})
}

// handleDetect routes a payload of unknown kind. Only images are scannable;
// every other recognized kind is declined and unrecognizable bytes get a
// textual note with a success status.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(w, r)
	if err != nil {
		http.Error(w, msgBadRequestBody, http.StatusBadRequest)
		return
	}

	switch media.SniffKind(payload) {
	case media.KindImage:
		s.recognize(w, r, payload)
	case media.KindVideo, media.KindAudio, media.KindApp, media.KindArchive, media.KindDocument, media.KindFont:
		http.Error(w, msgUnsupportedKind, http.StatusNotImplemented)
	default:
		w.Write([]byte(msgIncorrectResult))
	}
}

func (s *Server) handleDetectImage(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(w, r)
	if err != nil || len(payload) == 0 {
		http.Error(w, msgBadRequestBody, http.StatusBadRequest)
		return
	}
	s.recognize(w, r, payload)
}

// handleDetectImageFromURL fetches the image itself so callers can hand
// over a location instead of bytes. Every fetch-side failure is the
// caller's problem and maps to 400.
func (s *Server) handleDetectImageFromURL(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		http.Error(w, msgBadURL, http.StatusBadRequest)
		return
	}

	target := strings.TrimSpace(string(body))
	parsed, err := url.ParseRequestURI(target)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		http.Error(w, msgBadURL, http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		http.Error(w, msgBadURL, http.StatusBadRequest)
		return
	}
	resp, err := s.fetch.Do(req)
	if err != nil {
		http.Error(w, msgFetchFailed, http.StatusBadRequest)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		http.Error(w, msgFetchFailed, http.StatusBadRequest)
		return
	}

	payload, err := readAllCapped(resp.Body, MaxBodyBytes)
	if err != nil {
		http.Error(w, msgFetchReadFailed, http.StatusBadRequest)
		return
	}
	s.recognize(w, r, payload)
}

// handleGetHash fingerprints the raw submitted bytes. Unlike the scan
// pipeline the payload is not canonicalized first; this is a plain utility
// for callers that want to pre-compute keys.
func (s *Server) handleGetHash(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(w, r)
	if err != nil {
		http.Error(w, msgBadRequestBody, http.StatusBadRequest)
		return
	}
	w.Write([]byte(media.Hash(payload)))
}

// recognize runs the coordinator and maps its error taxonomy onto HTTP. A
// soft timeout is a success status with Retry-After so pollers never see an
// error while the worker fleet is merely busy.
func (s *Server) recognize(w http.ResponseWriter, r *http.Request, payload []byte) {
	result, err := s.recognizer.Recognize(r.Context(), payload)
	if err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(result))
		return
	}

	var scanErr *scan.Error
	if !errors.As(err, &scanErr) {
		// Context cancellation or another non-taxonomy failure.
		slog.Warn("[Server] recognition aborted", "error", err)
		http.Error(w, msgBadRequestBody, http.StatusInternalServerError)
		return
	}

	switch scanErr.Kind {
	case scan.KindTimeout:
		w.Header().Set("Retry-After", "60")
		w.Write([]byte(scanErr.Message))
	case scan.KindBadImage, scan.KindInternal:
		http.Error(w, scanErr.Message, http.StatusInternalServerError)
	default:
		http.Error(w, scanErr.Message, http.StatusInternalServerError)
	}
}
