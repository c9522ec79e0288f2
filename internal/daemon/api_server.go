package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/config"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/control"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/dlq"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/fingerprint"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/logging"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/queue/process", srv.handleQueueProcess)
	mux.HandleFunc("/api/queue/pause", srv.handleQueuePause)
	mux.HandleFunc("/api/queue/resume", srv.handleQueueResume)
	mux.HandleFunc("/api/queue/paused", srv.handleQueuePaused)
	mux.HandleFunc("/api/queue/reprocess", srv.handleQueueReprocess)
	mux.HandleFunc("/api/queue/reprocess-candidates", srv.handleReprocessCandidates)
	mux.HandleFunc("/api/queue/stats", srv.handleQueueStats)
	mux.HandleFunc("/api/queue/jobs", srv.handleQueueJobs)
	mux.HandleFunc("/api/dlq", srv.handleDLQList)
	mux.HandleFunc("/api/dlq/stats", srv.handleDLQStats)
	mux.HandleFunc("/api/dlq/purge", srv.handleDLQPurge)
	mux.HandleFunc("/api/dlq/", srv.handleDLQEntry)
	mux.HandleFunc("/api/fingerprint/verify", srv.handleFingerprintVerify)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listen address, for tests using port 0.
func (s *apiServer) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleQueueProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Limit int `json:"limit"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	result, err := s.daemon.control.ProcessQueue(r.Context(), req.Limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type jobIDsRequest struct {
	JobIDs []int64 `json:"jobIds"`
}

func (s *apiServer) handleQueuePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req jobIDsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	result, err := s.daemon.control.Pause(r.Context(), req.JobIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleQueueResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req jobIDsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	result, err := s.daemon.control.Resume(r.Context(), req.JobIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleQueuePaused(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jobs, err := s.daemon.control.PausedJobs(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobViews(jobs)})
}

func (s *apiServer) handleQueueReprocess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		JobIDs []int64 `json:"jobIds"`
		All    bool    `json:"all"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	result, err := s.daemon.control.Reprocess(r.Context(), control.ReprocessRequest{JobIDs: req.JobIDs, All: req.All})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleReprocessCandidates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	report, err := s.daemon.control.ReprocessCandidates(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *apiServer) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.daemon.control.Stats(r.Context(), r.URL.Query().Get("org"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *apiServer) handleQueueJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	jobs, err := s.daemon.store.ListByStatus(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobViews(jobs)})
}

func (s *apiServer) handleDLQList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	var status dlq.Status
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		parsed, ok := dlq.ParseStatus(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		status = parsed
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	entries, err := s.daemon.deadLetters.Store().List(r.Context(), query.Get("org"), status, limit, offset)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entryViews(entries)})
}

func (s *apiServer) handleDLQStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.daemon.deadLetters.Store().AggregateStats(r.Context(), r.URL.Query().Get("org"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *apiServer) handleDLQPurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		OlderThanDays int    `json:"olderThanDays"`
		Status        string `json:"status"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	days := req.OlderThanDays
	if days <= 0 {
		days = s.daemon.cfg.DLQ.PurgeDefaultAgeDays
	}
	var statuses []dlq.Status
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status, ok := dlq.ParseStatus(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		statuses = append(statuses, status)
	}
	olderThan := time.Now().AddDate(0, 0, -days)
	purged, err := s.daemon.deadLetters.Store().Purge(r.Context(), olderThan, statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"purged": purged})
}

// handleDLQEntry serves /api/dlq/{id}, /api/dlq/{id}/retry, and
// /api/dlq/{id}/resolve.
func (s *apiServer) handleDLQEntry(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/dlq/")
	idStr, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid dlq entry id")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		entry, err := s.daemon.deadLetters.Store().Get(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if entry == nil {
			s.writeError(w, http.StatusNotFound, "dlq entry not found")
			return
		}
		s.writeJSON(w, http.StatusOK, entryView(entry))
	case "retry":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req struct {
			DryRun bool `json:"dryRun"`
		}
		if !s.decodeBody(w, r, &req) {
			return
		}
		outcome, err := s.daemon.deadLetters.Retry(r.Context(), id, req.DryRun)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, outcome)
	case "resolve":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req struct {
			Actor string `json:"actor"`
			Notes string `json:"notes"`
		}
		if !s.decodeBody(w, r, &req) {
			return
		}
		entry, err := s.daemon.deadLetters.Store().Resolve(r.Context(), id, req.Actor, req.Notes)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, entryView(entry))
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *apiServer) handleFingerprintVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.fingerprints == nil {
		s.writeError(w, http.StatusServiceUnavailable, "fingerprint service not available")
		return
	}
	var req struct {
		FingerprintID string                   `json:"fingerprintId"`
		ContentHash   string                   `json:"contentHash"`
		QuickScanHash string                   `json:"quickScanHash"`
		Fingerprint   *fingerprint.Fingerprint `json:"fingerprint"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	cert, err := s.daemon.fingerprints.Verify(r.Context(), fingerprint.Request{
		Fingerprint:   req.Fingerprint,
		FingerprintID: req.FingerprintID,
		ContentHash:   req.ContentHash,
		QuickScan:     req.QuickScanHash,
	})
	if err != nil {
		var noMaterial *fingerprint.ErrNoMaterial
		if errors.As(err, &noMaterial) {
			s.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":           noMaterial.Error(),
				"acceptedMethods": noMaterial.Accepted,
			})
			return
		}
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cert)
}

// decodeBody parses an optional JSON request body. An empty body leaves the
// target zeroed; malformed JSON is a client error.
func (s *apiServer) decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(target)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.writeError(w, http.StatusBadRequest, "invalid request body")
	return false
}

// writeServiceError maps service errors to HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dlq.ErrEntryNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dlq.ErrEntryClosed), errors.Is(err, dlq.ErrNotRetryable):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, queue.ErrStaleState):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
