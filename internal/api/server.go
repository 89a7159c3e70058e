package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavitrk/retirepipe/internal/collab"
	"github.com/pavitrk/retirepipe/internal/retirement"
	"github.com/pavitrk/retirepipe/internal/retry"
	"github.com/pavitrk/retirepipe/internal/states"
)

type Queue interface {
	Ping(ctx context.Context) error
	Enqueue(ctx context.Context, queueName string, recordID string) error
}

type Server struct {
	store     retirement.Store
	queue     Queue
	directory collab.Directory
	queueName string
	logger    *slog.Logger
	http      *http.Server
}

func NewServer(addr string, store retirement.Store, queue Queue, directory collab.Directory, queueName string, promReg *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		store:     store,
		queue:     queue,
		directory: directory,
		queueName: queueName,
		logger:    logger,
	}

	mux.HandleFunc("/health", s.health)
	mux.HandleFunc("/retirements", s.retirements)
	mux.HandleFunc("/retirements/", s.retirementSubroutes)
	mux.HandleFunc("/errored", s.errored)
	mux.HandleFunc("/errored/", s.erroredByID)
	mux.HandleFunc("/stats", s.stats)
	if promReg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           requestIDMiddleware(loggingMiddleware(logger, mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the routing stack for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		http.Error(w, "store not ready", http.StatusServiceUnavailable)
		return
	}
	if err := s.queue.Ping(ctx); err != nil {
		http.Error(w, "queue not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) retirements(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.requestRetirement(w, r)
	case http.MethodGet:
		s.listRetirements(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// requestRetirement snapshots the user's identity and creates a record
// pinned to the initial state. There is no synchronous "complete"
// response; callers poll status.
func (s *Server) requestRetirement(w http.ResponseWriter, r *http.Request) {
	var req RequestRetirementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_json", "request body is not valid json")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeAPIError(w, http.StatusBadRequest, "missing_username", "username is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	info, err := s.directory.Lookup(ctx, req.Username)
	if err != nil {
		// A transient identity-service failure is not "no such user".
		if retry.Classify(err) == retry.ClassRetryable {
			s.logger.Error("identity lookup unavailable", "username", req.Username, "err", err)
			writeAPIError(w, http.StatusServiceUnavailable, "identity_unavailable", "identity service unavailable, retry later")
			return
		}
		writeAPIError(w, http.StatusNotFound, "unknown_user", "no such user")
		return
	}

	rec, err := s.store.CreateRetirement(ctx, retirement.Snapshot{
		UserID:   info.UserID,
		Username: info.Username,
		Email:    info.Email,
		Name:     info.Name,
	})
	if err != nil {
		if errors.Is(err, retirement.ErrAlreadyInProgress) {
			writeAPIError(w, http.StatusConflict, "already_in_progress", "an active retirement exists for this user")
			return
		}
		s.logger.Error("create retirement failed", "username", req.Username, "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal", "failed to create retirement")
		return
	}

	if err := s.queue.Enqueue(ctx, s.queueName, rec.ID); err != nil {
		// The sweeper requeues stalled records, so the retirement is
		// still durable; report the enqueue failure anyway.
		s.logger.Error("enqueue retirement failed", "record_id", rec.ID, "err", err)
	}

	writeJSON(w, http.StatusAccepted, toRecordResponse(rec, false))
}

func (s *Server) listRetirements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := retirement.Filter{
		StateName: strings.TrimSpace(q.Get("state")),
		Limit:     parseInt(q.Get("limit"), 50),
		Offset:    parseInt(q.Get("offset"), 0),
	}
	if v := strings.TrimSpace(q.Get("deadEnd")); v != "" {
		deadEnd := v == "true" || v == "1"
		f.DeadEnd = &deadEnd
	}
	if mins := parseInt(q.Get("olderThanMinutes"), 0); mins > 0 {
		f.OlderThan = time.Now().UTC().Add(-time.Duration(mins) * time.Minute)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	recs, err := s.store.List(ctx, f)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "internal", "failed to list retirements")
		return
	}

	resp := ListResponse{Items: []RecordResponse{}, Limit: f.Limit, Offset: f.Offset}
	for _, rec := range recs {
		resp.Items = append(resp.Items, toRecordResponse(rec, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) retirementSubroutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/retirements/")
	parts := strings.Split(path, "/")
	id := parts[0]

	if id == "" {
		writeAPIError(w, http.StatusBadRequest, "missing_id", "missing retirement id")
		return
	}

	if len(parts) == 1 {
		s.getRetirement(w, r, id)
		return
	}

	switch parts[1] {
	case "abort":
		s.abortRetirement(w, r, id)
	default:
		writeAPIError(w, http.StatusNotFound, "not_found", "no such route")
	}
}

// getRetirement resolves by record ID first, then by user ID, so both
// the operator tooling (record IDs) and user-facing status polling
// (user identifiers) work.
func (s *Server) getRetirement(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rec, err := s.store.Get(ctx, id)
	if errors.Is(err, retirement.ErrNotFound) {
		rec, err = s.store.GetByUser(ctx, id)
	}
	if err != nil {
		if errors.Is(err, retirement.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "not_found", "no retirement for this identifier")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "internal", "failed to load retirement")
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(rec, true))
}

func (s *Server) abortRetirement(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req AbortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_json", "request body is not valid json")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "aborted by operator"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// Accept record IDs and user identifiers, same as the status route.
	rec, err := s.store.Get(ctx, id)
	if errors.Is(err, retirement.ErrNotFound) {
		rec, err = s.store.GetByUser(ctx, id)
	}
	if err != nil {
		if errors.Is(err, retirement.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "not_found", "no retirement for this identifier")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "internal", "failed to load retirement")
		return
	}

	rec, err = s.store.Advance(ctx, rec.ID, states.StateAborted, reason, false)
	if err != nil {
		switch {
		case errors.Is(err, retirement.ErrNotFound):
			writeAPIError(w, http.StatusNotFound, "not_found", "no such retirement")
		case errors.Is(err, retirement.ErrAlreadyTerminal):
			writeAPIError(w, http.StatusConflict, "already_terminal", "retirement already reached a dead end")
		default:
			s.logger.Error("abort failed", "record_id", id, "err", err)
			writeAPIError(w, http.StatusInternalServerError, "internal", "failed to abort retirement")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, toRecordResponse(rec, false))
}

func (s *Server) errored(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	recs, err := s.store.List(ctx, retirement.Filter{
		StateName: states.StateErrored,
		Limit:     parseInt(r.URL.Query().Get("limit"), 50),
		Offset:    parseInt(r.URL.Query().Get("offset"), 0),
	})
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "internal", "failed to list errored retirements")
		return
	}

	resp := ListResponse{Items: []RecordResponse{}}
	for _, rec := range recs {
		resp.Items = append(resp.Items, toRecordResponse(rec, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

// erroredByID returns one errored record with its full response log,
// which is what an operator needs to decide on remediation.
func (s *Server) erroredByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/errored/")
	if id == "" {
		writeAPIError(w, http.StatusBadRequest, "missing_id", "missing retirement id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, retirement.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "not_found", "no such retirement")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "internal", "failed to load retirement")
		return
	}
	if rec.CurrentState != states.StateErrored {
		writeAPIError(w, http.StatusNotFound, "not_errored", "retirement is not in the errored state")
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(rec, true))
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 4*time.Second)
	defer cancel()

	st, err := s.store.Stats(ctx)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Total:    st.Total,
		Pending:  st.Pending,
		Active:   st.Active,
		Errored:  st.Errored,
		Aborted:  st.Aborted,
		Complete: st.Complete,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
