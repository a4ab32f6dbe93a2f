package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
	pgrepo "github.com/aliskhannn/ssm-generator/internal/infra/postgres/repository"
	"github.com/aliskhannn/ssm-generator/internal/repository"
	"github.com/aliskhannn/ssm-generator/internal/service"
)

const (
	defaultSubject = "Medicina Generale"
	maxBodyBytes   = 10 << 20
	defaultListLen = 20
)

// runRequest is the body of /api/runs and /api/generate.
type runRequest struct {
	Subject          string `json:"subject"`
	Topic            string `json:"topic"`
	Count            int    `json:"count"`
	ContextText      string `json:"context_text"`
	SkipVerification bool   `json:"skip_verification"`
	APIKey           string `json:"api_key"`
	Persist          bool   `json:"persist"` // append accepted items to the configured record store
}

func (s *Server) toRunRequest(body runRequest) entities.RunRequest {
	req := entities.RunRequest{
		Subject:          strings.TrimSpace(body.Subject),
		Topic:            strings.TrimSpace(body.Topic),
		Count:            body.Count,
		ReferenceText:    body.ContextText,
		SkipVerification: body.SkipVerification,
		APIKey:           body.APIKey,
	}
	if req.Subject == "" {
		req.Subject = defaultSubject
	}
	if req.Count == 0 {
		req.Count = s.opts.DefaultCount
	}
	if s.opts.MaxCount > 0 && req.Count > s.opts.MaxCount {
		req.Count = s.opts.MaxCount
	}
	if req.APIKey == "" {
		req.APIKey = s.opts.APIKey
	}
	if body.Persist {
		req.OutputPath = s.opts.OutputPath
		req.WriteMode = entities.WriteAppend
	}
	return req
}

type runAccepted struct {
	ID        string `json:"id"`
	StatusURL string `json:"status_url"`
}

type generateResponse struct {
	Success        bool                     `json:"success"`
	Questions      []entities.GeneratedItem `json:"questions"`
	TotalGenerated int                      `json:"total_generated"`
	Excluded       int                      `json:"excluded"`
	Summary        *entities.RunSummary     `json:"summary,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

type appendRequest struct {
	Questions []entities.GeneratedItem `json:"questions"`
}

type appendResponse struct {
	Success  bool   `json:"success"`
	Count    int    `json:"count"`
	Rejected int    `json:"rejected"`
	File     string `json:"file"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"api_key_configured": s.opts.APIKey != "",
		"model":              s.opts.Model,
		"database":           s.items != nil,
		"telegram":           s.opts.TelegramEnabled,
	})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if !decodeBody(w, r, &body) {
		return
	}

	run, err := s.runs.Start(s.toRunRequest(body))
	if err != nil {
		s.respondStartError(w, err)
		return
	}

	id := run.ID().String()
	w.Header().Set("Location", "/api/runs/"+id)
	respondJSON(w, http.StatusAccepted, runAccepted{ID: id, StatusURL: "/api/runs/" + id})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run id", err)
		return
	}

	run, ok := s.runs.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "run not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, run.Snapshot())
}

// handleGenerate runs a request and answers with the accepted items once it
// finishes. Nothing is written unless persist is set. When the run outlives
// SyncTimeout the response is 202 with the run id to poll.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if !decodeBody(w, r, &body) {
		return
	}

	run, err := s.runs.Start(s.toRunRequest(body))
	if err != nil {
		s.respondStartError(w, err)
		return
	}

	var timeout <-chan time.Time
	if s.opts.SyncTimeout > 0 {
		t := time.NewTimer(s.opts.SyncTimeout)
		defer t.Stop()
		timeout = t.C
	}

	id := run.ID().String()
	select {
	case <-run.Done():
	case <-timeout:
		respondJSON(w, http.StatusAccepted, runAccepted{ID: id, StatusURL: "/api/runs/" + id})
		return
	case <-r.Context().Done():
		s.logger.Info("client left before run finished", zap.String("run_id", id))
		return
	}

	snap := run.Snapshot()
	if snap.Stage == service.StageFailed {
		msg := snap.Message
		if n := len(snap.Errors); n > 0 {
			msg = snap.Errors[n-1]
		}
		respondJSON(w, http.StatusBadGateway, generateResponse{Success: false, Questions: []entities.GeneratedItem{}, Error: msg})
		return
	}

	resp := generateResponse{
		Success:   true,
		Questions: snap.Items,
		Summary:   snap.Summary,
	}
	if resp.Questions == nil {
		resp.Questions = []entities.GeneratedItem{}
	}
	if snap.Summary != nil {
		resp.TotalGenerated = snap.Summary.Generated
		resp.Excluded = snap.Summary.Excluded
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	var body appendRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body.Questions) == 0 {
		respondError(w, http.StatusBadRequest, "Nessuna domanda da salvare", nil)
		return
	}

	target := repository.ResolveAppendTarget(s.opts.AppendPath, s.opts.AppendFallbackPath)

	n, err := s.writer.Persist(r.Context(), body.Questions, target, entities.WriteAppend)
	if err != nil {
		s.logger.Error("append failed", zap.String("path", target), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "append failed", err)
		return
	}

	respondJSON(w, http.StatusOK, appendResponse{
		Success:  true,
		Count:    n,
		Rejected: len(body.Questions) - n,
		File:     filepath.Base(target),
	})
}

func (s *Server) handleItemStats(w http.ResponseWriter, r *http.Request) {
	if s.items == nil {
		respondError(w, http.StatusServiceUnavailable, "database mirror not configured", nil)
		return
	}

	counts, err := s.items.CountBySubject(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count items", err)
		return
	}
	if counts == nil {
		counts = []pgrepo.SubjectCount{}
	}

	respondJSON(w, http.StatusOK, counts)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	if s.items == nil {
		respondError(w, http.StatusServiceUnavailable, "database mirror not configured", nil)
		return
	}

	subject := strings.TrimSpace(r.URL.Query().Get("subject"))
	if subject == "" {
		respondError(w, http.StatusBadRequest, "subject is required", nil)
		return
	}

	limit := defaultListLen
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500", nil)
			return
		}
		limit = n
	}

	items, err := s.items.ListBySubject(r.Context(), subject, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list items", err)
		return
	}
	if items == nil {
		items = []entities.GeneratedItem{}
	}

	respondJSON(w, http.StatusOK, items)
}

func (s *Server) respondStartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		respondError(w, http.StatusConflict, "a run is already in progress", err)
	case service.IsClientError(err):
		respondError(w, http.StatusBadRequest, "invalid request", err)
	default:
		s.logger.Error("failed to start run", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "failed to start run", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"success": false,
		"error":   message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
