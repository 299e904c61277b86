package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"render-orchestrator/internal/domain"
	"render-orchestrator/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type submitRequest struct {
	SubjectID string                 `json:"subject_id"`
	Kind      string                 `json:"kind"`
	Params    model.GenerationParams `json:"params"`
}

type jobResponse struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subject_id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Variant     string    `json:"variant"`
	EstimatedMB int       `json:"estimated_mb"`
	QueuedAt    time.Time `json:"queued_at"`
	Outputs     []string  `json:"outputs,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	CacheHit    bool      `json:"cache_hit"`
}

func toJobResponse(j model.Job) jobResponse {
	return jobResponse{
		ID:          j.ID,
		SubjectID:   j.SubjectID,
		Kind:        string(j.Kind),
		Status:      string(j.Status),
		Variant:     string(j.Variant),
		EstimatedMB: j.EstimatedMB,
		QueuedAt:    j.QueuedAt,
		Outputs:     j.Outputs,
		LastError:   j.LastError,
		CacheHit:    j.CacheHit,
	}
}

func (s *Server) handleMintSession(w http.ResponseWriter, r *http.Request) {
	if s.apiKey == "" {
		s.log.Error().Msg("operator API key is not configured")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = bearerToken(r)
	}
	if key != s.apiKey {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		http.Error(w, "Failed to mint session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job, err := s.submitUC.Submit(r.Context(), req.SubjectID, model.JobKind(req.Kind), req.Params)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrQueueFull):
			http.Error(w, err.Error(), http.StatusTooManyRequests)
		default:
			s.log.Error().Err(err).Msg("submit failed")
			http.Error(w, "Failed to submit generation", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.submitUC.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// handleJobEvents streams a job's progress as Server-Sent Events until
// the job goes terminal or the client disconnects.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.submitUC.Get(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get job", http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := s.events.Subscribe(id)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Stage, b)
			flusher.Flush()
			if ev.Terminal() {
				return
			}
		}
	}
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	subjects, err := s.readiness.Report(r.Context())
	if err != nil {
		http.Error(w, "Failed to build report", http.StatusInternalServerError)
		return
	}

	response := struct {
		Subjects []any            `json:"subjects"`
		Backend  map[string]any   `json:"backend"`
		Cache    model.CacheStats `json:"cache"`
	}{
		Subjects: make([]any, 0, len(subjects)),
		Backend:  map[string]any{},
	}
	for _, sub := range subjects {
		response.Subjects = append(response.Subjects, sub)
	}

	// backend queue is informational; a dead backend must not break the report
	if queue, err := s.backend.QueueStatus(r.Context()); err != nil {
		response.Backend["reachable"] = false
	} else {
		response.Backend["reachable"] = true
		response.Backend["running"] = queue.RunningHandle
		response.Backend["queued"] = len(queue.QueuedHandles)
	}
	if s.cache != nil {
		response.Cache = s.cache.Stats()
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	window := time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "Invalid window", http.StatusBadRequest)
			return
		}
		window = d
	}
	report, err := s.perf.Report(r.Context(), window)
	if err != nil {
		http.Error(w, "Failed to build report", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Target int `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	row, err := s.readiness.SetTarget(r.Context(), id, req.Target)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to set target", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject_id": row.SubjectID,
		"target":     row.Target,
		"deficit":    row.Deficit(),
	})
}

func (s *Server) handleResetBreaker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.readiness.ResetBreaker(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to reset breaker", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReplenishEnable(w http.ResponseWriter, _ *http.Request) {
	s.replenish.SetEnabled(true)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": true})
}

func (s *Server) handleReplenishDisable(w http.ResponseWriter, _ *http.Request) {
	s.replenish.SetEnabled(false)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
}

func (s *Server) handleReplenishTick(w http.ResponseWriter, r *http.Request) {
	if err := s.replenish.Tick(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("manual tick failed")
		http.Error(w, "Tick failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return ""
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
