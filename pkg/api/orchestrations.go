package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paddockdb/paddock/pkg/history"
)

// maxOrchestrationList caps the listing; histories grow one instance per
// actor interval continuation, so unbounded listings get large fast.
const maxOrchestrationList = 50

// OrchestrationSummary is one row of GET /api/server/orchestrations.
type OrchestrationSummary struct {
	InstanceID           string    `json:"instance_id"`
	OrchestrationName    string    `json:"orchestration_name"`
	OrchestrationVersion string    `json:"orchestration_version,omitempty"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (s *Server) handleListOrchestrations(w http.ResponseWriter, r *http.Request) {
	ids, err := s.orch.ListInstances()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, codeInternal, "failed to list orchestrations: "+err.Error())
		return
	}
	if len(ids) > maxOrchestrationList {
		ids = ids[:maxOrchestrationList]
	}

	summaries := make([]OrchestrationSummary, 0, len(ids))
	for _, id := range ids {
		info, err := s.orch.GetInstanceInfo(id)
		if err != nil {
			s.logger.Warn().Err(err).Str("instance_id", id).Msg("Skipping unreadable orchestration")
			continue
		}
		summaries = append(summaries, OrchestrationSummary{
			InstanceID:           info.InstanceID,
			OrchestrationName:    info.Name,
			OrchestrationVersion: info.Version,
			Status:               string(info.Status),
			CreatedAt:            info.CreatedAt,
			UpdatedAt:            info.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

// ExecutionHistory is one execution's event log. Executions past the
// first exist when the workflow continued as new.
type ExecutionHistory struct {
	ExecutionID uint64           `json:"execution_id"`
	Events      []*history.Event `json:"events"`
}

// OrchestrationDetail is the GET /api/server/orchestrations/{id} body.
type OrchestrationDetail struct {
	InstanceID           string             `json:"instance_id"`
	OrchestrationName    string             `json:"orchestration_name"`
	OrchestrationVersion string             `json:"orchestration_version,omitempty"`
	Status               string             `json:"status"`
	CurrentExecutionID   uint64             `json:"current_execution_id"`
	ParentInstanceID     string             `json:"parent_instance_id,omitempty"`
	Output               json.RawMessage    `json:"output,omitempty"`
	Error                string             `json:"error,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
	History              []ExecutionHistory `json:"history"`
}

func (s *Server) handleGetOrchestration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.orch.GetInstanceInfo(id)
	switch {
	case errors.Is(err, history.ErrInstanceNotFound):
		s.writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("orchestration '%s' not found", id))
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, codeInternal, "failed to read orchestration: "+err.Error())
		return
	}

	execs, err := s.orch.ListExecutions(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, codeInternal, "failed to list executions: "+err.Error())
		return
	}

	// history_limit keeps long-lived actors inspectable: "full" or absent
	// returns everything, N returns the last N executions.
	if raw := r.URL.Query().Get("history_limit"); raw != "" && raw != "full" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, codeBadRequest, "history_limit must be a non-negative number or 'full'")
			return
		}
		if n < len(execs) {
			execs = execs[len(execs)-n:]
		}
	}

	hist := make([]ExecutionHistory, 0, len(execs))
	for _, execID := range execs {
		events, err := s.orch.ReadExecutionHistory(id, execID)
		if err != nil {
			s.logger.Warn().Err(err).Str("instance_id", id).Uint64("execution_id", execID).
				Msg("Skipping unreadable execution history")
			continue
		}
		hist = append(hist, ExecutionHistory{ExecutionID: execID, Events: events})
	}

	s.writeJSON(w, http.StatusOK, OrchestrationDetail{
		InstanceID:           info.InstanceID,
		OrchestrationName:    info.Name,
		OrchestrationVersion: info.Version,
		Status:               string(info.Status),
		CurrentExecutionID:   info.CurrentExecution,
		ParentInstanceID:     info.ParentInstanceID,
		Output:               info.Output,
		Error:                info.Error,
		CreatedAt:            info.CreatedAt,
		UpdatedAt:            info.UpdatedAt,
		History:              hist,
	})
}

// RaiseEventRequest is the raise-event body. EventData defaults to an
// empty JSON object.
type RaiseEventRequest struct {
	EventName string          `json:"event_name" validate:"required"`
	EventData json.RawMessage `json:"event_data"`
}

// RaiseEventResponse confirms delivery.
type RaiseEventResponse struct {
	InstanceID string `json:"instance_id"`
	EventName  string `json:"event_name"`
	Raised     bool   `json:"raised"`
}

func (s *Server) handleRaiseEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req RaiseEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, validationMessage(err))
		return
	}
	if len(req.EventData) == 0 {
		req.EventData = json.RawMessage(`{}`)
	}

	err := s.orch.RaiseEvent(id, req.EventName, req.EventData)
	switch {
	case errors.Is(err, history.ErrInstanceNotFound):
		s.writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("orchestration '%s' not found", id))
		return
	case errors.Is(err, history.ErrInstanceTerminal):
		s.writeError(w, http.StatusConflict, codeConflict, fmt.Sprintf("orchestration '%s' already finished", id))
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, codeInternal, "failed to raise event: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, RaiseEventResponse{InstanceID: id, EventName: req.EventName, Raised: true})
}

const defaultLogLines = 200

// handleLogs serves the tail of the server log file. lines bounds the
// response, filter keeps only lines containing the substring.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, codeBadRequest, "lines must be a positive number")
			return
		}
		limit = n
	}

	if s.cfg.LogPath == "" {
		s.writeJSON(w, http.StatusOK, []string{})
		return
	}
	data, err := os.ReadFile(s.cfg.LogPath)
	if errors.Is(err, fs.ErrNotExist) {
		s.writeJSON(w, http.StatusOK, []string{})
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, codeInternal, "failed to read server log: "+err.Error())
		return
	}

	lines := []string{}
	if trimmed := strings.TrimRight(string(data), "\n"); trimmed != "" {
		lines = strings.Split(trimmed, "\n")
	}
	if filter := r.URL.Query().Get("filter"); filter != "" {
		kept := lines[:0]
		for _, line := range lines {
			if strings.Contains(line, filter) {
				kept = append(kept, line)
			}
		}
		lines = kept
	}
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	s.writeJSON(w, http.StatusOK, lines)
}
