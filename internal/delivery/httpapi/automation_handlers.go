package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"account_orchestrator/internal/automation"
	"account_orchestrator/internal/domain"
	"account_orchestrator/internal/logger"
	"account_orchestrator/internal/usecase"
)

type batchRequest struct {
	AccountIDs []string `json:"account_ids"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var payload batchRequest
	if !decodeOptionalBody(w, r, &payload) {
		return
	}
	run, err := s.automation.CheckAccounts(r.Context(), payload.AccountIDs)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	streamRun(w, r, run)
}

func (s *Server) handleShadowBan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var payload batchRequest
	if !decodeOptionalBody(w, r, &payload) {
		return
	}
	run, err := s.automation.CheckShadowBan(r.Context(), payload.AccountIDs)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	streamRun(w, r, run)
}

func (s *Server) handleEngagement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var payload struct {
		AccountIDs []string `json:"account_ids"`
		TargetURL  string   `json:"target_url"`
		Type       string   `json:"type"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	run, err := s.automation.RunEngagement(r.Context(), payload.AccountIDs, payload.TargetURL, domain.EngagementType(payload.Type))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	streamRun(w, r, run)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/automation/batches/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.automation.CancelBatch(id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "batch_id": id})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	respondJSON(w, http.StatusOK, s.automation.Stats())
}

// streamRun writes one NDJSON line per progress event and finishes with the
// per-account results. A client that goes away only detaches; the batch
// keeps running and its outcomes are still recorded.
func streamRun(w http.ResponseWriter, r *http.Request, run *usecase.Run) {
	defer run.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Batch-ID", run.Batch.ID())
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	write := func(v any) bool {
		if err := enc.Encode(v); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	for {
		select {
		case <-r.Context().Done():
			logger.Info().Printf("client left batch %s stream early", run.Batch.ID())
			return
		case e, ok := <-run.Events:
			if !ok {
				results, err := run.Wait(r.Context())
				if err != nil {
					return
				}
				write(toResultsLine(run.Batch, results))
				return
			}
			if !write(toEventResponse(e)) {
				return
			}
		}
	}
}

// decodeOptionalBody accepts an empty body as the zero payload.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return decodeBody(w, r, dst)
}

type eventResponse struct {
	BatchID        string           `json:"batch_id"`
	Type           string           `json:"type"`
	Step           string           `json:"step,omitempty"`
	CurrentAccount string           `json:"current_account,omitempty"`
	Completed      int              `json:"completed"`
	Total          int              `json:"total"`
	Outcome        *outcomeResponse `json:"outcome,omitempty"`
}

func toEventResponse(e automation.Event) eventResponse {
	resp := eventResponse{
		BatchID:        e.BatchID,
		Type:           string(e.Type),
		Step:           e.Step,
		CurrentAccount: e.CurrentAccount,
		Completed:      e.Completed,
		Total:          e.Total,
	}
	if e.Outcome != nil {
		o := toOutcomeResponse(*e.Outcome)
		resp.Outcome = &o
	}
	return resp
}

type resultsLine struct {
	BatchID   string            `json:"batch_id"`
	Type      string            `json:"type"`
	Cancelled bool              `json:"cancelled"`
	Results   []outcomeResponse `json:"results"`
}

func toResultsLine(batch *automation.Batch, outcomes []domain.Outcome) resultsLine {
	line := resultsLine{
		BatchID:   batch.ID(),
		Type:      "results",
		Cancelled: batch.Cancelled(),
		Results:   make([]outcomeResponse, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		line.Results = append(line.Results, toOutcomeResponse(o))
	}
	return line
}

type outcomeResponse struct {
	AccountID  string         `json:"account_id"`
	Kind       string         `json:"kind"`
	Status     string         `json:"status"`
	Result     any            `json:"result,omitempty"`
	Error      *errorResponse `json:"error,omitempty"`
	Attempts   int            `json:"attempts"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

func toOutcomeResponse(o domain.Outcome) outcomeResponse {
	resp := outcomeResponse{
		AccountID:  o.AccountID,
		Kind:       string(o.Kind),
		Status:     string(o.Status),
		Attempts:   o.Attempts,
		StartedAt:  timePtr(o.StartedAt),
		FinishedAt: timePtr(o.FinishedAt),
	}
	if o.Err != nil {
		resp.Error = &errorResponse{Error: o.Err.Reason, Code: o.Err.Code, Retryable: o.Err.Retryable}
	}

	switch p := o.Payload.(type) {
	case domain.CheckResult:
		resp.Result = map[string]any{"status": p.Status, "checked_at": p.CheckedAt}
	case domain.ShadowBanResult:
		resp.Result = map[string]any{
			"exists":                p.Exists,
			"protected":             p.Protected,
			"search_ban":            p.SearchBan,
			"search_suggestion_ban": p.SearchSuggestionBan,
			"ghost_ban":             p.GhostBan,
			"reply_deboost":         p.ReplyDeboost,
			"banned":                p.Banned(),
			"checked_at":            p.CheckedAt,
		}
	case domain.EngagementResult:
		resp.Result = map[string]any{"target_url": p.TargetURL, "type": p.Type, "already_done": p.AlreadyDone}
	case domain.PostResult:
		resp.Result = map[string]any{"post_id": p.PostID, "remote_id": p.RemoteID, "remote_url": p.RemoteURL}
	}
	return resp
}
