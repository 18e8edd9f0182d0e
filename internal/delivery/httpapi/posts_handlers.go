package httpapi

import (
	"net/http"
	"strings"
	"time"

	"account_orchestrator/internal/domain"
	"account_orchestrator/internal/usecase"
)

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listPosts(w, r)
	case http.MethodPost:
		s.createPost(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handlePostActions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/posts/")
	if path == "" {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodPatch:
		s.updatePost(w, r, id)
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		post, err := s.automation.CancelScheduledPost(r.Context(), id)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, toPostResponse(post))
	case len(parts) == 1, len(parts) == 2 && parts[1] == "cancel":
		methodNotAllowed(w)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.PostFilter{
		AccountID: q.Get("account_id"),
		Status:    domain.PostStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		respondDomainError(w, domain.Validation("unknown status "+string(filter.Status)))
		return
	}
	for key, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				respondDomainError(w, domain.Validation(key+" must be RFC3339"))
				return
			}
			*dst = t
		}
	}

	posts, err := s.automation.ListScheduledPosts(r.Context(), filter)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	resp := make([]*postResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toPostResponse(p))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"posts": resp,
		"count": len(resp),
	})
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AccountID   string    `json:"account_id"`
		Content     string    `json:"content"`
		MediaIDs    []string  `json:"media_ids"`
		ScheduledAt time.Time `json:"scheduled_at"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}

	post, err := s.automation.CreateScheduledPost(r.Context(), payload.AccountID, payload.Content, payload.MediaIDs, payload.ScheduledAt)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPostResponse(post))
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request, id string) {
	var payload struct {
		Content     *string    `json:"content"`
		MediaIDs    *[]string  `json:"media_ids"`
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}

	post, err := s.automation.UpdateScheduledPost(r.Context(), id, usecase.PostUpdate{
		Content:     payload.Content,
		MediaIDs:    payload.MediaIDs,
		ScheduledAt: payload.ScheduledAt,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toPostResponse(post))
}
