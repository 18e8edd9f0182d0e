package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"account_orchestrator/config"
	"account_orchestrator/internal/domain"
	"account_orchestrator/internal/logger"
	"account_orchestrator/internal/usecase"
)

// Server exposes a lightweight REST API for accounts, automation batches and scheduled posts.
type Server struct {
	cfg            *config.Config
	accountManager *usecase.AccountManager
	automation     *usecase.Automation
	mediaRepo      domain.MediaRepository
	handler        http.Handler
	server         *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, accountManager *usecase.AccountManager, automation *usecase.Automation, mediaRepo domain.MediaRepository) *Server {
	mux := http.NewServeMux()
	s := &Server{
		cfg:            cfg,
		accountManager: accountManager,
		automation:     automation,
		mediaRepo:      mediaRepo,
	}

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/accounts", s.handleAccounts)
	mux.HandleFunc("/api/accounts/", s.handleAccountActions)
	mux.HandleFunc("/api/automation/check", s.handleCheck)
	mux.HandleFunc("/api/automation/shadowban", s.handleShadowBan)
	mux.HandleFunc("/api/automation/engagement", s.handleEngagement)
	mux.HandleFunc("/api/automation/batches/", s.handleBatch)
	mux.HandleFunc("/api/automation/stats", s.handleStats)
	mux.HandleFunc("/api/media", s.handleMedia)
	mux.HandleFunc("/api/posts", s.handlePosts)
	mux.HandleFunc("/api/posts/", s.handlePostActions)

	s.handler = loggingMiddleware(mux)
	s.server = &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: s.handler,
	}
	return s
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests in a separate goroutine.
func (s *Server) Start() error {
	if s.cfg.ServerPort == "" {
		return fmt.Errorf("server port is not configured")
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Printf("http api server stopped with error: %v", err)
		}
	}()
	logger.Info().Printf("HTTP API server listening on %s", s.server.Addr)
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listAccounts(w, r)
	case http.MethodPost:
		s.createAccount(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAccountActions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	if path == "" {
		http.NotFound(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getAccount(w, r, id)
		case http.MethodPatch:
			s.updateAccount(w, r, id)
		case http.MethodDelete:
			s.deleteAccount(w, r, id)
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost {
		switch parts[1] {
		case "activate", "deactivate":
			account, err := s.accountManager.SetActive(r.Context(), id, parts[1] == "activate")
			if err != nil {
				respondDomainError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, toAccountResponse(account))
			return
		}
	}

	http.NotFound(w, r)
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	accounts, err := s.accountManager.ListAccounts(r.Context(), activeOnly)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	resp := make([]*accountResponse, 0, len(accounts))
	for _, account := range accounts {
		resp = append(resp, toAccountResponse(account))
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request, id string) {
	account, err := s.accountManager.GetAccount(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toAccountResponse(account))
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Proxy    string `json:"proxy"`
		IsActive *bool  `json:"is_active"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}

	active := true
	if payload.IsActive != nil {
		active = *payload.IsActive
	}

	account, err := s.accountManager.CreateAccount(r.Context(), payload.Username, payload.Proxy, active)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request, id string) {
	var payload struct {
		Username *string `json:"username"`
		Proxy    *string `json:"proxy"`
		IsActive *bool   `json:"is_active"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}

	updated, err := s.accountManager.UpdateAccount(r.Context(), id, usecase.AccountUpdate{
		Username: payload.Username,
		Proxy:    payload.Proxy,
		IsActive: payload.IsActive,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toAccountResponse(updated))
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.accountManager.DeleteAccount(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var payload struct {
		AccountID string `json:"account_id"`
		FilePath  string `json:"file_path"`
		MimeType  string `json:"mime_type"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	if payload.FilePath == "" {
		respondDomainError(w, domain.Validation("file_path is required"))
		return
	}
	if info, err := os.Stat(payload.FilePath); err != nil || info.IsDir() {
		respondDomainError(w, domain.Validation(fmt.Sprintf("file_path %s is not a readable file", payload.FilePath)))
		return
	}

	media := &domain.Media{
		ID:        uuid.New().String(),
		AccountID: payload.AccountID,
		FilePath:  payload.FilePath,
		MimeType:  payload.MimeType,
		CreatedAt: time.Now(),
	}
	if err := s.mediaRepo.Save(r.Context(), media); err != nil {
		respondDomainError(w, domain.DatabaseError("save media", err))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":         media.ID,
		"account_id": media.AccountID,
		"file_path":  media.FilePath,
		"mime_type":  media.MimeType,
		"created_at": media.CreatedAt,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeValidation, domain.CodeInvalidSchedule:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidTransition, domain.CodeCancelled:
		return http.StatusConflict
	case domain.CodeTerminalFailure:
		return http.StatusUnprocessableEntity
	case domain.CodeSessionUnavailable:
		return http.StatusServiceUnavailable
	case domain.CodeNetworkFailure:
		return http.StatusBadGateway
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeDatabaseError:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func respondDomainError(w http.ResponseWriter, err error) {
	derr := domain.AsError(err)
	if derr == nil {
		logger.Error().Printf("unclassified error: %v", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := statusFor(derr.Code)
	if status >= http.StatusInternalServerError {
		logger.Error().Printf("%v", err)
	}
	respondJSON(w, status, errorResponse{Error: derr.Reason, Code: derr.Code, Retryable: derr.Retryable})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info().Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
