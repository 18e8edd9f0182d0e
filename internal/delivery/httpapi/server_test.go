package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account_orchestrator/config"
	"account_orchestrator/internal/automation"
	"account_orchestrator/internal/domain"
	"account_orchestrator/internal/repository/memory"
	"account_orchestrator/internal/usecase"
)

type okExecutor struct{}

func (okExecutor) Execute(ctx context.Context, s *automation.Session, action domain.Action) domain.Outcome {
	if s.Username == "banned" {
		return domain.Failure(domain.TerminalFailure("account suspended"))
	}
	switch action.Kind {
	case domain.ActionCheck:
		return domain.Success(domain.CheckResult{Status: domain.AccountStatusNormal, CheckedAt: time.Now()})
	case domain.ActionEngagement:
		return domain.Success(domain.EngagementResult{TargetURL: action.TargetURL, Type: action.Engagement})
	}
	return domain.Success(domain.ShadowBanResult{Exists: true, CheckedAt: time.Now()})
}

type testServer struct {
	handler  http.Handler
	manager  *usecase.AccountManager
	accounts *memory.AccountRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	accounts := memory.NewAccountRepository()
	proxies := memory.NewProxyRepository()
	media := memory.NewMediaRepository()
	posts := memory.NewPostRepository()

	sched := automation.NewScheduler(
		automation.Options{MaxConcurrency: 2, SessionRetryInterval: time.Millisecond},
		automation.NewSessionRegistry(), okExecutor{},
		&automation.RetryPolicy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 1},
		automation.NewProgressReporter(), accounts, proxies,
	)
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)

	postScheduler := usecase.NewPostScheduler(posts, accounts, media, sched)
	manager := usecase.NewAccountManager(accounts, proxies)
	commands := usecase.NewAutomation(sched, accounts, postScheduler)

	srv := NewServer(config.Default(), manager, commands, media)
	return &testServer{handler: srv.Handler(), manager: manager, accounts: accounts}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) account(t *testing.T, username string) *domain.Account {
	t.Helper()
	a, err := ts.manager.CreateAccount(context.Background(), username, "", true)
	require.NoError(t, err)
	return a
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func ndjson(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var lines []map[string]any
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	return lines
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAccounts_CRUD(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/accounts", `{"username":"@alice","proxy":"socks5://10.0.0.1:1080"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[accountResponse](t, rec)
	assert.Equal(t, "alice", created.Username)
	assert.True(t, created.IsActive)

	rec = ts.do(t, http.MethodPost, "/api/accounts", `{"username":"bob","proxy":"ftp://nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeValidation, decode[errorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodPatch, "/api/accounts/"+created.ID, `{"is_active":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[accountResponse](t, rec).IsActive)

	rec = ts.do(t, http.MethodGet, "/api/accounts?active=true", "")
	assert.Empty(t, decode[[]accountResponse](t, rec))

	rec = ts.do(t, http.MethodPost, "/api/accounts/"+created.ID+"/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[accountResponse](t, rec).IsActive)

	rec = ts.do(t, http.MethodDelete, "/api/accounts/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/accounts/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/accounts", `{bad json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheck_StreamsEventsThenResults(t *testing.T) {
	ts := newTestServer(t)
	ts.account(t, "alice")
	ts.account(t, "banned")

	rec := ts.do(t, http.MethodPost, "/api/automation/check", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Batch-ID"))

	lines := ndjson(t, rec)
	require.NotEmpty(t, lines)

	last := lines[len(lines)-1]
	assert.Equal(t, "results", last["type"])
	results := last["results"].([]any)
	require.Len(t, results, 2)

	statuses := map[string]int{}
	for _, r := range results {
		statuses[r.(map[string]any)["status"].(string)]++
	}
	assert.Equal(t, map[string]int{"success": 1, "terminal_failure": 1}, statuses)

	var completed int
	for _, line := range lines[:len(lines)-1] {
		if line["type"] == "completed" {
			completed++
		}
	}
	assert.Equal(t, 2, completed)

	// The recorder ran before the results line was written.
	all, err := ts.accounts.GetAll(context.Background())
	require.NoError(t, err)
	for _, a := range all {
		if a.Username == "alice" {
			assert.Equal(t, domain.AccountStatusNormal, a.Status)
			assert.False(t, a.LastCheckedAt.IsZero())
		}
	}
}

func TestCheck_NoActiveAccounts(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/automation/check", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEngagement(t *testing.T) {
	ts := newTestServer(t)
	a := ts.account(t, "alice")

	rec := ts.do(t, http.MethodPost, "/api/automation/engagement", `{"target_url":"https://x.com/a/status/1","type":"like"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/automation/engagement",
		`{"account_ids":["`+a.ID+`"],"target_url":"https://x.com/a/status/1","type":"like"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lines := ndjson(t, rec)
	last := lines[len(lines)-1]
	result := last["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "success", result["status"])
	assert.Equal(t, "like", result["result"].(map[string]any)["type"])
}

func TestBatchCancelAndStats(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodDelete, "/api/automation/batches/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/automation/batches/missing", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/automation/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[automation.Stats](t, rec).Workers)
}

func TestPosts_Lifecycle(t *testing.T) {
	ts := newTestServer(t)
	a := ts.account(t, "alice")

	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	rec := ts.do(t, http.MethodPost, "/api/posts", `{"account_id":"`+a.ID+`","content":"hi","scheduled_at":"`+past+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeInvalidSchedule, decode[errorResponse](t, rec).Code)

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rec = ts.do(t, http.MethodPost, "/api/posts", `{"account_id":"`+a.ID+`","content":"hi","scheduled_at":"`+future+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	post := decode[postResponse](t, rec)
	assert.Equal(t, "pending", post.Status)

	rec = ts.do(t, http.MethodPatch, "/api/posts/"+post.ID, `{"content":"edited"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "edited", decode[postResponse](t, rec).Content)

	rec = ts.do(t, http.MethodGet, "/api/posts?status=pending&account_id="+a.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["count"])

	rec = ts.do(t, http.MethodPost, "/api/posts/"+post.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode[postResponse](t, rec).Status)

	rec = ts.do(t, http.MethodPost, "/api/posts/"+post.ID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/posts/"+post.ID, `{"content":"late"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/posts?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/posts?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/posts/"+post.ID+"/publish", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMedia(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/media", `{"file_path":"/does/not/exist.png"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := filepath.Join(t.TempDir(), "pic.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0600))
	body, err := json.Marshal(map[string]string{"file_path": path, "mime_type": "image/png"})
	require.NoError(t, err)

	rec = ts.do(t, http.MethodPost, "/api/media", string(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[map[string]any](t, rec)["id"])
}

func TestStatusFor(t *testing.T) {
	cases := map[domain.ErrorCode]int{
		domain.CodeValidation:         http.StatusBadRequest,
		domain.CodeInvalidSchedule:    http.StatusBadRequest,
		domain.CodeNotFound:           http.StatusNotFound,
		domain.CodeInvalidTransition:  http.StatusConflict,
		domain.CodeCancelled:          http.StatusConflict,
		domain.CodeTerminalFailure:    http.StatusUnprocessableEntity,
		domain.CodeSessionUnavailable: http.StatusServiceUnavailable,
		domain.CodeNetworkFailure:     http.StatusBadGateway,
		domain.CodeTimeout:            http.StatusGatewayTimeout,
		domain.CodeDatabaseError:      http.StatusInternalServerError,
		"":                            http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusFor(code), code)
	}
}
