package shadowban

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"account_orchestrator/internal/automation"
	"account_orchestrator/internal/domain"
	"account_orchestrator/internal/infrastructure/httpclient"
	"account_orchestrator/internal/logger"
)

// maxBody bounds how much of a probe response is read.
const maxBody = 1 << 20

// response is the probe API payload. Each surface is reported separately.
type response struct {
	Profile struct {
		Exists    bool `json:"exists"`
		Protected bool `json:"protected"`
		Suspended bool `json:"suspended"`
	} `json:"profile"`
	Tests struct {
		Search    *bool `json:"search"`
		Typeahead *bool `json:"typeahead"`
		Ghost     struct {
			Ban bool `json:"ban"`
		} `json:"ghost"`
		MoreReplies struct {
			Ban bool `json:"ban"`
		} `json:"more_replies"`
	} `json:"tests"`
}

// Prober checks an account's search and listing visibility through a public probe API.
// Requests leave through the session's proxy.
type Prober struct {
	baseURL string
	clients *httpclient.HTTPClient
	log     logger.Component
}

// NewProber creates a prober against baseURL
func NewProber(baseURL string, clients *httpclient.HTTPClient) *Prober {
	return &Prober{
		baseURL: strings.TrimRight(baseURL, "/"),
		clients: clients,
		log:     logger.For("shadowban"),
	}
}

// ProbeShadowBan implements automation.ShadowBanProber
func (p *Prober) ProbeShadowBan(ctx context.Context, s *automation.Session) (domain.ShadowBanResult, error) {
	var result domain.ShadowBanResult

	client, err := p.clients.ForProxy(s.Proxy)
	if err != nil {
		return result, domain.TerminalFailure(err.Error())
	}

	endpoint := p.baseURL + "/" + url.PathEscape(s.Username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return result, domain.TerminalFailure(fmt.Sprintf("build probe request: %v", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		result.CheckedAt = time.Now()
		return result, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return result, domain.NetworkFailure(fmt.Sprintf("probe api returned %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return result, domain.TerminalFailure(fmt.Sprintf("probe api returned %d", resp.StatusCode))
	}

	var body response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body); err != nil {
		return result, domain.NetworkFailure("decode probe response", err)
	}
	if body.Profile.Suspended {
		return result, domain.TerminalFailure(fmt.Sprintf("@%s is suspended", s.Username))
	}

	result = domain.ShadowBanResult{
		Exists:       body.Profile.Exists,
		Protected:    body.Profile.Protected,
		GhostBan:     body.Tests.Ghost.Ban,
		ReplyDeboost: body.Tests.MoreReplies.Ban,
		CheckedAt:    time.Now(),
	}
	// The API reports whether the account is found, so a ban is the negation.
	if body.Tests.Search != nil {
		result.SearchBan = !*body.Tests.Search
	}
	if body.Tests.Typeahead != nil {
		result.SearchSuggestionBan = !*body.Tests.Typeahead
	}

	if result.Banned() {
		p.log.Infof("@%s restricted: search=%t suggestion=%t ghost=%t reply=%t", s.Username,
			result.SearchBan, result.SearchSuggestionBan, result.GhostBan, result.ReplyDeboost)
	}
	return result, nil
}
