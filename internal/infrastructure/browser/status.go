package browser

import (
	"net/url"
	"strings"

	"account_orchestrator/internal/domain"
)

// Markers the platform shows for restricted accounts.
var suspendedMarkers = []string{
	"account suspended",
	"this account has been suspended",
	"your account is suspended",
}

// classifyStatus derives the account status from where the home page landed
// and what it shows. A login redirect means the saved session is gone.
func classifyStatus(location, bodyText string) (domain.AccountStatus, error) {
	path := location
	if u, err := url.Parse(location); err == nil {
		path = u.Path
	}

	switch {
	case strings.HasPrefix(path, "/login"), strings.HasPrefix(path, "/i/flow/login"), strings.HasPrefix(path, "/i/flow/signup"):
		return domain.AccountStatusUnknown, domain.TerminalFailure("session expired or credentials invalid, log in again")
	case strings.HasPrefix(path, "/account/access"):
		return domain.AccountStatusLocked, nil
	}

	text := strings.ToLower(bodyText)
	for _, marker := range suspendedMarkers {
		if strings.Contains(text, marker) {
			return domain.AccountStatusSuspended, nil
		}
	}
	return domain.AccountStatusNormal, nil
}

// statusIDFromURL extracts the numeric post id from .../status/<id>
func statusIDFromURL(href string) string {
	idx := strings.Index(href, "/status/")
	if idx < 0 {
		return ""
	}
	id := href[idx+len("/status/"):]
	if end := strings.IndexAny(id, "/?#"); end >= 0 {
		id = id[:end]
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return id
}
