package browser

import (
	"context"
	"os"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account_orchestrator/internal/automation"
	"account_orchestrator/internal/domain"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name     string
		location string
		text     string
		status   domain.AccountStatus
		terminal bool
	}{
		{"home", "https://x.com/home", "What is happening?!", domain.AccountStatusNormal, false},
		{"locked", "https://x.com/account/access?flow=locked", "", domain.AccountStatusLocked, false},
		{"suspended", "https://x.com/alice", "Account suspended\nX suspends accounts...", domain.AccountStatusSuspended, false},
		{"login redirect", "https://x.com/i/flow/login?redirect_after_login=%2Fhome", "", domain.AccountStatusUnknown, true},
		{"legacy login", "https://x.com/login", "", domain.AccountStatusUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := classifyStatus(tt.location, tt.text)
			assert.Equal(t, tt.status, status)
			if tt.terminal {
				assert.ErrorIs(t, err, domain.ErrTerminalFailure)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatusIDFromURL(t *testing.T) {
	assert.Equal(t, "1790012345", statusIDFromURL("https://x.com/alice/status/1790012345"))
	assert.Equal(t, "42", statusIDFromURL("https://x.com/alice/status/42/photo/1"))
	assert.Equal(t, "", statusIDFromURL("https://x.com/alice"))
	assert.Equal(t, "", statusIDFromURL("https://x.com/alice/status/abc"))
}

func TestCookieStore_RoundTrip(t *testing.T) {
	store := NewCookieStore(t.TempDir())

	_, err := store.Load("a1")
	assert.ErrorIs(t, err, domain.ErrTerminalFailure)

	require.NoError(t, store.Save("a1", []*network.Cookie{
		{Name: "auth_token", Value: "secret", Domain: ".x.com", Path: "/", HTTPOnly: true, Secure: true, SameSite: network.CookieSameSiteNone},
	}))

	info, err := os.Stat(store.Path("a1"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cookies, err := store.Load("a1")
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "auth_token", cookies[0].Name)
	assert.Equal(t, "None", cookies[0].SameSite)
	assert.Equal(t, network.CookieSameSiteNone, parseSameSite(cookies[0].SameSite))

	require.NoError(t, os.WriteFile(store.Path("broken"), []byte("not json"), 0600))
	_, err = store.Load("broken")
	assert.ErrorIs(t, err, domain.ErrTerminalFailure)
}

func TestCookieStore_PathStaysInDir(t *testing.T) {
	store := NewCookieStore("/var/cookies")
	assert.Equal(t, "/var/cookies/evil.json", store.Path("../../evil"))
}

func TestDriver_WithoutCookiesFailsTerminally(t *testing.T) {
	d := NewDriver(Options{CookiesDir: t.TempDir(), Headless: true})
	session := &automation.Session{AccountID: "nobody", Username: "nobody"}

	_, err := d.CheckStatus(context.Background(), session)
	assert.ErrorIs(t, err, domain.ErrTerminalFailure)

	_, err = d.Engage(context.Background(), session, "https://x.com/a/status/1", "poke")
	assert.ErrorIs(t, err, domain.ErrTerminalFailure)

	_, err = d.Publish(context.Background(), session, "hello", nil)
	assert.ErrorIs(t, err, domain.ErrTerminalFailure)
}
