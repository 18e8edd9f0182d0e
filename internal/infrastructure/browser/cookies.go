package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"account_orchestrator/internal/domain"
)

// cookieJSON is the EditThisCookie export format, so files can also be
// produced by hand from a desktop browser.
type cookieJSON struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expirationDate"`
	HttpOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// CookieStore keeps one cookie file per account under dir
type CookieStore struct {
	dir string
}

// NewCookieStore creates a store rooted at dir
func NewCookieStore(dir string) *CookieStore {
	return &CookieStore{dir: dir}
}

// Path returns the cookie file of accountID
func (s *CookieStore) Path(accountID string) string {
	return filepath.Join(s.dir, filepath.Base(accountID)+".json")
}

// Load reads the saved cookies of accountID. A missing file is a terminal
// failure: the account has to be logged in interactively first.
func (s *CookieStore) Load(accountID string) ([]cookieJSON, error) {
	data, err := os.ReadFile(s.Path(accountID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.TerminalFailure(fmt.Sprintf("no saved session for account %s, run with -login", accountID))
	}
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	var cookies []cookieJSON
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, domain.TerminalFailure(fmt.Sprintf("cookie file of account %s is not valid JSON: %v", accountID, err))
	}
	return cookies, nil
}

// Save writes cookies for accountID
func (s *CookieStore) Save(accountID string, cookies []*network.Cookie) error {
	out := make([]cookieJSON, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, cookieJSON{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: sameSiteName(c.SameSite),
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(s.Path(accountID), data, 0600)
}

// apply returns an action installing cookies into the browser
func apply(cookies []cookieJSON) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HttpOnly).
				WithSecure(c.Secure).
				WithSameSite(parseSameSite(c.SameSite)).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

func parseSameSite(s string) network.CookieSameSite {
	switch s {
	case "Strict", "strict":
		return network.CookieSameSiteStrict
	case "None", "none", "no_restriction":
		return network.CookieSameSiteNone
	}
	return network.CookieSameSiteLax
}

func sameSiteName(s network.CookieSameSite) string {
	switch s {
	case network.CookieSameSiteStrict:
		return "Strict"
	case network.CookieSameSiteLax:
		return "Lax"
	case network.CookieSameSiteNone:
		return "None"
	}
	return "Unspecified"
}
