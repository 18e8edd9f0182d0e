package browser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"account_orchestrator/internal/automation"
	"account_orchestrator/internal/domain"
	"account_orchestrator/internal/logger"
)

// Page selectors. The platform tags actionable controls with data-testid.
const (
	selLike          = `[data-testid="like"]`
	selUnlike        = `[data-testid="unlike"]`
	selRetweet       = `[data-testid="retweet"]`
	selUnretweet     = `[data-testid="unretweet"]`
	selRetweetOK     = `[data-testid="retweetConfirm"]`
	selFollow        = `[data-testid$="-follow"]`
	selUnfollow      = `[data-testid$="-unfollow"]`
	selComposer      = `[data-testid="tweetTextarea_0"]`
	selFileInput     = `input[data-testid="fileInput"]`
	selPostButton    = `[data-testid="tweetButton"]`
	selLatestStatus  = `article a[href*="/status/"]`
	selPrimaryColumn = `[data-testid="primaryColumn"]`
)

// Options configures the browser driver
type Options struct {
	Headless   bool
	UserAgent  string
	BaseURL    string
	CookiesDir string

	// Settle is the pause after navigation and clicks; zero uses 2s.
	Settle time.Duration
}

// Driver drives one headless Chrome per session through chromedp. It implements
// the status, engagement and publish driver ports of the automation executor.
type Driver struct {
	opts    Options
	cookies *CookieStore
	log     logger.Component
}

// NewDriver creates a driver
func NewDriver(opts Options) *Driver {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://x.com"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}
	return &Driver{
		opts:    opts,
		cookies: NewCookieStore(opts.CookiesDir),
		log:     logger.For("browser"),
	}
}

// Cookies returns the per-account cookie store
func (d *Driver) Cookies() *CookieStore {
	return d.cookies
}

func (d *Driver) allocatorOptions(headless bool, proxy string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(d.opts.UserAgent),
	)
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}
	return opts
}

// session opens a browser bound to the session's proxy with the account's cookies installed.
func (d *Driver) session(ctx context.Context, s *automation.Session) (context.Context, context.CancelFunc, error) {
	cookies, err := d.cookies.Load(s.AccountID)
	if err != nil {
		return nil, nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, d.allocatorOptions(d.opts.Headless, s.Proxy)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelTab()
		cancelAlloc()
	}

	if err := chromedp.Run(tabCtx, apply(cookies)); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("install cookies: %w", err)
	}
	return tabCtx, cancel, nil
}

// CheckStatus opens the home timeline and classifies where it lands.
func (d *Driver) CheckStatus(ctx context.Context, s *automation.Session) (domain.CheckResult, error) {
	tab, cancel, err := d.session(ctx, s)
	if err != nil {
		return domain.CheckResult{}, err
	}
	defer cancel()

	var location, text string
	err = chromedp.Run(tab,
		chromedp.Navigate(d.opts.BaseURL+"/home"),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(d.opts.Settle),
		chromedp.Location(&location),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
	)
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("load home: %w", err)
	}

	status, err := classifyStatus(location, text)
	if err != nil {
		return domain.CheckResult{}, err
	}

	// Suspension shows on the profile page rather than the timeline.
	if status == domain.AccountStatusNormal && s.Username != "" {
		err = chromedp.Run(tab,
			chromedp.Navigate(d.opts.BaseURL+"/"+s.Username),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(d.opts.Settle),
			chromedp.Location(&location),
			chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
		)
		if err != nil {
			return domain.CheckResult{}, fmt.Errorf("load profile: %w", err)
		}
		if status, err = classifyStatus(location, text); err != nil {
			return domain.CheckResult{}, err
		}
	}

	d.log.Infof("@%s status %s", s.Username, status)
	return domain.CheckResult{Status: status, CheckedAt: time.Now()}, nil
}

// Engage likes, retweets or follows. An action already in place is reported,
// not repeated.
func (d *Driver) Engage(ctx context.Context, s *automation.Session, targetURL string, kind domain.EngagementType) (domain.EngagementResult, error) {
	result := domain.EngagementResult{TargetURL: targetURL, Type: kind}

	var do, done, confirm string
	switch kind {
	case domain.EngagementLike:
		do, done = selLike, selUnlike
	case domain.EngagementRetweet:
		do, done, confirm = selRetweet, selUnretweet, selRetweetOK
	case domain.EngagementFollow:
		do, done = selFollow, selUnfollow
	default:
		return result, domain.TerminalFailure(fmt.Sprintf("unsupported engagement %q", kind))
	}

	tab, cancel, err := d.session(ctx, s)
	if err != nil {
		return result, err
	}
	defer cancel()

	var location string
	err = chromedp.Run(tab,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady(selPrimaryColumn, chromedp.ByQuery),
		chromedp.Sleep(d.opts.Settle),
		chromedp.Location(&location),
	)
	if err != nil {
		return result, fmt.Errorf("open target: %w", err)
	}
	if _, err := classifyStatus(location, ""); err != nil {
		return result, err
	}

	already, err := present(tab, done)
	if err != nil {
		return result, err
	}
	if already {
		result.AlreadyDone = true
		return result, nil
	}

	actions := []chromedp.Action{
		chromedp.WaitVisible(do, chromedp.ByQuery),
		chromedp.Click(do, chromedp.ByQuery),
	}
	if confirm != "" {
		actions = append(actions,
			chromedp.WaitVisible(confirm, chromedp.ByQuery),
			chromedp.Click(confirm, chromedp.ByQuery),
		)
	}
	actions = append(actions, chromedp.WaitVisible(done, chromedp.ByQuery))
	if err := chromedp.Run(tab, actions...); err != nil {
		return result, fmt.Errorf("%s %s: %w", kind, targetURL, err)
	}

	d.log.Infof("@%s %s %s", s.Username, kind, targetURL)
	return result, nil
}

// Publish posts content with optional media and returns the new post's id.
func (d *Driver) Publish(ctx context.Context, s *automation.Session, content string, mediaPaths []string) (domain.PostResult, error) {
	var result domain.PostResult

	files := make([]string, 0, len(mediaPaths))
	for _, p := range mediaPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return result, domain.TerminalFailure(fmt.Sprintf("media path %s: %v", p, err))
		}
		files = append(files, abs)
	}

	tab, cancel, err := d.session(ctx, s)
	if err != nil {
		return result, err
	}
	defer cancel()

	actions := []chromedp.Action{
		chromedp.Navigate(d.opts.BaseURL + "/compose/post"),
		chromedp.WaitVisible(selComposer, chromedp.ByQuery),
	}
	if content != "" {
		actions = append(actions, chromedp.SendKeys(selComposer, content, chromedp.ByQuery))
	}
	if len(files) > 0 {
		actions = append(actions,
			chromedp.SetUploadFiles(selFileInput, files, chromedp.ByQuery),
			// Uploads finish before the button enables.
			chromedp.WaitEnabled(selPostButton, chromedp.ByQuery),
		)
	}
	actions = append(actions,
		chromedp.Click(selPostButton, chromedp.ByQuery),
		chromedp.Sleep(d.opts.Settle),
	)
	if err := chromedp.Run(tab, actions...); err != nil {
		return result, fmt.Errorf("compose post: %w", err)
	}

	var href string
	err = chromedp.Run(tab,
		chromedp.Navigate(d.opts.BaseURL+"/"+s.Username),
		chromedp.WaitVisible(selLatestStatus, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(`(document.querySelector(%q) || {}).href || ""`, selLatestStatus), &href),
	)
	if err != nil {
		return result, fmt.Errorf("locate published post: %w", err)
	}

	result.RemoteURL = href
	result.RemoteID = statusIDFromURL(href)
	d.log.Infof("@%s published %s", s.Username, result.RemoteID)
	return result, nil
}

func present(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(`!!document.querySelector(%q)`, selector), &ok))
	return ok, err
}
