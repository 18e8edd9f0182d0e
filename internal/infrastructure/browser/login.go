package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// LoginAndSaveCookies opens a visible browser through proxy so the operator
// can log accountID in by hand. Once the home timeline is reached the cookies
// are written to the account's cookie file.
func (d *Driver) LoginAndSaveCookies(ctx context.Context, accountID, proxy string, wait time.Duration) error {
	if wait <= 0 {
		wait = 5 * time.Minute
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, d.allocatorOptions(false, proxy)...)
	defer cancel()

	ctx, cancel = chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, wait)
	defer cancel()

	d.log.Infof("login mode: log in to account %s in the opened window, waiting up to %s", accountID, wait)

	if err := chromedp.Run(ctx, chromedp.Navigate(d.opts.BaseURL+"/i/flow/login")); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}

	home := d.opts.BaseURL + "/home"
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					var location string
					if err := chromedp.Location(&location).Do(ctx); err != nil {
						continue
					}
					if strings.HasPrefix(location, home) {
						return nil
					}
				}
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("login timeout or error: %w", err)
	}

	var cookies []*network.Cookie
	if err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	})); err != nil {
		return fmt.Errorf("failed to get cookies: %w", err)
	}

	if err := d.cookies.Save(accountID, cookies); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}
	d.log.Infof("saved %d cookies to %s", len(cookies), d.cookies.Path(accountID))
	return nil
}
