package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// Renderer loads a page in a browser and returns the rendered HTML.
type Renderer interface {
	Render(ctx context.Context, rawURL string, opts FetchOptions) (string, error)
}

// ChromeRenderer renders pages with a headless Chrome via chromedp.
type ChromeRenderer struct{}

func (ChromeRenderer) Render(ctx context.Context, rawURL string, opts FetchOptions) (string, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.UserAgent(opts.UserAgent))
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	chromeCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if opts.Timeout > 0 {
		chromeCtx, cancel = context.WithTimeout(chromeCtx, opts.Timeout)
		defer cancel()
	}

	var tasks []chromedp.Action
	if len(opts.Cookies) > 0 {
		tasks = append(tasks, network.Enable(), setCookies(rawURL, opts.Cookies))
	}
	tasks = append(tasks, chromedp.Navigate(rawURL))

	if opts.SkipBanners {
		tasks = append(tasks, dismissCookieBanners(opts.BannerTimeout))
	}

	if opts.WaitForSelector != "" {
		tasks = append(tasks, chromedp.WaitVisible(opts.WaitForSelector))
	} else {
		tasks = append(tasks, chromedp.WaitReady("body"))
	}

	var html string
	tasks = append(tasks, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(chromeCtx, tasks...); err != nil {
		return "", fmt.Errorf("failed to run Chrome tasks: %w", err)
	}
	return html, nil
}

func setCookies(rawURL string, cookies []*http.Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		host := ""
		if u, err := url.Parse(rawURL); err == nil {
			host = u.Hostname()
		}
		for _, c := range cookies {
			domain := c.Domain
			if domain == "" {
				domain = host
			}
			path := c.Path
			if path == "" {
				path = "/"
			}
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(domain).
				WithPath(path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HttpOnly).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

// bannerScript clicks the first visible consent button it recognises.
const bannerScript = `(() => {
  const selectors = [
    '#onetrust-accept-btn-handler',
    '#accept-cookies',
    '.cookie-accept',
    '.accept-cookies',
    '[data-testid="cookie-accept"]',
    'button[aria-label*="Accept"]',
    'button[id*="accept"]',
    '.cc-allow',
    '.cc-dismiss',
    '#didomi-notice-agree-button',
    '.fc-cta-consent'
  ];
  for (const sel of selectors) {
    const el = document.querySelector(sel);
    if (el && el.offsetParent !== null) { el.click(); return true; }
  }
  return false;
})()`

func dismissCookieBanners(timeout time.Duration) chromedp.Action {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		// Banners are injected after load on most sites.
		deadline := time.Now().Add(timeout)
		for time.Now().Before(deadline) {
			var clicked bool
			if err := chromedp.Evaluate(bannerScript, &clicked).Do(ctx); err != nil {
				log.Debug().Err(err).Msg("banner dismissal script failed")
				return nil
			}
			if clicked {
				log.Debug().Msg("dismissed cookie banner")
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}
		return nil
	})
}
