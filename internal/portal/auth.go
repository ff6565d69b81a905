package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// AuthConfig configures the scripted browser login
type AuthConfig struct {
	LoginURL        string
	APIHost         string        // host whose requests carry the bearer we want
	LoginTimeout    time.Duration // whole browser interaction budget
	TokenWait       time.Duration // bounded wait for the bearer observation
	TokenSettleWait time.Duration // last-chance settle delay after the wait expires
}

// Authenticator drives a headless browser through the portal login and
// intercepts the bearer token the portal's own frontend uses against its
// API. The browser instance is exclusively owned for the call and torn down
// on every exit path.
type Authenticator struct {
	cfg    AuthConfig
	logger *zap.Logger
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(cfg AuthConfig, logger *zap.Logger) *Authenticator {
	if cfg.LoginTimeout == 0 {
		cfg.LoginTimeout = 90 * time.Second
	}
	if cfg.TokenWait == 0 {
		cfg.TokenWait = 15 * time.Second
	}
	if cfg.TokenSettleWait == 0 {
		cfg.TokenSettleWait = 3 * time.Second
	}
	return &Authenticator{cfg: cfg, logger: logger}
}

// Authenticate performs the login and returns an authenticated session, or
// ErrAuthentication if no bearer token was observed. No partial session is
// ever returned.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser() // closes the browser on every exit path

	runCtx, cancelRun := context.WithTimeout(browserCtx, a.cfg.LoginTimeout)
	defer cancelRun()

	tokenCh := make(chan string, 1)
	chromedp.ListenTarget(runCtx, func(ev any) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok {
			return
		}
		if !strings.Contains(req.Request.URL, a.cfg.APIHost) {
			return
		}
		header := headerValue(req.Request.Headers, "Authorization")
		if strings.Contains(header, "Bearer") {
			select {
			case tokenCh <- strings.TrimSpace(header):
			default:
			}
		}
	})

	a.logger.Info("Starting network interception login", zap.String("url", a.cfg.LoginURL))

	err := chromedp.Run(runCtx,
		network.Enable(),
		chromedp.Navigate(a.cfg.LoginURL),
		chromedp.WaitVisible(`#username`, chromedp.ByID),
		chromedp.SendKeys(`#username`, username, chromedp.ByID),
		chromedp.Click(`//button[contains(., "Próximo")]`, chromedp.BySearch),
		chromedp.WaitVisible(`input#password`, chromedp.ByQuery),
		chromedp.SendKeys(`input#password`, password, chromedp.ByQuery),
		chromedp.Click(`//button[contains(., "Entrar")]`, chromedp.BySearch),
	)
	if err != nil {
		return nil, fmt.Errorf("login script failed: %w", err)
	}

	token := a.waitForToken(runCtx, tokenCh)
	if token == "" {
		return nil, ErrAuthentication
	}

	// Some endpoints want the browser cookies alongside the bearer header.
	var cookies []*network.Cookie
	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to harvest cookies: %w", err)
	}

	jar, err := buildJar(cookies)
	if err != nil {
		return nil, fmt.Errorf("failed to build cookie jar: %w", err)
	}

	a.logger.Info("Session established", zap.Int("cookies", len(cookies)))
	return &Session{Jar: jar, Bearer: token}, nil
}

// waitForToken blocks for the bounded token wait, then gives the page one
// settle delay before giving up.
func (a *Authenticator) waitForToken(ctx context.Context, tokenCh <-chan string) string {
	select {
	case token := <-tokenCh:
		return token
	case <-ctx.Done():
		return ""
	case <-time.After(a.cfg.TokenWait):
	}

	a.logger.Warn("Bearer token not seen within wait window, settling",
		zap.Duration("settle", a.cfg.TokenSettleWait))

	select {
	case token := <-tokenCh:
		return token
	case <-ctx.Done():
		return ""
	case <-time.After(a.cfg.TokenSettleWait):
		return ""
	}
}

// headerValue looks a header up case-insensitively in a CDP header map
func headerValue(headers network.Headers, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// buildJar converts browser cookies into an http.CookieJar usable by the
// API client.
func buildJar(cookies []*network.Cookie) (http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	byDomain := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		domain := strings.TrimPrefix(c.Domain, ".")
		byDomain[domain] = append(byDomain[domain], &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	for domain, cs := range byDomain {
		u, err := url.Parse("https://" + domain + "/")
		if err != nil {
			continue
		}
		jar.SetCookies(u, cs)
	}
	return jar, nil
}
