package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/kwatanabe/amazon-order-scraper/internal/config"
)

var (
	// ErrAuthentication means the credentials were rejected or the
	// sign-in flow reached a page the state machine does not know.
	// It aborts the whole harvest.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNoCredentials means the sign-in interstitial appeared but no
	// credentials were configured.
	ErrNoCredentials = errors.New("no credentials configured")
)

// PromptFunc obtains the solved text for a CAPTCHA challenge. The
// challenge image has been written to imagePath before the call; the
// function blocks until the operator answers.
type PromptFunc func(imagePath string) (string, error)

// Page is one fetched, authenticated page. Body is kept alongside the
// parsed document because the parsers are pure functions over HTML.
type Page struct {
	Doc      *goquery.Document
	Body     []byte
	Status   int
	FinalURL string
}

// Client owns the cookie-carrying HTTP client and the sign-in state
// machine on top of it. All order-history fetches go through it so the
// session cookies stay coherent.
type Client struct {
	http    *resty.Client
	baseURL *url.URL
	cfg     config.SessionConfig
	prompt  PromptFunc
	logger  *slog.Logger

	// onChallenge is invoked once per CAPTCHA challenge so callers can
	// escalate courtesy delays and count challenges.
	onChallenge func()
}

func New(site config.SiteConfig, cfg config.SessionConfig, prompt PromptFunc) (*Client, error) {
	baseURL, err := url.Parse(site.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := resty.New()
	client.SetBaseURL(site.BaseURL)
	client.SetCookieJar(jar)
	client.SetHeader("User-Agent", site.UserAgent)
	client.SetHeader("Accept-Language", "ja-JP,ja;q=0.9,en;q=0.5")
	client.SetTimeout(site.Timeout)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseURL.Hostname()))

	c := &Client{
		http:    client,
		baseURL: baseURL,
		cfg:     cfg,
		prompt:  prompt,
		logger:  slog.Default().With("component", "session"),
	}

	if err := c.loadCookies(); err != nil {
		c.logger.Warn("could not restore cookies, starting fresh", "path", cfg.CookiePath, "error", err)
	}

	return c, nil
}

// SetChallengeHook registers a callback fired on every CAPTCHA
// challenge.
func (c *Client) SetChallengeHook(fn func()) {
	c.onChallenge = fn
}

// GetPage fetches rawURL and guarantees the returned page is the real
// content, not a sign-in interstitial. When the interstitial shows up
// the sign-in state machine runs and the fetch is repeated once.
func (c *Client) GetPage(ctx context.Context, rawURL string) (*Page, error) {
	page, err := c.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if !isSignInPage(page.Doc) {
		return page, nil
	}

	c.logger.Info("sign-in interstitial detected", "url", rawURL)
	if err := c.authenticate(ctx, page.Doc); err != nil {
		return nil, err
	}

	page, err = c.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if isSignInPage(page.Doc) {
		return nil, fmt.Errorf("%w: still on sign-in page after login", ErrAuthentication)
	}
	return page, nil
}

// Download fetches rawURL without interstitial handling and returns the
// raw body and status. Used for images.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, int, error) {
	res, err := c.http.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, 0, err
	}
	return res.Body(), res.StatusCode(), nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) (*Page, error) {
	res, err := c.http.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", rawURL, err)
	}

	finalURL := rawURL
	if raw := res.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL.String()
	}

	return &Page{Doc: doc, Body: res.Body(), Status: res.StatusCode(), FinalURL: finalURL}, nil
}

// HTTPClient exposes the underlying transport client so tests can
// intercept it.
func (c *Client) HTTPClient() *http.Client {
	return c.http.GetClient()
}

// isSignInPage recognizes the sign-in interstitial by its title.
func isSignInPage(doc *goquery.Document) bool {
	title := doc.Find("title").First().Text()
	for _, marker := range []string{"サインイン", "Sign-In", "Sign In"} {
		if title != "" && containsFold(title, marker) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// persistedCookie is the on-disk form of one session cookie. The jar
// API only exposes name/value pairs for the base URL; scope and a long
// expiry are reapplied on restore.
type persistedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (c *Client) loadCookies() error {
	if c.cfg.CookiePath == "" {
		return nil
	}
	data, err := os.ReadFile(c.cfg.CookiePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cookies, err := decodeCookies(data)
	if err != nil {
		return err
	}
	c.http.GetClient().Jar.SetCookies(c.baseURL, cookies)
	c.logger.Info("restored session cookies", "count", len(cookies), "path", c.cfg.CookiePath)
	return nil
}

// saveCookies persists the jar right after a successful login, not on
// every request.
func (c *Client) saveCookies() {
	if c.cfg.CookiePath == "" {
		return
	}
	cookies := c.http.GetClient().Jar.Cookies(c.baseURL)
	data, err := encodeCookies(cookies)
	if err != nil {
		c.logger.Warn("failed to encode cookies", "error", err)
		return
	}
	if err := os.WriteFile(c.cfg.CookiePath, data, 0o600); err != nil {
		c.logger.Warn("failed to persist cookies", "path", c.cfg.CookiePath, "error", err)
		return
	}
	c.logger.Info("session cookies persisted", "count", len(cookies), "path", c.cfg.CookiePath)
}

// challengeDelay paces CAPTCHA retries.
func (c *Client) challengeDelay(ctx context.Context) error {
	delay := c.cfg.LoginRetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
