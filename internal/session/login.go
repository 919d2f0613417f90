package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// loginState enumerates the sign-in state machine. The flow asks for
// the account email first, then the password, and only falls into the
// CAPTCHA loop when the site keeps returning the interstitial.
type loginState int

const (
	stateAwaitEmail loginState = iota
	stateAwaitPassword
	stateAwaitCaptcha
	stateFailed
)

// authenticate drives the sign-in flow starting from an interstitial
// page. Any page shape the machine does not recognize aborts with
// ErrAuthentication: that signals a credential or structural problem
// that retrying cannot fix.
func (c *Client) authenticate(ctx context.Context, doc *goquery.Document) error {
	if c.cfg.Email == "" || c.cfg.Password == "" {
		return fmt.Errorf("%w: set AMAZHIST_EMAIL and AMAZHIST_PASSWORD", ErrNoCredentials)
	}

	state := stateAwaitEmail
	attempts := 0

	for {
		switch state {
		case stateAwaitEmail:
			next, err := c.submitEmail(ctx, doc)
			if err != nil {
				return err
			}
			doc = next
			state = stateAwaitPassword

		case stateAwaitPassword:
			next, err := c.submitPassword(ctx, doc, "")
			if err != nil {
				return err
			}
			if !isSignInPage(next) {
				c.saveCookies()
				c.logger.Info("login succeeded")
				return nil
			}
			doc = next
			state = stateAwaitCaptcha

		case stateAwaitCaptcha:
			attempts++
			if attempts > c.cfg.MaxLoginAttempts {
				state = stateFailed
				continue
			}

			guess, err := c.solveCaptcha(ctx, doc)
			if err != nil {
				return err
			}

			next, err := c.submitPassword(ctx, doc, guess)
			if err != nil {
				return err
			}
			if !isSignInPage(next) {
				c.saveCookies()
				c.logger.Info("login succeeded", "captcha_attempts", attempts)
				return nil
			}

			c.logger.Warn("captcha attempt rejected", "attempt", attempts, "max", c.cfg.MaxLoginAttempts)
			if err := c.challengeDelay(ctx); err != nil {
				return err
			}
			doc = next

		case stateFailed:
			return fmt.Errorf("%w: sign-in attempts exhausted after %d tries", ErrAuthentication, c.cfg.MaxLoginAttempts)
		}
	}
}

// submitEmail posts the account identifier into the sign-in form.
func (c *Client) submitEmail(ctx context.Context, doc *goquery.Document) (*goquery.Document, error) {
	form, err := parseSignInForm(doc)
	if err != nil {
		return nil, err
	}
	if !form.hasField("email") {
		// Some variants present email and password on one page; let the
		// password state handle it.
		return doc, nil
	}

	fields := form.fields()
	fields["email"] = c.cfg.Email

	return c.submitForm(ctx, form.action, fields)
}

// submitPassword posts the password, the remember-me flag and, when
// non-empty, a CAPTCHA answer.
func (c *Client) submitPassword(ctx context.Context, doc *goquery.Document, captchaGuess string) (*goquery.Document, error) {
	form, err := parseSignInForm(doc)
	if err != nil {
		return nil, err
	}

	fields := form.fields()
	fields["email"] = c.cfg.Email
	fields["password"] = c.cfg.Password
	fields["rememberMe"] = "true"
	if captchaGuess != "" {
		fields["guess"] = captchaGuess
	}

	return c.submitForm(ctx, form.action, fields)
}

// solveCaptcha saves the challenge image locally and blocks on the
// injected prompt for the solved text.
func (c *Client) solveCaptcha(ctx context.Context, doc *goquery.Document) (string, error) {
	src, ok := doc.Find("img#auth-captcha-image").First().Attr("src")
	if !ok || src == "" {
		src, ok = doc.Find(`img[src*="captcha"]`).First().Attr("src")
	}
	if !ok || src == "" {
		return "", fmt.Errorf("%w: sign-in rejected without a captcha challenge", ErrAuthentication)
	}

	if c.onChallenge != nil {
		c.onChallenge()
	}

	body, status, err := c.Download(ctx, src)
	if err != nil {
		return "", fmt.Errorf("failed to fetch captcha image: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("failed to fetch captcha image: status %d", status)
	}
	if err := os.WriteFile(c.cfg.CaptchaImagePath, body, 0o644); err != nil {
		return "", fmt.Errorf("failed to save captcha image: %w", err)
	}

	if c.prompt == nil {
		return "", fmt.Errorf("%w: captcha challenged but no prompt is wired", ErrAuthentication)
	}

	c.logger.Info("captcha challenge saved, waiting for answer", "image", c.cfg.CaptchaImagePath)
	guess, err := c.prompt(c.cfg.CaptchaImagePath)
	if err != nil {
		return "", fmt.Errorf("captcha prompt failed: %w", err)
	}
	return guess, nil
}

func (c *Client) submitForm(ctx context.Context, action string, fields map[string]string) (*goquery.Document, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(fields).
		Post(action)
	if err != nil {
		return nil, fmt.Errorf("failed to submit sign-in form: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse sign-in response: %w", err)
	}
	return doc, nil
}

// signInForm is the sign-in form's action target plus its hidden
// fields, which carry the flow tokens the site requires on resubmit.
type signInForm struct {
	action string
	hidden map[string]string
	inputs map[string]bool
}

func parseSignInForm(doc *goquery.Document) (*signInForm, error) {
	sel := doc.Find(`form[name="signIn"]`).First()
	if sel.Length() == 0 {
		sel = doc.Find(`form[action*="signin"]`).First()
	}
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: no sign-in form on interstitial page", ErrAuthentication)
	}

	action, _ := sel.Attr("action")
	if action == "" {
		return nil, fmt.Errorf("%w: sign-in form has no action", ErrAuthentication)
	}

	form := &signInForm{
		action: action,
		hidden: map[string]string{},
		inputs: map[string]bool{},
	}

	sel.Find("input").Each(func(i int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		form.inputs[name] = true
		if t, _ := input.Attr("type"); t == "hidden" {
			value, _ := input.Attr("value")
			form.hidden[name] = value
		}
	})

	return form, nil
}

func (f *signInForm) hasField(name string) bool {
	return f.inputs[name]
}

func (f *signInForm) fields() map[string]string {
	out := make(map[string]string, len(f.hidden))
	for k, v := range f.hidden {
		out[k] = v
	}
	return out
}

func encodeCookies(cookies []*http.Cookie) ([]byte, error) {
	out := make([]persistedCookie, 0, len(cookies))
	for _, ck := range cookies {
		out = append(out, persistedCookie{Name: ck.Name, Value: ck.Value})
	}
	return json.MarshalIndent(out, "", "  ")
}

func decodeCookies(data []byte) ([]*http.Cookie, error) {
	var in []persistedCookie
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	out := make([]*http.Cookie, 0, len(in))
	for _, ck := range in {
		out = append(out, &http.Cookie{
			Name:    ck.Name,
			Value:   ck.Value,
			Path:    "/",
			Expires: time.Now().AddDate(1, 0, 0),
		})
	}
	return out, nil
}
