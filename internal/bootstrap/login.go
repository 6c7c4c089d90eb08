package bootstrap

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"steward/internal/protocol"
	"steward/pkg/logging"
)

const (
	loginNavTimeout     = 20 * time.Second
	loginNavSettle      = 2 * time.Second
	formFillSettle      = time.Second
	consoleWaitTimeout  = 15 * time.Second
	consoleWaitInterval = 500 * time.Millisecond
	postSubmitSettle    = 5 * time.Second
)

// LoginResult is the output of a successful credential login: the cookies
// to attach to the check-in calls and the platform-side user identifier,
// which may be empty when the self endpoint was unreachable.
type LoginResult struct {
	Cookies map[string]string
	APIUser string
}

// LoginWithCredentials drives an interactive browser login and extracts
// the resulting session cookie. The session cookie is mandatory; WAF
// cookies set along the way are carried too. The browser profile is torn
// down on every exit path.
func (b *Bootstrapper) LoginWithCredentials(ctx context.Context, pc protocol.PlatformConfig, email, password string) (*LoginResult, error) {
	log := b.logger.WithFields(logging.Fields{"platform": pc.Platform})

	session, err := b.newSession()
	if err != nil {
		loginAttempts.WithLabelValues(string(pc.Platform), "error").Inc()
		return nil, err
	}
	defer session.Close()

	page := session.page.Context(ctx)

	res, err := b.runLogin(page, session, pc, email, password, log)
	if err != nil {
		loginAttempts.WithLabelValues(string(pc.Platform), "failure").Inc()
		return nil, err
	}
	loginAttempts.WithLabelValues(string(pc.Platform), "success").Inc()
	return res, nil
}

func (b *Bootstrapper) runLogin(page *rod.Page, session *browserSession, pc protocol.PlatformConfig, email, password string, log *logrus.Entry) (*LoginResult, error) {
	if !b.openLoginPage(page, pc.LoginURLs, log) {
		return nil, fmt.Errorf("no login page with an email input found at any candidate URL")
	}

	if !fillFirst(page, emailLocators, email, log, "email") {
		return nil, fmt.Errorf("email input not found on login page")
	}
	if !fillFirst(page, passwordLocators, password, log, "password") {
		return nil, fmt.Errorf("password input not found on login page")
	}
	time.Sleep(formFillSettle)

	if !clickFirst(page, loginButtonLocators, log) {
		return nil, fmt.Errorf("login button not found on login page")
	}

	if err := b.awaitConsole(page, log); err != nil {
		return nil, err
	}

	cookies, err := session.browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("read cookies after login: %w", err)
	}

	result := &LoginResult{Cookies: make(map[string]string)}
	for _, c := range cookies {
		if c.Name == "session" || wafCookieNames[c.Name] {
			result.Cookies[c.Name] = c.Value
		}
	}
	if result.Cookies["session"] == "" {
		return nil, fmt.Errorf("no session cookie present after login")
	}

	// Best-effort: resolve the user ID through a same-origin fetch so the
	// check-in calls can set the platform's API user header.
	result.APIUser = resolveAPIUser(page, log)
	return result, nil
}

// openLoginPage tries each candidate URL until one renders a page with an
// email input. Navigation failures are swallowed and the next URL tried.
func (b *Bootstrapper) openLoginPage(page *rod.Page, urls []string, log *logrus.Entry) bool {
	for _, url := range urls {
		if err := page.Timeout(loginNavTimeout).Navigate(url); err != nil {
			log.WithError(err).WithFields(logging.Fields{"url": url}).Warn("Login page navigation failed")
			continue
		}
		time.Sleep(loginNavSettle)

		if _, err := page.Timeout(selectorAttemptTimeout).Element(emailLocators[0].css + ", " + emailLocators[1].css); err == nil {
			log.WithFields(logging.Fields{"url": url}).Info("Login page reached")
			return true
		}
		// Some routers render the form without type/name attributes.
		for _, loc := range emailLocators[2:] {
			if _, err := page.Timeout(selectorAttemptTimeout).Element(loc.css); err == nil {
				log.WithFields(logging.Fields{"url": url}).Info("Login page reached")
				return true
			}
		}
	}
	return false
}

// awaitConsole waits for the post-login redirect. If the URL never picks
// up the console marker it settles and inspects where the page ended up;
// still sitting on a login page means the credentials were rejected.
func (b *Bootstrapper) awaitConsole(page *rod.Page, log *logrus.Entry) error {
	deadline := time.Now().Add(consoleWaitTimeout)
	for time.Now().Before(deadline) {
		if info, err := page.Info(); err == nil && strings.Contains(info.URL, "console") {
			log.Info("Login redirect to console observed")
			return nil
		}
		time.Sleep(consoleWaitInterval)
	}

	time.Sleep(postSubmitSettle)
	info, err := page.Info()
	if err != nil {
		return fmt.Errorf("inspect page after login: %w", err)
	}
	if strings.Contains(info.URL, "/login") || strings.Contains(info.URL, "#/login") {
		if el, elErr := page.Timeout(2*time.Second).Element(errorMessageSelector); elErr == nil {
			if msg, txtErr := el.Text(); txtErr == nil && msg != "" {
				return fmt.Errorf("login rejected: %s", strings.TrimSpace(msg))
			}
		}
		return fmt.Errorf("still on login page after submit: %s", info.URL)
	}

	log.WithFields(logging.Fields{"url": info.URL}).Info("Login settled off the login page")
	return nil
}

func fillFirst(page *rod.Page, locators []elementLocator, value string, log *logrus.Entry, field string) bool {
	for _, loc := range locators {
		el, err := page.Timeout(selectorAttemptTimeout).Element(loc.css)
		if err != nil {
			continue
		}
		if err := el.Input(value); err != nil {
			continue
		}
		log.WithFields(logging.Fields{"field": field, "selector": loc.String()}).Debug("Form field filled")
		return true
	}
	return false
}

func clickFirst(page *rod.Page, locators []elementLocator, log *logrus.Entry) bool {
	for _, loc := range locators {
		var el *rod.Element
		var err error
		p := page.Timeout(selectorAttemptTimeout)
		if loc.text != "" {
			el, err = p.ElementR(loc.css, loc.text)
		} else {
			el, err = p.Element(loc.css)
		}
		if err != nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			continue
		}
		log.WithFields(logging.Fields{"selector": loc.String()}).Debug("Login button clicked")
		return true
	}
	return false
}

// resolveAPIUser asks the logged-in page for the current user's ID. Any
// failure leaves the identifier empty; the check-in may still succeed
// without it on some platforms.
func resolveAPIUser(page *rod.Page, log *logrus.Entry) string {
	obj, err := page.Eval(`async () => {
		const res = await fetch('/api/user/self');
		return await res.json();
	}`)
	if err != nil {
		log.WithError(err).Warn("Could not resolve user ID from page context")
		return ""
	}
	if !obj.Value.Get("success").Bool() {
		log.Warn("Self endpoint reported failure while resolving user ID")
		return ""
	}
	id := obj.Value.Get("data").Get("id").Int()
	if id == 0 {
		return ""
	}
	return strconv.Itoa(id)
}
