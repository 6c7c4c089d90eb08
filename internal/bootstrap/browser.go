package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"steward/pkg/logging"
)

const (
	// Same desktop UA the protocol client pins on its HTTP calls.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"

	viewportWidth  = 1920
	viewportHeight = 1080

	selectorAttemptTimeout = 3 * time.Second
	readyPollTimeout       = 3 * time.Second
	readySettleFallback    = 2 * time.Second
)

// Bootstrapper drives ephemeral headless browser sessions to obtain the
// cookies an account needs before the HTTP check-in calls can run. Every
// harvest or login launches a fresh Chromium profile and tears it down on
// all exit paths; nothing persists between calls.
type Bootstrapper struct {
	logger logging.Logger

	// harvestOne is swapped out in tests to avoid launching a real browser.
	harvestOne func(ctx context.Context, url string, timeout time.Duration) map[string]string
}

func New(logger logging.Logger) *Bootstrapper {
	b := &Bootstrapper{logger: logger}
	b.harvestOne = b.harvestWAFCookies
	return b
}

// browserSession bundles a launched Chromium process with its single
// stealth page. Close is safe to call exactly once per session.
type browserSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

func (s *browserSession) Close() {
	_ = s.browser.Close()
	s.launcher.Cleanup()
}

// newSession launches a fresh headless Chromium with a throwaway profile
// and automation-detection countermeasures, and opens one stealth page
// with a desktop user agent and a fixed viewport.
func (b *Bootstrapper) newSession() (*browserSession, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-web-security").
		Set("no-sandbox")

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch headless browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect to headless browser: %w", err)
	}

	page, err := stealth.Page(browser)
	if err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("create stealth page: %w", err)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: browserUserAgent}); err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("set user agent: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  viewportWidth,
		Height: viewportHeight,
	}); err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	return &browserSession{launcher: l, browser: browser, page: page}, nil
}

// settle waits for the document to finish loading after navigation. The
// readiness poll is best-effort; on error it falls back to a fixed sleep.
func settle(page *rod.Page) {
	err := page.Timeout(readyPollTimeout).Wait(rod.Eval(`() => document.readyState === "complete"`))
	if err != nil {
		time.Sleep(readySettleFallback)
	}
}
