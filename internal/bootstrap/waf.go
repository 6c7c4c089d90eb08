package bootstrap

import (
	"context"
	"time"

	"steward/pkg/logging"
)

// wafCookieNames is the whitelist of anti-bot cookies worth carrying into
// the check-in calls. Everything else the edge sets is ignored.
var wafCookieNames = map[string]bool{
	"acw_tc":     true,
	"cdn_sec_tc": true,
	"acw_sc__v2": true,
}

// HarvestWAFCookies visits url in a fresh browser profile and returns the
// anti-bot cookies the edge set, or nil when none could be obtained. It
// never returns an error: every failure mode reduces to nil so the caller
// can fall through to its next entry point.
func (b *Bootstrapper) HarvestWAFCookies(ctx context.Context, url string, timeout time.Duration) map[string]string {
	return b.harvestOne(ctx, url, timeout)
}

// HarvestWithFallback tries each entry point in order and returns the
// first non-empty harvest. Platforms route their anti-bot challenge to
// different pages over time, so a miss on one URL is not a verdict.
func (b *Bootstrapper) HarvestWithFallback(ctx context.Context, urls []string, timeout time.Duration) map[string]string {
	for _, url := range urls {
		if cookies := b.harvestOne(ctx, url, timeout); len(cookies) > 0 {
			return cookies
		}
	}
	b.logger.Warn("No WAF cookies obtained from any entry point; continuing with user cookies only")
	return nil
}

func (b *Bootstrapper) harvestWAFCookies(ctx context.Context, url string, timeout time.Duration) map[string]string {
	log := b.logger.WithFields(logging.Fields{"url": url})

	session, err := b.newSession()
	if err != nil {
		wafHarvests.WithLabelValues("error").Inc()
		log.WithError(err).Error("Failed to launch browser for WAF harvest")
		return nil
	}
	defer session.Close()

	page := session.page.Context(ctx)

	// A navigation timeout still leaves a partially loaded page whose
	// cookies may already be set, so the error is only logged.
	if err := page.Timeout(timeout).Navigate(url); err != nil {
		log.WithError(err).Warn("Navigation did not complete; using partial page")
	}
	settle(page)

	cookies, err := session.browser.GetCookies()
	if err != nil {
		wafHarvests.WithLabelValues("error").Inc()
		log.WithError(err).Error("Failed to read browser cookies")
		return nil
	}

	harvested := make(map[string]string)
	for _, c := range cookies {
		if wafCookieNames[c.Name] && c.Value != "" {
			harvested[c.Name] = c.Value
		}
	}

	if len(harvested) == 0 {
		wafHarvests.WithLabelValues("empty").Inc()
		log.Warn("No WAF cookies present after page load")
		return nil
	}

	wafHarvests.WithLabelValues("success").Inc()
	log.WithFields(logging.Fields{"count": len(harvested)}).Info("WAF cookies harvested")
	return harvested
}
