package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"steward/internal/accounts"
	"steward/internal/bootstrap"
	"steward/internal/ledger"
	"steward/internal/protocol"
	"steward/pkg/logging"
)

const (
	DefaultPacing = 2 * time.Second

	maxPanicSummaryLen = 50
)

// SessionBootstrapper obtains the cookies an account needs before the
// HTTP check-in calls can run.
type SessionBootstrapper interface {
	HarvestWAFCookies(ctx context.Context, url string, timeout time.Duration) map[string]string
	HarvestWithFallback(ctx context.Context, urls []string, timeout time.Duration) map[string]string
	LoginWithCredentials(ctx context.Context, pc protocol.PlatformConfig, email, password string) (*bootstrap.LoginResult, error)
}

// CheckinClient performs the balance read and sign-in calls for one
// assembled session.
type CheckinClient interface {
	PerformCheckin(ctx context.Context, pc protocol.PlatformConfig, account string, cookies map[string]string, apiUser string) protocol.Result
}

// Summary aggregates one platform's outcomes. Quota and used totals only
// cover outcomes that carried a balance.
type Summary struct {
	Platform   accounts.Platform
	Total      int
	Succeeded  int
	Failed     int
	HasBalance bool
	TotalQuota float64
	TotalUsed  float64
}

// Report is the result of one full run.
type Report struct {
	Outcomes       []protocol.Outcome
	Summaries      []Summary
	Succeeded      int
	Failed         int
	BalanceChanged bool
}

// Runner sequences per-account check-ins across platforms. Accounts are
// processed strictly one at a time; concurrent browser contexts against
// anti-bot protected targets raise detection risk.
type Runner struct {
	logger       logging.Logger
	bootstrapper SessionBootstrapper
	client       CheckinClient
	ledger       *ledger.Ledger
	pacing       time.Duration
}

func New(logger logging.Logger, b SessionBootstrapper, c CheckinClient, l *ledger.Ledger, pacing time.Duration) *Runner {
	if pacing <= 0 {
		pacing = DefaultPacing
	}
	return &Runner{
		logger:       logger,
		bootstrapper: b,
		client:       c,
		ledger:       l,
		pacing:       pacing,
	}
}

// RunAll processes every account grouped by platform, in registry order,
// then drives the ledger's change-detection pass.
func (r *Runner) RunAll(ctx context.Context, grouped map[accounts.Platform][]accounts.Account) Report {
	var report Report
	seenKeys := make(map[string]bool)

	platforms := platformsWithAccounts(grouped)
	for pi, pc := range platforms {
		accts := grouped[pc.Platform]
		var platformOutcomes []protocol.Outcome

		for ai, acct := range accts {
			outcome := r.processAccount(ctx, pc, acct, seenKeys)
			report.Outcomes = append(report.Outcomes, outcome)
			platformOutcomes = append(platformOutcomes, outcome)

			lastOfRun := pi == len(platforms)-1 && ai == len(accts)-1
			if !lastOfRun {
				time.Sleep(r.pacing)
			}
		}

		report.Summaries = append(report.Summaries, r.summarize(pc.Platform, platformOutcomes))
	}

	for _, o := range report.Outcomes {
		if o.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	report.BalanceChanged = r.ledger.FinalizeRun()
	return report
}

func platformsWithAccounts(grouped map[accounts.Platform][]accounts.Account) []protocol.PlatformConfig {
	var out []protocol.PlatformConfig
	for _, pc := range protocol.Platforms() {
		if len(grouped[pc.Platform]) > 0 {
			out = append(out, pc)
		}
	}
	return out
}

// processAccount runs one account's full pipeline. A panic anywhere in
// the pipeline is converted to a failed outcome so the remaining
// accounts still run.
func (r *Runner) processAccount(ctx context.Context, pc protocol.PlatformConfig, acct accounts.Account, seenKeys map[string]bool) (outcome protocol.Outcome) {
	log := r.logger.WithFields(logging.Fields{
		"platform": pc.Platform,
		"account":  acct.Name,
	})
	log.Info("Processing account")

	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprint(rec)
			if len(msg) > maxPanicSummaryLen {
				msg = msg[:maxPanicSummaryLen]
			}
			log.WithField("panic", msg).Error("Account pipeline panicked")
			outcome = r.failure(pc, acct, "check-in error: "+msg)
		}
	}()

	cookies, apiUser, errMsg := r.assembleSession(ctx, pc, acct, log)
	if errMsg != "" {
		return r.failure(pc, acct, errMsg)
	}

	res := r.client.PerformCheckin(ctx, pc, acct.Name, cookies, apiUser)

	if res.Balance != nil {
		key := acct.Key()
		if seenKeys[key] {
			log.WithField("key", key).Warn("Duplicate account key; previous balance for this key is overwritten")
		}
		seenKeys[key] = true

		r.ledger.RecordCurrent(key, *res.Balance)
		if delta, ok := r.ledger.ReportDelta(key, *res.Balance); ok {
			logDelta(log, delta)
		}
	}

	outcome = protocol.Outcome{
		Platform:  pc.Platform,
		Account:   acct.Name,
		Success:   res.Success,
		Message:   res.Message,
		Balance:   res.Balance,
		Timestamp: time.Now(),
	}
	if res.Success {
		log.WithField("message", res.Message).Info("Account processed")
	} else {
		log.WithField("message", res.Message).Warn("Account failed")
	}
	return outcome
}

// assembleSession produces the cookie set and API user for one account:
// a credential login where the platform supports it and the account
// carries credentials, otherwise configured cookies merged with freshly
// harvested WAF cookies. A non-empty third return is a failure message.
func (r *Runner) assembleSession(ctx context.Context, pc protocol.PlatformConfig, acct accounts.Account, log *logrus.Entry) (map[string]string, string, string) {
	if acct.UsesCredentials() && pc.SupportsCredentialLogin() {
		res, err := r.bootstrapper.LoginWithCredentials(ctx, pc, acct.Email, acct.Password)
		if err != nil {
			log.WithError(err).Error("Credential login failed")
			return nil, "", "credential login failed"
		}
		log.Info("Credential login succeeded")
		return res.Cookies, res.APIUser, ""
	}

	if acct.APIUser == "" {
		return nil, "", "API user ID not configured"
	}
	userCookies, err := acct.CookieMap()
	if err != nil || len(userCookies) == 0 {
		return nil, "", "malformed cookie configuration"
	}

	merged := make(map[string]string)
	if pc.WAFRequired {
		waf := r.bootstrapper.HarvestWAFCookies(ctx, pc.WAFURLs[0], pc.WAFNavTimeout)
		if len(waf) == 0 {
			return nil, "", "could not obtain WAF cookies"
		}
		for k, v := range waf {
			merged[k] = v
		}
	} else if waf := r.bootstrapper.HarvestWithFallback(ctx, pc.WAFURLs, pc.WAFNavTimeout); len(waf) > 0 {
		for k, v := range waf {
			merged[k] = v
		}
	}

	// Configured cookies win over harvested ones on name collision.
	for k, v := range userCookies {
		merged[k] = v
	}
	return merged, acct.APIUser, ""
}

func (r *Runner) failure(pc protocol.PlatformConfig, acct accounts.Account, msg string) protocol.Outcome {
	return protocol.Outcome{
		Platform:  pc.Platform,
		Account:   acct.Name,
		Message:   msg,
		Timestamp: time.Now(),
	}
}

func (r *Runner) summarize(platform accounts.Platform, outcomes []protocol.Outcome) Summary {
	s := Summary{Platform: platform, Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		if o.Balance != nil {
			s.HasBalance = true
			s.TotalQuota += o.Balance.Quota
			s.TotalUsed += o.Balance.Used
		}
	}

	fields := logging.Fields{
		"platform": platform.DisplayName(),
		"accounts": s.Total,
		"success":  s.Succeeded,
		"failed":   s.Failed,
	}
	if s.HasBalance {
		fields["total_quota"] = fmt.Sprintf("%.2f", s.TotalQuota)
		fields["total_used"] = fmt.Sprintf("%.2f", s.TotalUsed)
	}
	r.logger.WithFields(fields).Info("Platform summary")
	return s
}

func logDelta(log *logrus.Entry, d ledger.Delta) {
	fields := logging.Fields{}
	switch {
	case d.Recharge > 0:
		fields["recharge"] = fmt.Sprintf("+$%.2f ($%.2f -> $%.2f)", d.Recharge, d.Last.Total(), d.Current.Total())
	case d.Recharge < 0:
		fields["recharge"] = fmt.Sprintf("-$%.2f ($%.2f -> $%.2f)", -d.Recharge, d.Last.Total(), d.Current.Total())
	}
	switch {
	case d.UsedChange > 0:
		fields["consumed"] = fmt.Sprintf("+$%.2f ($%.2f -> $%.2f)", d.UsedChange, d.Last.Used, d.Current.Used)
	case d.UsedChange < 0:
		fields["consumed"] = fmt.Sprintf("-$%.2f ($%.2f -> $%.2f)", -d.UsedChange, d.Last.Used, d.Current.Used)
	}
	switch {
	case d.QuotaChange > 0:
		fields["available"] = fmt.Sprintf("+$%.2f ($%.2f -> $%.2f)", d.QuotaChange, d.Last.Quota, d.Current.Quota)
	case d.QuotaChange < 0:
		fields["available"] = fmt.Sprintf("-$%.2f ($%.2f -> $%.2f)", -d.QuotaChange, d.Last.Quota, d.Current.Quota)
	default:
		fields["available"] = fmt.Sprintf("unchanged ($%.2f)", d.Current.Quota)
	}
	log.WithFields(fields).Info("Balance moved since previous run")
}
