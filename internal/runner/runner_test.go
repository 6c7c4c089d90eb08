package runner

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"steward/internal/accounts"
	"steward/internal/bootstrap"
	"steward/internal/ledger"
	"steward/internal/protocol"
	"steward/pkg/logging"
)

type fakeBootstrapper struct {
	waf          map[string]string
	loginResult  *bootstrap.LoginResult
	loginErr     error
	harvestCalls int
	loginCalls   int
}

func (f *fakeBootstrapper) HarvestWAFCookies(_ context.Context, _ string, _ time.Duration) map[string]string {
	f.harvestCalls++
	return f.waf
}

func (f *fakeBootstrapper) HarvestWithFallback(_ context.Context, _ []string, _ time.Duration) map[string]string {
	f.harvestCalls++
	return f.waf
}

func (f *fakeBootstrapper) LoginWithCredentials(_ context.Context, _ protocol.PlatformConfig, _, _ string) (*bootstrap.LoginResult, error) {
	f.loginCalls++
	return f.loginResult, f.loginErr
}

type checkinCall struct {
	account string
	cookies map[string]string
	apiUser string
}

type fakeClient struct {
	results map[string]protocol.Result
	calls   []checkinCall
	panicOn string
}

func (f *fakeClient) PerformCheckin(_ context.Context, _ protocol.PlatformConfig, account string, cookies map[string]string, apiUser string) protocol.Result {
	if account == f.panicOn {
		panic("nil pointer dereference in browser teardown")
	}
	f.calls = append(f.calls, checkinCall{account: account, cookies: cookies, apiUser: apiUser})
	return f.results[account]
}

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	dir := t.TempDir()
	return ledger.Load(filepath.Join(dir, "hash.txt"), filepath.Join(dir, "data.json"), logging.NewLogger())
}

func cookieAccount(platform accounts.Platform, name, apiUser string) accounts.Account {
	return accounts.Account{
		Name:     name,
		Platform: platform,
		APIUser:  apiUser,
		Cookies:  json.RawMessage(`{"session":"tok"}`),
	}
}

func TestRunAllAggregatesOutcomes(t *testing.T) {
	b := &fakeBootstrapper{waf: map[string]string{"acw_tc": "w"}}
	c := &fakeClient{results: map[string]protocol.Result{
		"alice": {Success: true, Message: "check-in succeeded", Balance: &protocol.Balance{Quota: 10.00, Used: 2.00}},
		"bob":   {Message: "check-in failed: cooldown"},
	}}

	r := New(logging.NewLogger(), b, c, newTestLedger(t), time.Millisecond)
	report := r.RunAll(context.Background(), map[accounts.Platform][]accounts.Account{
		accounts.AnyRouter: {
			cookieAccount(accounts.AnyRouter, "alice", "1"),
			cookieAccount(accounts.AnyRouter, "bob", "2"),
		},
	})

	if len(report.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(report.Outcomes))
	}
	if report.Succeeded != 1 || report.Failed != 1 {
		t.Errorf("expected 1/1, got %d/%d", report.Succeeded, report.Failed)
	}
	if report.Outcomes[0].Account != "alice" || report.Outcomes[1].Account != "bob" {
		t.Errorf("list order not preserved: %+v", report.Outcomes)
	}
	if !report.BalanceChanged {
		t.Errorf("first run must report a balance change")
	}

	if len(report.Summaries) != 1 {
		t.Fatalf("expected 1 platform summary, got %d", len(report.Summaries))
	}
	s := report.Summaries[0]
	if s.Total != 2 || s.Succeeded != 1 || s.Failed != 1 {
		t.Errorf("summary counts wrong: %+v", s)
	}
	if !s.HasBalance || s.TotalQuota != 10.00 || s.TotalUsed != 2.00 {
		t.Errorf("summary totals wrong: %+v", s)
	}
}

func TestRunAllConfigErrors(t *testing.T) {
	b := &fakeBootstrapper{waf: map[string]string{"acw_tc": "w"}}
	c := &fakeClient{results: map[string]protocol.Result{}}
	r := New(logging.NewLogger(), b, c, newTestLedger(t), time.Millisecond)

	t.Run("missing api user", func(t *testing.T) {
		report := r.RunAll(context.Background(), map[accounts.Platform][]accounts.Account{
			accounts.AnyRouter: {cookieAccount(accounts.AnyRouter, "alice", "")},
		})
		if report.Failed != 1 || report.Outcomes[0].Message != "API user ID not configured" {
			t.Fatalf("unexpected report: %+v", report.Outcomes)
		}
	})

	t.Run("malformed cookies", func(t *testing.T) {
		acct := cookieAccount(accounts.AnyRouter, "alice", "1")
		acct.Cookies = json.RawMessage(`42`)
		report := r.RunAll(context.Background(), map[accounts.Platform][]accounts.Account{
			accounts.AnyRouter: {acct},
		})
		if report.Failed != 1 || report.Outcomes[0].Message != "malformed cookie configuration" {
			t.Fatalf("unexpected report: %+v", report.Outcomes)
		}
	})

	if len(c.calls) != 0 {
		t.Errorf("client must not be called for config errors")
	}
}

func TestRunAllRequiredWAFMissing(t *testing.T) {
	b := &fakeBootstrapper{waf: nil}
	c := &fakeClient{}
	r := New(logging.NewLogger(), b, c, newTestLedger(t), time.Millisecond)

	report := r.RunAll(context.Background(), map[accounts.Platform][]accounts.Account{
		accounts.AnyRouter: {cookieAccount(accounts.AnyRouter, "alice", "1")},
	})
	if report.Failed != 1 || report.Outcomes[0].Message != "could not obtain WAF cookies" {
		t.Fatalf("unexpected report: %+v", report.Outcomes)
	}
	if len(c.calls) != 0 {
		t.Errorf("client must not run without required WAF cookies")
	}
}

func TestRunAllOptionalWAFMissing(t *testing.T) {
	// AgentRouter continues with user cookies when no WAF cookie appears.
	b := &fakeBootstrapper{waf: nil}
	c := &fakeClient{results: map[string]protocol.Result{
		"alice": {Success: true, Message: "keep-alive ok (platform has no sign-in endpoint)"},
	}}
	r := New(logging.NewLogger(), b, c, newTestLedger(t), time.Millisecond)

	report := r.RunAll(context.Background(), map[accounts.Platform][]accounts.Account{
		accounts.AgentRouter: {cookieAccount(accounts.AgentRouter, "alice", "1")},
	})
	if report.Succeeded != 1 {
		t.Fatalf("unexpected report: %+v", report.Outcomes)
	}
	if got := c.calls[0].cookies["session"]; got != "tok" {
		t.Errorf("user cookies not forwarded: %v", c.calls[0].cookies)
	}
}

func TestRunAllCredentialLogin(t *testing.T) {
	b := &fakeBootstrapper{loginResult: &bootstrap.LoginResult{
		Cookies: map[string]string{"session": "fresh", "acw_tc": "w"},
		APIUser: "77",
	}}
	c := &fakeClient{results: map[string]protocol.Result{
		"alice": {Success: true, Message: "check-in succeeded"},
	}}
	r := New(logging.NewLogger(), b, c, newTestLedger(t), time.Millisecond)

	report := r.RunAll(context.Background(), map[accounts.Platform][]accounts.Account{
		accounts.AgentRouter: {{
			Name:     "alice",
			Platform: accounts.AgentRouter,
			Email:    "a@example.org",
			Password: "secret",
		}},
	})

	if report.Succeeded != 1 {
		t.Fatalf("unexpected report: %+v", report.Outcomes)
	}
	if b.loginCalls != 1 || b.harvestCalls != 0 {
		t.Errorf("credential path must login, not harvest (login=%d harvest=%d)", b.loginCalls, b.harvestCalls)
	}
	call := c.calls[0]
	if call.apiUser != "77" || call.cookies["session"] != "fresh" {
		t.Errorf("login result not forwarded: %+v", call)
	}
}

func TestRunAllCredentialLoginFailure(t *testing.T) {
	b := &fakeBootstrapper{loginErr: errors.New("no session cookie present after login")}
	c := &fakeClient{}
	r := New(logging.NewLogger(), b, c, newTestLedger(t), time.Millisecond)

	report := r.RunAll(context.Background(), map[accounts.Platform][]accounts.Account{
		accounts.AgentRouter: {{
			Name:     "alice",
			Platform: accounts.AgentRouter,
			Email:    "a@example.org",
			Password: "secret",
		}},
	})
	if report.Failed != 1 || report.Outcomes[0].Message != "credential login failed" {
		t.Fatalf("unexpected report: %+v", report.Outcomes)
	}
}

func TestRunAllRecoversPanics(t *testing.T) {
	b := &fakeBootstrapper{waf: map[string]string{"acw_tc": "w"}}
	c := &fakeClient{
		panicOn: "alice",
		results: map[string]protocol.Result{
			"bob": {Success: true, Message: "check-in succeeded"},
		},
	}
	r := New(logging.NewLogger(), b, c, newTestLedger(t), time.Millisecond)

	report := r.RunAll(context.Background(), map[accounts.Platform][]accounts.Account{
		accounts.AnyRouter: {
			cookieAccount(accounts.AnyRouter, "alice", "1"),
			cookieAccount(accounts.AnyRouter, "bob", "2"),
		},
	})

	if len(report.Outcomes) != 2 {
		t.Fatalf("panic must not abort the run, got %d outcomes", len(report.Outcomes))
	}
	if report.Outcomes[0].Success {
		t.Errorf("panicking account must fail")
	}
	if !report.Outcomes[1].Success {
		t.Errorf("later accounts must still run")
	}
}
