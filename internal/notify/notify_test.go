package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"steward/internal/accounts"
	"steward/internal/protocol"
	"steward/pkg/logging"
)

type fakeNotifier struct {
	name       string
	configured bool
	err        error
	delivered  int
}

func (f *fakeNotifier) Name() string       { return f.name }
func (f *fakeNotifier) IsConfigured() bool { return f.configured }
func (f *fakeNotifier) Notify(_ context.Context, _ Report) error {
	f.delivered++
	return f.err
}

func TestShouldNotify(t *testing.T) {
	cases := []struct {
		name   string
		report Report
		want   bool
	}{
		{"failures always notify", Report{Succeeded: 2, Failed: 1}, true},
		{"success with balance change", Report{Succeeded: 2, BalanceChanged: true}, true},
		{"all quiet", Report{Succeeded: 2}, false},
		{"no accounts", Report{}, false},
		{"balance change without success", Report{BalanceChanged: true}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldNotify(tc.report); got != tc.want {
				t.Errorf("ShouldNotify(%+v) = %v, want %v", tc.report, got, tc.want)
			}
		})
	}
}

func TestDispatchSkipsUnconfiguredAndSurvivesErrors(t *testing.T) {
	unconfigured := &fakeNotifier{name: "email"}
	failing := &fakeNotifier{name: "telegram", configured: true, err: errors.New("api down")}
	healthy := &fakeNotifier{name: "webhook", configured: true}

	d := NewDispatcher(logging.NewLogger(), unconfigured, failing, healthy)
	d.Dispatch(context.Background(), Report{Failed: 1})

	if unconfigured.delivered != 0 {
		t.Errorf("unconfigured notifier must be skipped")
	}
	if failing.delivered != 1 || healthy.delivered != 1 {
		t.Errorf("a failing channel must not block the rest (failing=%d healthy=%d)", failing.delivered, healthy.delivered)
	}
}

func TestDispatchQuietRun(t *testing.T) {
	n := &fakeNotifier{name: "email", configured: true}
	d := NewDispatcher(logging.NewLogger(), n)
	d.Dispatch(context.Background(), Report{Succeeded: 3})

	if n.delivered != 0 {
		t.Errorf("quiet run must not notify")
	}
}

func TestRenderEmailBody(t *testing.T) {
	report := Report{
		GeneratedAt:    time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC),
		Succeeded:      1,
		Failed:         1,
		BalanceChanged: true,
		Outcomes: []protocol.Outcome{
			{Platform: accounts.AnyRouter, Account: "alice", Success: true, Message: "check-in succeeded", Balance: &protocol.Balance{Quota: 10, Used: 2}},
			{Platform: accounts.AgentRouter, Account: "bob", Message: "check-in failed: HTTP 500"},
		},
	}

	body, err := renderEmailBody(report)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"alice", "bob", "$10.00", "check-in failed: HTTP 500", "Balances changed"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestFormatTelegramMessage(t *testing.T) {
	report := Report{
		GeneratedAt: time.Now(),
		Succeeded:   1,
		Outcomes: []protocol.Outcome{
			{Platform: accounts.AnyRouter, Account: "alice", Success: true, Message: "check-in succeeded", Balance: &protocol.Balance{Quota: 10, Used: 2}},
		},
	}

	msg := formatTelegramMessage(report)
	for _, want := range []string{"AnyRouter", "alice", "$10.00 available", "✓ 1 succeeded"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q in %q", want, msg)
		}
	}
}
