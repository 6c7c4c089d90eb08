package bootstrap

import (
	"context"
	"testing"
	"time"

	"steward/pkg/logging"
)

func TestHarvestWithFallbackFirstNonEmptyWins(t *testing.T) {
	b := New(logging.NewLogger())

	var tried []string
	b.harvestOne = func(_ context.Context, url string, _ time.Duration) map[string]string {
		tried = append(tried, url)
		if url == "https://example.org/console" {
			return map[string]string{"acw_tc": "tok"}
		}
		return nil
	}

	got := b.HarvestWithFallback(context.Background(), []string{
		"https://example.org",
		"https://example.org/console",
		"https://example.org/login",
	}, time.Second)

	if got["acw_tc"] != "tok" {
		t.Fatalf("expected cookies from second URL, got %v", got)
	}
	if len(tried) != 2 {
		t.Errorf("remaining URLs must not be tried after a hit, tried %v", tried)
	}
}

func TestHarvestWithFallbackAllEmpty(t *testing.T) {
	b := New(logging.NewLogger())
	b.harvestOne = func(_ context.Context, _ string, _ time.Duration) map[string]string {
		return nil
	}

	if got := b.HarvestWithFallback(context.Background(), []string{"https://a", "https://b"}, time.Second); got != nil {
		t.Fatalf("expected nil when every URL misses, got %v", got)
	}
}

func TestHarvestWAFCookiesDelegates(t *testing.T) {
	b := New(logging.NewLogger())
	b.harvestOne = func(_ context.Context, url string, timeout time.Duration) map[string]string {
		if url != "https://example.org/login" || timeout != 30*time.Second {
			t.Errorf("unexpected call: %s %v", url, timeout)
		}
		return map[string]string{"cdn_sec_tc": "v"}
	}

	got := b.HarvestWAFCookies(context.Background(), "https://example.org/login", 30*time.Second)
	if got["cdn_sec_tc"] != "v" {
		t.Fatalf("unexpected result %v", got)
	}
}
