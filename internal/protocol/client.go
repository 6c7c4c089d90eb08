package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"steward/pkg/logging"
)

const (
	// quotaUnitScale converts the platforms' raw integer quota unit into
	// dollars.
	quotaUnitScale = 500000

	defaultRequestTimeout = 30 * time.Second
	maxResponseBytes      = 1 << 20
	maxErrorSummaryLen    = 50

	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"
)

const (
	msgCheckinOK       = "check-in succeeded"
	msgKeepAliveOK     = "keep-alive ok (platform has no sign-in endpoint)"
	msgKeepAliveFailed = "keep-alive failed: account state unavailable"
)

// Result is the normalized verdict of one check-in attempt.
type Result struct {
	Success bool
	Message string
	Balance *Balance
}

// Client performs the balance read and sign-in calls against a platform.
// A fresh transport with its own cookie jar is built per attempt and
// released before returning.
type Client struct {
	logger  logging.Logger
	timeout time.Duration
}

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

func NewClient(logger logging.Logger, opts ...ClientOption) *Client {
	c := &Client{
		logger:  logger,
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PerformCheckin reads the account balance (best-effort) and submits the
// sign-in action, reducing the platform's heterogeneous responses to a
// single Result. It never returns an error; every failure mode is folded
// into Result.Message.
func (c *Client) PerformCheckin(ctx context.Context, pc PlatformConfig, account string, cookies map[string]string, apiUser string) Result {
	start := time.Now()
	log := c.logger.WithFields(logging.Fields{
		"platform": pc.Platform,
		"account":  account,
	})

	httpClient, err := c.newTransport(pc, cookies)
	if err != nil {
		return c.finish(pc, start, Result{Message: "check-in failed: " + truncateError(err)})
	}
	defer httpClient.CloseIdleConnections()

	balance := c.fetchBalance(ctx, httpClient, pc, apiUser, log)
	if balance != nil {
		balanceQuota.WithLabelValues(string(pc.Platform), account).Set(balance.Quota)
		balanceUsed.WithLabelValues(string(pc.Platform), account).Set(balance.Used)
	}

	res := c.signIn(ctx, httpClient, pc, apiUser, balance, log)
	return c.finish(pc, start, res)
}

func (c *Client) finish(pc PlatformConfig, start time.Time, res Result) Result {
	status := "failure"
	if res.Success {
		status = "success"
	}
	checkinsTotal.WithLabelValues(string(pc.Platform), status).Inc()
	checkinDuration.WithLabelValues(string(pc.Platform)).Observe(time.Since(start).Seconds())
	return res
}

func (c *Client) newTransport(pc PlatformConfig, cookies map[string]string) (*http.Client, error) {
	base, err := url.Parse(pc.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	pairs := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		pairs = append(pairs, &http.Cookie{Name: name, Value: value})
	}
	jar.SetCookies(base, pairs)

	return &http.Client{
		Timeout: c.timeout,
		Jar:     jar,
	}, nil
}

func (c *Client) apiHeaders(pc PlatformConfig, apiUser string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", desktopUserAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	h.Set("Referer", pc.ConsoleURL())
	h.Set("Origin", pc.BaseURL)
	h.Set(pc.APIUserHeader, apiUser)
	return h
}

type selfResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		ID        int64 `json:"id"`
		Quota     int64 `json:"quota"`
		UsedQuota int64 `json:"used_quota"`
	} `json:"data"`
}

// fetchBalance reads the account's self endpoint. Best-effort: any failure
// is logged and yields nil, never aborting the check-in attempt.
func (c *Client) fetchBalance(ctx context.Context, httpClient *http.Client, pc PlatformConfig, apiUser string, log *logrus.Entry) *Balance {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pc.SelfURL(), nil)
	if err != nil {
		log.WithError(err).Warn("Failed to build self request")
		return nil
	}
	req.Header = c.apiHeaders(pc, apiUser)

	resp, err := httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("Failed to read account state")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		log.WithError(err).Warn("Failed to read self response body")
		return nil
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var parsed selfResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			log.WithError(err).Warn("Malformed self response")
			return nil
		}
		if !parsed.Success {
			msg := parsed.Message
			if msg == "" {
				msg = "unknown error"
			}
			log.WithField("api_message", msg).Warn("Self endpoint reported failure")
			return nil
		}
		b := &Balance{
			Quota: descaleQuota(parsed.Data.Quota),
			Used:  descaleQuota(parsed.Data.UsedQuota),
		}
		log.WithFields(logging.Fields{
			"quota": b.Quota,
			"used":  b.Used,
		}).Info("Account balance read")
		return b

	case http.StatusUnauthorized:
		// Expired session. The sign-in call is still attempted so the
		// outcome carries the platform's own verdict.
		log.WithField("login_url", pc.BaseURL+"/login").Error("Session cookie expired; re-authenticate and update the account configuration")
		return nil

	default:
		log.WithField("status", resp.StatusCode).Warn("Unexpected self response status")
		return nil
	}
}

func (c *Client) signIn(ctx context.Context, httpClient *http.Client, pc PlatformConfig, apiUser string, balance *Balance, log *logrus.Entry) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.SignInURL(), nil)
	if err != nil {
		return Result{Message: "check-in failed: " + truncateError(err)}
	}
	req.Header = c.apiHeaders(pc, apiUser)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := httpClient.Do(req)
	if err != nil {
		// Network-level failure: the balance from step 1 is not trusted
		// on this path.
		return Result{Message: "request error: " + truncateError(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{Message: "request error: " + truncateError(err)}
	}

	log.WithField("status", resp.StatusCode).Debug("Sign-in response received")

	switch {
	case resp.StatusCode == http.StatusOK:
		return interpretSignInBody(body, balance)

	case resp.StatusCode == http.StatusNotFound && balance != nil:
		// No distinct sign-in endpoint; a readable account state is the
		// success signal.
		return Result{Success: true, Message: msgKeepAliveOK, Balance: balance}

	case resp.StatusCode == http.StatusNotFound:
		return Result{Message: msgKeepAliveFailed}

	default:
		return Result{
			Message: fmt.Sprintf("check-in failed: HTTP %d", resp.StatusCode),
			Balance: balance,
		}
	}
}

// interpretSignInBody applies the tolerant verdict rules to an HTTP 200
// sign-in body, in order: structured success flags, then a raw substring
// fallback for platforms that answer with plain text.
func interpretSignInBody(body []byte, balance *Balance) Result {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		if strings.Contains(strings.ToLower(string(body)), "success") {
			return Result{Success: true, Message: msgCheckinOK, Balance: balance}
		}
		return Result{Message: "check-in failed: unparseable response", Balance: balance}
	}

	if isSignInSuccess(parsed) {
		return Result{Success: true, Message: msgCheckinOK, Balance: balance}
	}

	msg := stringField(parsed, "msg")
	if msg == "" {
		msg = stringField(parsed, "message")
	}
	if msg == "" {
		msg = "unknown error"
	}
	return Result{Message: "check-in failed: " + msg, Balance: balance}
}

func descaleQuota(raw int64) float64 {
	return math.Round(float64(raw)/quotaUnitScale*100) / 100
}

func truncateError(err error) string {
	s := err.Error()
	if len(s) > maxErrorSummaryLen {
		return s[:maxErrorSummaryLen]
	}
	return s
}

// isSignInSuccess checks the known success signals in order: legacy
// ret==1, new-style code==0, then a truthy success flag.
func isSignInSuccess(m map[string]any) bool {
	if v, ok := m["ret"].(float64); ok && v == 1 {
		return true
	}
	if v, ok := m["code"].(float64); ok && v == 0 {
		return true
	}
	return truthy(m["success"])
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && t != "false" && t != "0"
	default:
		return false
	}
}
