package accounts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Platform identifies a supported check-in platform.
type Platform string

const (
	AnyRouter   Platform = "anyrouter"
	AgentRouter Platform = "agentrouter"
)

// DisplayName returns the human-facing platform name used in reports.
func (p Platform) DisplayName() string {
	switch p {
	case AnyRouter:
		return "AnyRouter"
	case AgentRouter:
		return "AgentRouter"
	default:
		return string(p)
	}
}

// Account is one configured platform login. Constructed from external
// configuration at the start of a run and immutable afterwards.
type Account struct {
	Name     string          `json:"name"`
	Platform Platform        `json:"-"`
	Cookies  json.RawMessage `json:"cookies"`
	APIUser  string          `json:"api_user"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
}

// UsesCredentials reports whether the account authenticates with an
// email/password login flow instead of a pre-captured cookie blob.
func (a Account) UsesCredentials() bool {
	return a.Email != "" && a.Password != ""
}

// Key returns the ledger key for this account. Uniqueness depends on
// account names being unique per platform; duplicates overwrite.
func (a Account) Key() string {
	return fmt.Sprintf("%s_%s", a.Platform, a.Name)
}

// CookieMap parses the raw cookie blob into name/value pairs. The blob is
// either a JSON object of strings or a browser-copied "k=v; k2=v2" string.
func (a Account) CookieMap() (map[string]string, error) {
	if len(a.Cookies) == 0 {
		return nil, fmt.Errorf("no cookies configured")
	}

	var obj map[string]string
	if err := json.Unmarshal(a.Cookies, &obj); err == nil {
		if len(obj) == 0 {
			return nil, fmt.Errorf("empty cookie object")
		}
		return obj, nil
	}

	var raw string
	if err := json.Unmarshal(a.Cookies, &raw); err != nil {
		return nil, fmt.Errorf("cookies must be an object or a cookie string")
	}
	return parseCookieString(raw)
}

func parseCookieString(raw string) (map[string]string, error) {
	cookies := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name != "" && value != "" {
			cookies[name] = value
		}
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("no cookie pairs found in %q", raw)
	}
	return cookies, nil
}

// Parse decodes a JSON account list for one platform. Accounts without a
// name get a positional default so ledger keys stay stable across runs.
func Parse(platform Platform, raw string) ([]Account, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var list []Account
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("parse %s accounts: %w", platform, err)
	}

	for i := range list {
		list[i].Platform = platform
		if strings.TrimSpace(list[i].Name) == "" {
			list[i].Name = fmt.Sprintf("%s account %d", platform.DisplayName(), i+1)
		}
	}
	return list, nil
}
