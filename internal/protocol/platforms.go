package protocol

import (
	"time"

	"steward/internal/accounts"
)

// Balance is an account balance snapshot in normalized currency units.
type Balance struct {
	Quota float64 `json:"quota"`
	Used  float64 `json:"used"`
}

// Total returns lifetime recharge: available plus consumed.
func (b Balance) Total() float64 {
	return b.Quota + b.Used
}

// Outcome is the result of processing one account in one run.
type Outcome struct {
	Platform  accounts.Platform `json:"platform"`
	Account   string            `json:"account"`
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Balance   *Balance          `json:"balance,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// PlatformConfig describes how to reach one platform: entry points for WAF
// cookie harvesting, login page candidates, and the API surface.
type PlatformConfig struct {
	Platform accounts.Platform
	BaseURL  string

	// WAFURLs are entry points tried in order when harvesting anti-bot
	// cookies. WAFRequired marks platforms whose API rejects requests
	// without them.
	WAFURLs       []string
	WAFRequired   bool
	WAFNavTimeout time.Duration

	// LoginURLs are candidate login pages for the credential flow.
	// Empty when the platform only supports cookie-based auth.
	LoginURLs []string

	// APIUserHeader carries the account identifier on API requests.
	APIUserHeader string
}

func (pc PlatformConfig) ConsoleURL() string { return pc.BaseURL + "/console" }
func (pc PlatformConfig) SelfURL() string    { return pc.BaseURL + "/api/user/self" }
func (pc PlatformConfig) SignInURL() string  { return pc.BaseURL + "/api/user/sign_in" }

// SupportsCredentialLogin reports whether the platform has a browsable
// login form this client knows how to drive.
func (pc PlatformConfig) SupportsCredentialLogin() bool {
	return len(pc.LoginURLs) > 0
}

// Platforms returns the supported platform set in processing order.
func Platforms() []PlatformConfig {
	return []PlatformConfig{
		{
			Platform:      accounts.AnyRouter,
			BaseURL:       "https://anyrouter.top",
			WAFURLs:       []string{"https://anyrouter.top/login"},
			WAFRequired:   true,
			WAFNavTimeout: 30 * time.Second,
			APIUserHeader: "new-api-user",
		},
		{
			Platform:      accounts.AgentRouter,
			BaseURL:       "https://agentrouter.org",
			WAFURLs:       []string{"https://agentrouter.org", "https://agentrouter.org/console"},
			WAFRequired:   false,
			WAFNavTimeout: 20 * time.Second,
			LoginURLs: []string{
				"https://agentrouter.org/login",
				"https://agentrouter.org/#/login",
				"https://agentrouter.org",
			},
			APIUserHeader: "new-api-user",
		},
	}
}

// Lookup resolves the config for a platform tag.
func Lookup(p accounts.Platform) (PlatformConfig, bool) {
	for _, pc := range Platforms() {
		if pc.Platform == p {
			return pc, true
		}
	}
	return PlatformConfig{}, false
}
