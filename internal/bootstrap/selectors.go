package bootstrap

// Login-page markup is not under our control and drifts over time, so
// every element is located through an ordered fallback chain: first
// structural match wins, later candidates are increasingly generic.

type elementLocator struct {
	css string
	// text, when set, is a regex matched against the element's text
	// content in addition to the css selector.
	text string
}

func (l elementLocator) String() string {
	if l.text != "" {
		return l.css + " ~ " + l.text
	}
	return l.css
}

var emailLocators = []elementLocator{
	{css: `input[type="email"]`},
	{css: `input[name="email"]`},
	{css: `input[placeholder*="邮箱"]`},
	{css: `input[placeholder*="Email"]`},
	{css: `input[placeholder*="email"]`},
}

var passwordLocators = []elementLocator{
	{css: `input[type="password"]`},
	{css: `input[name="password"]`},
}

var loginButtonLocators = []elementLocator{
	{css: `button[type="submit"]`},
	{css: `button`, text: `登录`},
	{css: `button`, text: `Login`},
	{css: `button`, text: `Sign in`},
	{css: `button.login-button`},
	{css: `input[type="submit"]`},
}

// errorMessageSelector is read best-effort after a failed login for
// diagnostics only.
const errorMessageSelector = `.error-message, .alert-danger, [class*="error"]`
