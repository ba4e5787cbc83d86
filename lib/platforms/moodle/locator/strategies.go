package locator

import (
	"slices"
	"strings"

	"moodlesync/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// BySelectors matches the selectors one after another, so that earlier
// selectors win over later ones regardless of document order.
func BySelectors(name string, selectors ...string) Strategy {
	return Strategy{
		Name: name,
		Match: func(page *goquery.Selection) *goquery.Selection {
			out := page.Find("#__locator_none__")
			for _, s := range selectors {
				out = out.AddSelection(page.Find(s))
			}
			return out
		},
	}
}

// ByAttrContains matches elements of the given css selector where any of
// attrs contains any of needles, ignoring case.
func ByAttrContains(name, selector string, attrs, needles []string) Strategy {
	return Strategy{
		Name: name,
		Match: func(page *goquery.Selection) *goquery.Selection {
			return page.Find(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
				for _, a := range attrs {
					value, ok := s.Attr(a)
					if !ok {
						continue
					}
					value = strings.ToLower(value)
					for _, n := range needles {
						if strings.Contains(value, strings.ToLower(n)) {
							return true
						}
					}
				}
				return false
			})
		},
	}
}

// ByText matches elements of the given css selector whose text, or value for
// inputs, contains any of needles, ignoring case.
func ByText(name, selector string, needles []string) Strategy {
	return Strategy{
		Name: name,
		Match: func(page *goquery.Selection) *goquery.Selection {
			return page.Find(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
				text := strings.ToLower(htmlutil.Text(s) + " " + s.AttrOr("value", ""))
				for _, n := range needles {
					if strings.Contains(text, strings.ToLower(n)) {
						return true
					}
				}
				return false
			})
		},
	}
}

// Any concatenates the candidates of several lookups under a single name.
func Any(name string, strategies ...Strategy) Strategy {
	return Strategy{
		Name: name,
		Match: func(page *goquery.Selection) *goquery.Selection {
			out := page.Find("#__locator_none__")
			for _, s := range strategies {
				if m := s.Match(page); m != nil {
					out = out.AddSelection(m)
				}
			}
			return out
		},
	}
}

// Chains holds the chain of every role, each follows the same priority:
// the native moodle form, known sso providers, name attributes, semantic
// attributes and finally the first element of the expected kind.
type Chains struct {
	Username  Chain
	Password  Chain
	Submit    Chain
	LoginLink Chain
	SSOEntry  Chain
}

func (c Chains) ForRole(role Role) Chain {
	switch role {
	case RoleUsername:
		return c.Username
	case RolePassword:
		return c.Password
	case RoleSubmit:
		return c.Submit
	case RoleLoginLink:
		return c.LoginLink
	case RoleSSOEntry:
		return c.SSOEntry
	}
	return Chain{Role: role}
}

const textInput = `input:not([type]), input[type="text"], input[type="email"]`

var usernameChain = Chain{
	Role: RoleUsername,
	Strategies: []Strategy{
		BySelectors("native-id", "input#username"),
		BySelectors(
			"sso-id",
			"input#userNameInput", // adfs
			"input#i0116",         // microsoft
			"input#identifierId",  // google
			"input#user",
			"input#userid",
			"input#login",
			"input#j_username", // shibboleth
		),
		BySelectors(
			"name-attr",
			`input[name="username"]`,
			`input[name="loginfmt"]`,
			`input[name="user"]`,
			`input[name="j_username"]`,
			`input[name="identifier"]`,
		),
		Any(
			"semantic",
			BySelectors("autocomplete", `input[autocomplete="username"]`, `input[type="email"]`),
			ByAttrContains(
				"placeholder", textInput,
				[]string{"placeholder", "aria-label", "title"},
				[]string{"username", "user name", "email", "account", "帳號", "账号", "學號", "学号", "使用者名稱", "用户名"},
			),
		),
		BySelectors("first-visible", `input[type="text"]`, textInput),
	},
}

var passwordChain = Chain{
	Role: RolePassword,
	Strategies: []Strategy{
		BySelectors("native-id", "input#password"),
		BySelectors(
			"sso-id",
			"input#passwordInput", // adfs
			"input#i0118",         // microsoft
			"input#pass",
			"input#passwd",
			"input#j_password", // shibboleth
		),
		BySelectors(
			"name-attr",
			`input[name="password"]`,
			`input[name="passwd"]`,
			`input[name="Passwd"]`,
			`input[name="pass"]`,
			`input[name="j_password"]`,
		),
		Any(
			"semantic",
			BySelectors("autocomplete", `input[autocomplete="current-password"]`),
			ByAttrContains(
				"placeholder", "input",
				[]string{"placeholder", "aria-label", "title"},
				[]string{"password", "密碼", "密码"},
			),
		),
		BySelectors("first-visible", `input[type="password"]`),
	},
}

var submitNeedles = []string{"log in", "login", "sign in", "signin", "next", "登入", "登录", "登錄", "下一步"}

var submitChain = Chain{
	Role: RoleSubmit,
	Strategies: []Strategy{
		BySelectors("native-id", "#loginbtn"),
		BySelectors(
			"sso-id",
			"#submitButton", // adfs
			"#idSIButton9",  // microsoft
			"#identifierNext",
			"#passwordNext",
			"#submit",
			"button#login",
			"input#login",
		),
		BySelectors(
			"name-attr",
			`[name="submit"]`,
			`[name="_eventId_proceed"]`,
			`button[name="login"]`,
			`input[name="login"]`,
		),
		Any(
			"semantic",
			BySelectors("submit-type", `button[type="submit"]`, `input[type="submit"]`),
			ByText("text", `button, input[type="button"], [role="button"]`, submitNeedles),
		),
		BySelectors("first-visible", "button"),
	},
}

var loginLinkChain = Chain{
	Role: RoleLoginLink,
	Strategies: []Strategy{
		BySelectors("native-id", `.usermenu .login a`, `a[href$="/login/index.php"]`),
		ByText("text", "a", []string{"登入", "登录", "log in", "login", "sign in"}),
		ByAttrContains("href", "a", []string{"href"}, []string{"/login/"}),
	},
}

var ssoEntryChain = Chain{
	Role: RoleSSOEntry,
	Strategies: []Strategy{
		BySelectors("native-id", ".potentialidplist a", ".login-identityproviders a", "a.login-identityprovider-btn"),
		ByAttrContains(
			"sso-href", "a", []string{"href"},
			[]string{"auth/oauth2/login.php", "auth/saml2", "auth/shibboleth", "auth/cas", "auth/oidc", "/sso/"},
		),
		ByText("text", `a, button`, []string{"single sign-on", "single sign on", "sso login", "單一登入", "单点登录", "校園入口", "microsoft", "google"}),
	},
}

// clone returns the chain with its own strategy slice.
func (c Chain) clone() Chain {
	c.Strategies = slices.Clone(c.Strategies)
	return c
}

// DefaultChains returns a copy of the built in chains, callers may reorder
// or extend it without affecting later calls.
func DefaultChains() Chains {
	return Chains{
		Username:  usernameChain.clone(),
		Password:  passwordChain.clone(),
		Submit:    submitChain.clone(),
		LoginLink: loginLinkChain.clone(),
		SSOEntry:  ssoEntryChain.clone(),
	}
}
