// Package locator finds the interactive elements of login pages by trying an
// ordered list of strategies until one of them matches.
package locator

import (
	"errors"
	"fmt"
	"strings"

	"moodlesync/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

type Role string

const (
	RoleUsername  Role = "username"
	RolePassword  Role = "password"
	RoleSubmit    Role = "submit"
	RoleLoginLink Role = "login-link"
	RoleSSOEntry  Role = "sso-entry"
)

var ErrNotFound = errors.New("element not found")

// NotFoundError lists the strategies that were tried for a role.
type NotFoundError struct {
	Role  Role
	Tried []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s (tried %s)", e.Role, ErrNotFound, strings.Join(e.Tried, ", "))
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Strategy is a pure lookup over a page, it returns every candidate it
// considers a match in preference order.
type Strategy struct {
	Name  string
	Match func(page *goquery.Selection) *goquery.Selection
}

// Chain is the ordered list of strategies for one role.
type Chain struct {
	Role       Role
	Strategies []Strategy
}

type Match struct {
	Role Role
	// Strategy is the name of the strategy that matched and Priority is its
	// 1-based position in the chain.
	Strategy string
	Priority int
	// Selector is a css selector matching exactly the element.
	Selector string
	Element  *goquery.Selection
}

// Resolve runs the strategies in order and returns the first usable
// candidate of the first strategy that has one. Strategies after it are not
// run.
func (c Chain) Resolve(page *goquery.Document) (Match, error) {
	tried := make([]string, 0, len(c.Strategies))
	for i, s := range c.Strategies {
		tried = append(tried, s.Name)

		candidates := s.Match(page.Selection)
		if candidates == nil {
			continue
		}
		for _, node := range candidates.Nodes {
			if !Usable(node) {
				continue
			}
			return Match{
				Role:     c.Role,
				Strategy: s.Name,
				Priority: i + 1,
				Selector: htmlutil.CSSPath(node),
				Element:  goquery.NewDocumentFromNode(node).Selection,
			}, nil
		}
	}
	return Match{}, &NotFoundError{Role: c.Role, Tried: tried}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hiddenByStyle(n *html.Node) bool {
	style, ok := attr(n, "style")
	if !ok {
		return false
	}
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// Usable reports whether an element is visible and enabled as far as the
// markup tells: hidden inputs, disabled controls and anything under a
// hidden ancestor are not.
func Usable(node *html.Node) bool {
	if node == nil || node.Type != html.ElementNode {
		return false
	}
	if t, _ := attr(node, "type"); strings.EqualFold(t, "hidden") {
		return false
	}
	if _, disabled := attr(node, "disabled"); disabled {
		return false
	}
	for n := node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if _, hidden := attr(n, "hidden"); hidden {
			return false
		}
		if v, _ := attr(n, "aria-hidden"); v == "true" {
			return false
		}
		if hiddenByStyle(n) {
			return false
		}
		if n.Data == "template" {
			return false
		}
	}
	return true
}
