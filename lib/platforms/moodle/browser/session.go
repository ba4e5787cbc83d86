// Package browser signs in to moodle through a real browser and reads courses
// from the rendered pages, for sites that do not expose web services.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"moodlesync/internal/components/assert"
	"moodlesync/internal/components/telemetry"
	"moodlesync/lib/platforms/moodle/locator"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_session_login           = "session.login"
	report_session_capture         = "session.capture"
	report_session_courses         = "session.courses"
	report_session_course_contents = "session.course-contents"
)

const (
	defaultSignInWait   = time.Second * 15
	defaultPageWait     = time.Second * 10
	defaultPollInterval = time.Millisecond * 500
)

var (
	ErrSignInTimeout  = errors.New("timed out waiting for the signed in page")
	ErrRejected       = errors.New("sign in rejected")
	ErrNoSections     = errors.New("no sections found on course page")
	ErrSessionExpired = errors.New("redirected to the login page")

	errWaitTimeout = errors.New("wait timed out")
)

// LoginError is a failed sign in, Stage names the step that failed.
type LoginError struct {
	Stage   string
	Attempt int
	Err     error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("browser login (attempt %d) failed at %s: %s", e.Attempt, e.Stage, e.Err)
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

type Options struct {
	BaseUrl string
	// Telemetry defaults to telemetry.SlogAPI.
	Telemetry telemetry.API
	// Capture receives a screenshot and the markup of the page when signing
	// in fails, it may be nil.
	Capture CaptureSink
	// Chains defaults to locator.DefaultChains().
	Chains *locator.Chains

	SignInWait   time.Duration
	PageWait     time.Duration
	PollInterval time.Duration
}

// Session owns a Page for its whole life, Close releases it.
type Session struct {
	page   Page
	base   *url.URL
	tel    telemetry.API
	sink   CaptureSink
	chains locator.Chains

	signInWait time.Duration
	pageWait   time.Duration
	poll       time.Duration

	attempts int
}

func NewSession(page Page, opts Options) (*Session, error) {
	assert.NotNil(page)
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.SlogAPI{}
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseUrl, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", opts.BaseUrl)
	}

	s := &Session{
		page:       page,
		base:       base,
		tel:        telemetry.NewScopedAPI("moodle_browser", opts.Telemetry),
		sink:       opts.Capture,
		chains:     locator.DefaultChains(),
		signInWait: defaultSignInWait,
		pageWait:   defaultPageWait,
		poll:       defaultPollInterval,
	}
	if opts.Chains != nil {
		s.chains = *opts.Chains
	}
	if opts.SignInWait > 0 {
		s.signInWait = opts.SignInWait
	}
	if opts.PageWait > 0 {
		s.pageWait = opts.PageWait
	}
	if opts.PollInterval > 0 {
		s.poll = opts.PollInterval
	}
	return s, nil
}

func (s *Session) Close() error {
	return s.page.Close()
}

func (s *Session) pageURL(path string) string {
	return s.base.String() + path
}

func (s *Session) snapshot(ctx context.Context) (*goquery.Document, string, error) {
	snap, err := s.page.Snapshot(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("snapshot: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return nil, "", fmt.Errorf("parse page: %w", err)
	}
	return doc, snap.URL, nil
}

// waitFor polls the page until cond holds or timeout passes. On timeout the
// last page seen is returned along with errWaitTimeout.
func (s *Session) waitFor(
	ctx context.Context,
	timeout time.Duration,
	cond func(doc *goquery.Document, pageUrl string) bool,
) (*goquery.Document, string, error) {
	deadline := time.Now().Add(timeout)
	for {
		doc, pageUrl, err := s.snapshot(ctx)
		if err == nil && cond(doc, pageUrl) {
			return doc, pageUrl, nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return nil, "", err
			}
			return doc, pageUrl, errWaitTimeout
		}
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(s.poll):
		}
	}
}

func (s *Session) resolves(role locator.Role, doc *goquery.Document) bool {
	_, err := s.chains.ForRole(role).Resolve(doc)
	return err == nil
}

// hasLoginForm needs a password field or a username field found by one of
// the specific strategies, a lone text input could be a search box.
func (s *Session) hasLoginForm(doc *goquery.Document) bool {
	if s.resolves(locator.RolePassword, doc) {
		return true
	}
	match, err := s.chains.Username.Resolve(doc)
	return err == nil && match.Priority <= 3
}

func (s *Session) onDashboard(pageUrl string) bool {
	u, err := url.Parse(pageUrl)
	if err != nil || u.Host != s.base.Host {
		return false
	}
	path := strings.TrimPrefix(u.Path, s.base.Path)
	return strings.HasPrefix(path, "/my") ||
		strings.Contains(path, "dashboard") ||
		strings.HasPrefix(path, "/course/")
}

func (s *Session) click(ctx context.Context, attempt int, match locator.Match) error {
	s.tel.ReportDebug("click", attempt, match.Role, match.Strategy, match.Selector)
	err := s.page.Click(ctx, match.Selector)
	if err != nil {
		return fmt.Errorf("click %s: %w", match.Role, err)
	}
	return nil
}

func (s *Session) fill(ctx context.Context, attempt int, match locator.Match, value string) error {
	s.tel.ReportDebug("fill", attempt, match.Role, match.Strategy, match.Priority)
	err := s.page.Fill(ctx, match.Selector, value)
	if err != nil {
		return fmt.Errorf("fill %s: %w", match.Role, err)
	}
	return nil
}

func (s *Session) fail(ctx context.Context, attempt int, stage string, err error) error {
	s.tel.ReportBroken(report_session_login, err, stage, attempt)
	s.capture(ctx, "login_failed")
	return &LoginError{Stage: stage, Attempt: attempt, Err: err}
}

// Login signs in unless the browser already is. It follows the login link
// and a single sign-on entry when the page needs it, fills the credentials
// and waits for the signed in marker or a dashboard url.
func (s *Session) Login(ctx context.Context, username, password string) error {
	s.attempts++
	attempt := s.attempts

	err := s.page.Navigate(ctx, s.base.String())
	if err != nil {
		return s.fail(ctx, attempt, "navigate", err)
	}
	doc, _, err := s.snapshot(ctx)
	if err != nil {
		return s.fail(ctx, attempt, "navigate", err)
	}
	if SignedIn(doc) {
		s.tel.ReportDebug("already signed in", attempt)
		return nil
	}

	doc, err = s.reachLoginForm(ctx, attempt, doc)
	if err != nil {
		return s.fail(ctx, attempt, "find-login-form", err)
	}
	err = s.submitCredentials(ctx, attempt, doc, username, password)
	if err != nil {
		return s.fail(ctx, attempt, "submit-credentials", err)
	}

	doc, _, err = s.waitFor(ctx, s.signInWait, func(d *goquery.Document, pageUrl string) bool {
		return SignedIn(d) || s.onDashboard(pageUrl)
	})
	if errors.Is(err, errWaitTimeout) {
		err = ErrSignInTimeout
		if msg := LoginErrorMessage(doc); msg != "" {
			err = fmt.Errorf("%w: %s", ErrRejected, msg)
		}
	}
	if err != nil {
		return s.fail(ctx, attempt, "wait-signed-in", err)
	}

	s.tel.ReportDebug("signed in", attempt)
	return nil
}

func (s *Session) reachLoginForm(ctx context.Context, attempt int, doc *goquery.Document) (*goquery.Document, error) {
	if !s.hasLoginForm(doc) {
		link, err := s.chains.LoginLink.Resolve(doc)
		if err == nil {
			err = s.click(ctx, attempt, link)
		} else {
			err = s.page.Navigate(ctx, s.pageURL("/login/index.php"))
		}
		if err != nil {
			return nil, err
		}

		doc, _, err = s.waitFor(ctx, s.pageWait, func(d *goquery.Document, _ string) bool {
			return s.hasLoginForm(d) || s.resolves(locator.RoleSSOEntry, d)
		})
		if err != nil && !errors.Is(err, errWaitTimeout) {
			return nil, err
		}
	}

	// a page with both the native form and identity provider buttons uses
	// the native form
	if s.resolves(locator.RolePassword, doc) {
		return doc, nil
	}
	entry, err := s.chains.SSOEntry.Resolve(doc)
	if err != nil {
		return doc, nil
	}
	err = s.click(ctx, attempt, entry)
	if err != nil {
		return nil, err
	}
	doc, _, err = s.waitFor(ctx, s.pageWait, func(d *goquery.Document, _ string) bool {
		return s.hasLoginForm(d)
	})
	if err != nil && !errors.Is(err, errWaitTimeout) {
		return nil, err
	}
	return doc, nil
}

func (s *Session) submitCredentials(ctx context.Context, attempt int, doc *goquery.Document, username, password string) error {
	user, err := s.chains.Username.Resolve(doc)
	if err != nil {
		return err
	}
	err = s.fill(ctx, attempt, user, username)
	if err != nil {
		return err
	}

	pass, err := s.chains.Password.Resolve(doc)
	if err != nil {
		// identifier-first providers ask for the password on a second page
		next, err := s.chains.Submit.Resolve(doc)
		if err != nil {
			return err
		}
		err = s.click(ctx, attempt, next)
		if err != nil {
			return err
		}
		doc, _, err = s.waitFor(ctx, s.pageWait, func(d *goquery.Document, _ string) bool {
			return s.resolves(locator.RolePassword, d)
		})
		if err != nil && !errors.Is(err, errWaitTimeout) {
			return err
		}
		pass, err = s.chains.Password.Resolve(doc)
		if err != nil {
			return err
		}
	}
	err = s.fill(ctx, attempt, pass, password)
	if err != nil {
		return err
	}

	submit, err := s.chains.Submit.Resolve(doc)
	if err != nil {
		return err
	}
	return s.click(ctx, attempt, submit)
}

var dashboardPaths = []string{"/my/", "/my/courses.php"}

// Courses lists the courses linked from the dashboard. Moodle renders the
// course overview with javascript so the page is polled until links show up.
func (s *Session) Courses(ctx context.Context) ([]Course, error) {
	courses := []Course{}
	for _, path := range dashboardPaths {
		err := s.page.Navigate(ctx, s.pageURL(path))
		if err != nil {
			s.tel.ReportBroken(report_session_courses, err, path)
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		doc, pageUrl, err := s.waitFor(ctx, s.pageWait, func(d *goquery.Document, _ string) bool {
			return len(ParseCourses(ctx, s.base, d)) > 0
		})
		if err != nil && !errors.Is(err, errWaitTimeout) {
			return nil, err
		}
		if strings.Contains(pageUrl, "/login/") {
			return nil, ErrSessionExpired
		}
		courses = ParseCourses(ctx, s.base, doc)
		if len(courses) > 0 {
			s.tel.ReportCount(report_session_courses, int64(len(courses)))
			return courses, nil
		}
	}
	s.tel.ReportWarning(report_session_courses, "no course links found", dashboardPaths)
	return courses, nil
}

// CourseContents reads the sections of a course page in order.
func (s *Session) CourseContents(ctx context.Context, courseID string) ([]Section, error) {
	pageUrl := s.pageURL("/course/view.php?id=" + url.QueryEscape(courseID))
	err := s.page.Navigate(ctx, pageUrl)
	if err != nil {
		s.tel.ReportBroken(report_session_course_contents, err, courseID)
		return nil, fmt.Errorf("open course %s: %w", courseID, err)
	}

	doc, current, err := s.waitFor(ctx, s.pageWait, func(d *goquery.Document, _ string) bool {
		return len(ParseSections(s.base, d)) > 0
	})
	if err != nil && !errors.Is(err, errWaitTimeout) {
		return nil, err
	}
	if strings.Contains(current, "/login/") {
		return nil, ErrSessionExpired
	}
	sections := ParseSections(s.base, doc)
	if len(sections) == 0 {
		s.tel.ReportWarning(report_session_course_contents, ErrNoSections, courseID)
		return nil, fmt.Errorf("course %s: %w", courseID, ErrNoSections)
	}
	return sections, nil
}
