package browser

import (
	"context"
	"strings"
	"testing"
	"time"

	"moodlesync/internal/components/telemetry"
	"moodlesync/lib/platforms/moodle/locator"

	"github.com/stretchr/testify/require"
)

const base = "https://moodle.example.edu"

func newTestSession(t *testing.T, page *fakePage, sink CaptureSink) (*Session, *telemetry.Recorder) {
	t.Helper()
	rec := &telemetry.Recorder{}
	session, err := NewSession(page, Options{
		BaseUrl:      base + "/",
		Telemetry:    rec,
		Capture:      sink,
		SignInWait:   time.Millisecond * 40,
		PageWait:     time.Millisecond * 40,
		PollInterval: time.Millisecond * 5,
	})
	require.NoError(t, err)
	return session, rec
}

func submitWhen(username, password, success string) func(p *fakePage, selector string) string {
	return func(p *fakePage, _ string) string {
		if p.fills["username"] == username && p.fills["password"] == password {
			return success
		}
		return base + "/login/index.php?error"
	}
}

func TestLoginNativeForm(t *testing.T) {
	page := newFakePage(map[string]string{
		base:                      fixture(t, "front_page.html"),
		base + "/login/index.php": fixture(t, "login.html"),
		base + "/my/":             fixture(t, "dashboard.html"),
	})
	page.onSubmit = submitWhen("student", "hunter2", base+"/my/")
	sink := &memorySink{}
	session, _ := newTestSession(t, page, sink)

	err := session.Login(context.Background(), "student", "hunter2")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"username": "student", "password": "hunter2"}, page.fills)
	require.Equal(t, []string{"#loginbtn"}, page.clicks[1:])
	require.Empty(t, sink.files)
}

func TestLoginRejected(t *testing.T) {
	rejected := strings.Replace(
		fixture(t, "login.html"),
		`<div class="loginform">`,
		`<div class="loginform"><div class="alert alert-danger" id="loginerrormessage">Invalid login, please try again</div>`,
		1,
	)
	page := newFakePage(map[string]string{
		base:                            fixture(t, "front_page.html"),
		base + "/login/index.php":       fixture(t, "login.html"),
		base + "/login/index.php?error": rejected,
	})
	page.onSubmit = submitWhen("student", "hunter2", base+"/my/")
	sink := &memorySink{}
	session, rec := newTestSession(t, page, sink)

	err := session.Login(context.Background(), "student", "wrong")
	require.ErrorIs(t, err, ErrRejected)
	require.ErrorContains(t, err, "Invalid login")

	var loginErr *LoginError
	require.ErrorAs(t, err, &loginErr)
	require.Equal(t, "wait-signed-in", loginErr.Stage)
	require.Equal(t, 1, loginErr.Attempt)

	require.Contains(t, sink.files, "moodle_login_failed.png")
	require.Contains(t, sink.files, "moodle_login_failed.html")
	require.Len(t, rec.Find(telemetry.KindBroken, report_session_login), 1)
}

func TestLoginAlreadySignedIn(t *testing.T) {
	page := newFakePage(map[string]string{
		base: fixture(t, "dashboard.html"),
	})
	session, _ := newTestSession(t, page, nil)

	require.NoError(t, session.Login(context.Background(), "student", "hunter2"))
	require.Empty(t, page.fills)
	require.Empty(t, page.clicks)
}

func TestLoginNoForm(t *testing.T) {
	maintenance := `<html><body><h1>Site is under maintenance</h1></body></html>`
	page := newFakePage(map[string]string{
		base:                      maintenance,
		base + "/login/index.php": maintenance,
	})
	sink := &memorySink{}
	session, _ := newTestSession(t, page, sink)

	err := session.Login(context.Background(), "student", "hunter2")
	require.ErrorIs(t, err, locator.ErrNotFound)

	var loginErr *LoginError
	require.ErrorAs(t, err, &loginErr)
	require.Equal(t, "submit-credentials", loginErr.Stage)
	require.Len(t, sink.files, 2)
	require.Equal(t, 1, page.shots)
}

func TestLoginSingleSignOn(t *testing.T) {
	page := newFakePage(map[string]string{
		base:                      fixture(t, "front_page.html"),
		base + "/login/index.php": fixture(t, "sso_only.html"),
		base + "/my/":             fixture(t, "dashboard.html"),

		"https://sso.example.edu/adfs/ls/?wa=wsignin1.0": fixture(t, "adfs.html"),
	})
	page.onSubmit = func(p *fakePage, selector string) string {
		require.Equal(t, "#submitButton", selector)
		if p.fills["userNameInput"] == "student@example.edu" && p.fills["passwordInput"] == "hunter2" {
			return base + "/my/"
		}
		return p.current
	}
	session, _ := newTestSession(t, page, nil)

	err := session.Login(context.Background(), "student@example.edu", "hunter2")
	require.NoError(t, err)
	require.Len(t, page.clicks, 3)
}

func TestCourses(t *testing.T) {
	page := newFakePage(map[string]string{
		base + "/my/": fixture(t, "dashboard.html"),
	})
	session, _ := newTestSession(t, page, nil)

	courses, err := session.Courses(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Course{
		{ID: "12", Name: "Data Structures", URL: base + "/course/view.php?id=12"},
		{ID: "15", Name: "Operating Systems", URL: base + "/course/view.php?id=15"},
	}, courses)
}

func TestCoursesFallsBackToCoursesPage(t *testing.T) {
	page := newFakePage(map[string]string{
		base + "/my/":            `<html><body><div class="usermenu">Student</div></body></html>`,
		base + "/my/courses.php": fixture(t, "dashboard.html"),
	})
	session, _ := newTestSession(t, page, nil)

	courses, err := session.Courses(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 2)
}

func TestCourseContentsMissing(t *testing.T) {
	page := newFakePage(map[string]string{
		base + "/course/view.php?id=3": `<html><body><div class="course-content"></div></body></html>`,
	})
	session, rec := newTestSession(t, page, nil)

	_, err := session.CourseContents(context.Background(), "3")
	require.ErrorIs(t, err, ErrNoSections)
	require.Len(t, rec.Find(telemetry.KindWarning, report_session_course_contents), 1)
}

func TestSessionClose(t *testing.T) {
	page := newFakePage(nil)
	session, _ := newTestSession(t, page, nil)
	require.NoError(t, session.Close())
	require.Equal(t, 1, page.closed)
}
