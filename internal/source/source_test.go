package source

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"moodlesync/internal/components/telemetry"
	"moodlesync/internal/model"
	"moodlesync/lib/platforms/moodle/browser"
	"moodlesync/lib/platforms/moodle/webservice"
	"moodlesync/lib/platforms/moodle/webservice/wstest"

	"github.com/stretchr/testify/require"
)

// stubPage serves markup by url for a browser that is already signed in.
type stubPage struct {
	routes  map[string]string
	current string
	closed  int
}

func (p *stubPage) Navigate(_ context.Context, target string) error {
	if _, ok := p.routes[target]; !ok {
		return errors.New("no route for " + target)
	}
	p.current = target
	return nil
}

func (p *stubPage) Snapshot(context.Context) (browser.Snapshot, error) {
	return browser.Snapshot{URL: p.current, HTML: p.routes[p.current]}, nil
}

func (p *stubPage) Fill(context.Context, string, string) error { return nil }
func (p *stubPage) Click(context.Context, string) error { return nil }
func (p *stubPage) Screenshot(context.Context) ([]byte, error) { return nil, nil }
func (p *stubPage) Close() error {
	p.closed++
	return nil
}

const signedInMenu = `<div class="usermenu"><a href="/login/logout.php?sesskey=abc">Log out</a></div>`

func signedInSite(base string) map[string]string {
	return map[string]string{
		base: `<html><body>` + signedInMenu + `</body></html>`,
		base + "/my/": `<html><body>` + signedInMenu + `
			<div class="coursename"><a href="/course/view.php?id=7">Compilers</a></div>
			<div class="coursename"><a href="/course/view.php?id=8">Networks</a></div>
		</body></html>`,
		base + "/course/view.php?id=7": `<html><body>` + signedInMenu + `
			<ul><li class="section main"><h3 class="sectionname">Week 1</h3>
				<ul><li class="activity assign modtype_assign">
					<a class="aalink" href="/mod/assign/view.php?id=70"><span class="instancename">Parser</span></a>
				</li></ul>
			</li></ul>
		</body></html>`,
	}
}

func launcherFor(page *stubPage, launches *int) Launcher {
	return func(context.Context) (browser.Page, error) {
		*launches++
		return page, nil
	}
}

func serveCourses(server *wstest.Server) {
	server.Handle(webservice.FunctionSiteInfo, webservice.SiteInfo{SiteName: "Example", Username: "student", UserID: 5})
	server.HandleFunc(webservice.FunctionUsersCourses, func(form url.Values) any {
		if form.Get("userid") != "5" {
			return &wstest.Exception{Exception: "moodle_exception", ErrorCode: "nopermissions"}
		}
		return []webservice.Course{
			{ID: 12, FullName: "Data Structures", Summary: "<p>Lists and trees</p>"},
			{ID: 15, ShortName: "OS"},
		}
	})
}

func TestNewValidatesConfiguration(t *testing.T) {
	table := []struct {
		name string
		opts Options
	}{
		{name: "missing base url", opts: Options{Username: "u", Password: "p"}},
		{name: "missing username", opts: Options{BaseUrl: "https://moodle.example.edu", Password: "p"}},
		{name: "missing password", opts: Options{BaseUrl: "https://moodle.example.edu", Username: "u"}},
		{name: "unknown mode", opts: Options{BaseUrl: "https://moodle.example.edu", Username: "u", Password: "p", Mode: "carrier-pigeon"}},
	}
	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			_, err := New(row.opts)
			require.ErrorIs(t, err, model.ErrConfiguration)
		})
	}

	src, err := New(Options{BaseUrl: "https://moodle.example.edu", Username: "u", Password: "p"})
	require.NoError(t, err)
	require.Equal(t, ModeToken, src.Mode())
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode(" Browser ")
	require.NoError(t, err)
	require.Equal(t, ModeBrowser, mode)

	mode, err = ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ModeToken, mode)

	_, err = ParseMode("scrape")
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestTokenSource(t *testing.T) {
	server := wstest.NewServer(t, "student", "hunter2")
	serveCourses(server)
	server.Handle(webservice.FunctionCourseContents, []webservice.Section{
		{Section: 0, Name: "General", Modules: []webservice.Module{
			{ID: 70, ModName: "assign", Name: "Parser", URL: server.URL + "/mod/assign/view.php?id=70"},
		}},
	})
	server.Handle(webservice.FunctionAssignments, webservice.AssignmentsResponse{
		Courses: []webservice.AssignmentCourse{{
			ID:       12,
			FullName: "Data Structures",
			Assignments: []webservice.Assignment{
				{ID: 1, CMID: 70, Name: "Parser", DueDate: 1718000000},
			},
		}},
		Warnings: []webservice.Warning{{Item: "course", ItemID: 99, WarningCode: "1", Message: "No access rights in module context"}},
	})

	rec := &telemetry.Recorder{}
	src, err := NewToken(Options{BaseUrl: server.URL, Username: "student", Password: "hunter2", Telemetry: rec})
	require.NoError(t, err)

	courses, err := src.Courses(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.Course{
		{ID: "12", Name: "Data Structures", URL: server.URL + "/course/view.php?id=12", Description: "<p>Lists and trees</p>"},
		{ID: "15", Name: "OS", URL: server.URL + "/course/view.php?id=15"},
	}, courses)

	sections, err := src.CourseContents(context.Background(), "12")
	require.NoError(t, err)
	require.Len(t, sections, 1)
	require.Equal(t, model.ActivityAssignment, sections[0].Activities[0].Type)

	assignments, err := src.Assignments(context.Background(), []model.CourseWithContents{
		{Course: courses[0]},
		{Course: model.Course{ID: "not-a-number"}},
	})
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.Equal(t, "70", assignments[0].ID)
	require.Equal(t, int64(1718000000), assignments[0].DueDate.Unix())
	require.Len(t, rec.Find(telemetry.KindWarning, report_token_assignments), 1)

	calls := server.Calls()
	last := calls[len(calls)-1]
	require.Equal(t, "12", last.Get("courseids[0]"))
	require.False(t, last.Has("courseids[1]"))

	// the token and the user id are only requested once
	require.Equal(t, 1, server.CallCount(webservice.FunctionSiteInfo))

	_, err = src.CourseContents(context.Background(), "abc")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestTokenSourceRejectsCredentials(t *testing.T) {
	server := wstest.NewServer(t, "student", "hunter2")
	src, err := NewToken(Options{BaseUrl: server.URL, Username: "student", Password: "wrong"})
	require.NoError(t, err)

	_, err = src.Courses(context.Background())
	require.True(t, model.IsAuthentication(err))
	require.True(t, webservice.IsInvalidLogin(err))
}

func TestTokenSourceUpstreamError(t *testing.T) {
	server := wstest.NewServer(t, "student", "hunter2")
	serveCourses(server)
	server.Handle(webservice.FunctionCourseContents, &wstest.Exception{
		Exception: "require_login_exception",
		ErrorCode: "requireloginerror",
		Message:   "Course or activity not accessible.",
	})
	src, err := NewToken(Options{BaseUrl: server.URL, Username: "student", Password: "hunter2"})
	require.NoError(t, err)

	_, err = src.CourseContents(context.Background(), "12")
	require.True(t, model.IsUpstream(err))
	var apiErr *webservice.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "requireloginerror", apiErr.ErrorCode)
}

func TestTokenSourceEvents(t *testing.T) {
	server := wstest.NewServer(t, "student", "hunter2")
	serveCourses(server)
	server.Handle(webservice.FunctionUpcomingEvents, map[string]any{
		"events": []webservice.Event{
			{ID: 1, Name: "Parser is due", EventType: "due", TimeStart: 1718000000, Course: &webservice.EventCourse{ID: 12, FullName: "Data Structures"}},
		},
	})
	src, err := NewToken(Options{BaseUrl: server.URL, Username: "student", Password: "hunter2"})
	require.NoError(t, err)

	events, err := Events(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "12", events[0].CourseID)
}

func TestBrowserSource(t *testing.T) {
	const base = "https://moodle.example.edu"
	page := &stubPage{routes: signedInSite(base)}
	launches := 0
	src, err := NewBrowser(Options{
		BaseUrl:  base,
		Username: "student",
		Password: "hunter2",
		Launch:   launcherFor(page, &launches),
	})
	require.NoError(t, err)
	require.Equal(t, 0, launches)

	courses, err := src.Courses(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.Course{
		{ID: "7", Name: "Compilers", URL: base + "/course/view.php?id=7"},
		{ID: "8", Name: "Networks", URL: base + "/course/view.php?id=8"},
	}, courses)

	// course 8 has no page, it contributes no assignments
	assignments, err := src.Assignments(context.Background(), []model.CourseWithContents{
		{Course: courses[0]},
		{Course: courses[1]},
	})
	require.NoError(t, err)
	require.Equal(t, []model.Assignment{{
		ID:         "70",
		CourseID:   "7",
		CourseName: "Compilers",
		Name:       "Parser",
		Status:     model.StatusPending,
		URL:        base + "/mod/assign/view.php?id=70",
	}}, assignments)

	_, err = Events(context.Background(), src)
	require.ErrorIs(t, err, model.ErrUnsupported)

	require.Equal(t, 1, launches)
	require.NoError(t, src.Close())
	require.Equal(t, 1, page.closed)
	require.NoError(t, src.Close())
	require.Equal(t, 1, page.closed)
}

func TestAutoFallsBackToBrowser(t *testing.T) {
	server := wstest.NewServer(t, "student", "hunter2")
	server.TokenErrorCode = "enablewsdescription"

	page := &stubPage{routes: signedInSite(server.URL)}
	launches := 0
	rec := &telemetry.Recorder{}
	src, err := New(Options{
		Mode:      ModeAuto,
		BaseUrl:   server.URL,
		Username:  "student",
		Password:  "hunter2",
		Launch:    launcherFor(page, &launches),
		Telemetry: rec,
	})
	require.NoError(t, err)
	require.Equal(t, ModeAuto, src.Mode())

	courses, err := src.Courses(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 2)
	require.Equal(t, ModeBrowser, src.Mode())
	require.Equal(t, 1, launches)
	require.Len(t, rec.Find(telemetry.KindWarning, report_auto_fallback), 1)

	require.NoError(t, src.Close())
	require.Equal(t, 1, page.closed)
}

func TestAutoKeepsTokenWhenAvailable(t *testing.T) {
	server := wstest.NewServer(t, "student", "hunter2")
	serveCourses(server)

	launches := 0
	src, err := New(Options{
		Mode:     ModeAuto,
		BaseUrl:  server.URL,
		Username: "student",
		Password: "hunter2",
		Launch:   launcherFor(&stubPage{}, &launches),
	})
	require.NoError(t, err)

	courses, err := src.Courses(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 2)
	require.Equal(t, ModeToken, src.Mode())
	require.Equal(t, 0, launches)
}

func TestAutoDoesNotFallBackOnBadCredentials(t *testing.T) {
	server := wstest.NewServer(t, "student", "hunter2")

	launches := 0
	src, err := New(Options{
		Mode:     ModeAuto,
		BaseUrl:  server.URL,
		Username: "student",
		Password: "wrong",
		Launch:   launcherFor(&stubPage{}, &launches),
	})
	require.NoError(t, err)

	err = src.Authenticate(context.Background())
	require.True(t, model.IsAuthentication(err))
	require.Equal(t, 0, launches)
	require.Equal(t, ModeAuto, src.Mode())
}
