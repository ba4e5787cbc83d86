package browser

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"moodlesync/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

type Course struct {
	ID   string
	Name string
	URL  string
}

// Activity is an activity as rendered on a course page. Type is the first
// class marker found on the activity, or the localized type label moodle
// renders for screen readers when no marker matched.
type Activity struct {
	Type        string
	Name        string
	URL         string
	Description string
	Classes     []string
}

type Section struct {
	Index      int
	Title      string
	Activities []Activity
}

// courseLinkSelectors are tried in order, the first one that yields any
// element is used.
var courseLinkSelectors = []string{
	".coursename a",
	"a.coursename",
	`[data-region="course-content"] a[href*="/course/view.php"]`,
	".course_title a",
	`a[href*="/course/view.php?id="]`,
}

// ParseCourses extracts the course links of a dashboard, de-duplicated by url.
// Links without a parseable course id are dropped.
func ParseCourses(ctx context.Context, base *url.URL, doc *goquery.Document) []Course {
	var anchors []htmlutil.Anchor
	for _, selector := range courseLinkSelectors {
		found := doc.Find(selector)
		if found.Length() == 0 {
			continue
		}
		anchors = htmlutil.GetAnchors(ctx, base, found)
		break
	}

	seen := map[string]bool{}
	courses := []Course{}
	for _, a := range anchors {
		if seen[a.Href] {
			continue
		}
		seen[a.Href] = true

		id := CourseIDFromURL(a.Href)
		if id == "" {
			continue
		}
		courses = append(courses, Course{
			ID:   id,
			Name: stripScreenReaderPrefix(a.Name),
			URL:  a.Href,
		})
	}
	return courses
}

// moodle 4 prefixes course card links with a visually hidden "Course name".
func stripScreenReaderPrefix(name string) string {
	for _, prefix := range []string{"Course name", "課程名稱", "课程名称"} {
		if strings.HasPrefix(name, prefix+" ") {
			return strings.TrimSpace(strings.TrimPrefix(name, prefix))
		}
	}
	return name
}

// CourseIDFromURL returns the numeric id of a course/view.php url, or an
// empty string.
func CourseIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !strings.HasSuffix(u.Path, "/course/view.php") {
		return ""
	}
	id := u.Query().Get("id")
	if _, err := strconv.Atoi(id); err != nil {
		return ""
	}
	return id
}

var sectionSelectors = []string{
	"li.section.main",
	"li.course-section",
	".course-content .section",
}

var sectionTitleSelectors = []string{
	".sectionname",
	".section-title",
	`[data-for="section_title"]`,
	"h3",
}

// typeMarkers is the priority order of activity class markers, when an
// activity carries several the earliest here wins.
var typeMarkers = []string{"assign", "assignment", "resource", "forum", "quiz", "url"}

// ActivityType picks the activity type from class tokens, matching either the
// bare marker or its `modtype_` form. It returns "" when nothing matches.
func ActivityType(classes []string) string {
	for _, marker := range typeMarkers {
		for _, token := range classes {
			if token == marker || token == "modtype_"+marker {
				return marker
			}
		}
	}
	return ""
}

func firstText(sel *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		text := htmlutil.Text(sel.Find(s).First())
		if text != "" {
			return text
		}
	}
	return ""
}

func parseActivity(base *url.URL, el *goquery.Selection) (Activity, bool) {
	link := el.Find(".activityname a, .activityinstance a, a.aalink").First()
	if link.Length() == 0 {
		link = el.Find("a[href]").First()
	}
	href, ok := link.Attr("href")
	if !ok {
		return Activity{}, false
	}
	parsed, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return Activity{}, false
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}

	nameEl := link.Find(".instancename").First()
	if nameEl.Length() == 0 {
		nameEl = link
	}
	label := htmlutil.Text(nameEl.Find(".accesshide"))
	name := htmlutil.Text(nameEl.Clone().Find(".accesshide").Remove().End())
	if name == "" {
		return Activity{}, false
	}

	classes := strings.Fields(el.AttrOr("class", ""))
	activityType := ActivityType(classes)
	if activityType == "" {
		activityType = strings.ToLower(label)
	}

	return Activity{
		Type:        activityType,
		Name:        name,
		URL:         parsed.String(),
		Description: htmlutil.Text(el.Find(".contentafterlink, .activity-altcontent, .description").First()),
		Classes:     classes,
	}, true
}

// ParseSections walks the sections of a course page in order and the
// activities inside each. Activities without a link or a name, like labels,
// are skipped.
func ParseSections(base *url.URL, doc *goquery.Document) []Section {
	var found *goquery.Selection
	for _, selector := range sectionSelectors {
		found = doc.Find(selector)
		if found.Length() > 0 {
			break
		}
	}

	sections := []Section{}
	found.Each(func(idx int, el *goquery.Selection) {
		title := firstText(el, sectionTitleSelectors)
		if title == "" {
			title = fmt.Sprintf("Section %d", idx)
		}

		activities := []Activity{}
		el.Find(".activity").Each(func(_ int, activityEl *goquery.Selection) {
			activity, ok := parseActivity(base, activityEl)
			if ok {
				activities = append(activities, activity)
			}
		})

		sections = append(sections, Section{
			Index:      idx,
			Title:      title,
			Activities: activities,
		})
	})
	return sections
}

// SignedIn reports whether the page shows the user menu of a logged in user.
func SignedIn(doc *goquery.Document) bool {
	if doc.Find(`a[href*="/login/logout.php"]`).Length() > 0 {
		return true
	}
	menu := doc.Find(".usermenu, #user-menu-toggle")
	if menu.Length() == 0 {
		return false
	}
	return menu.Find(".login").Length() == 0
}

// LoginErrorMessage returns the error moodle or an identity provider shows
// after a rejected sign in, if any.
func LoginErrorMessage(doc *goquery.Document) string {
	return firstText(doc.Selection, []string{
		"#loginerrormessage",
		".loginerrors .error",
		"#errorText",
		"#usernameError",
		"#passwordError",
		".alert-danger",
	})
}
