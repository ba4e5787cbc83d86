// Package adapter maps the records read from moodle, either web service
// json or scraped markup, onto the canonical model. Nothing here does io.
package adapter

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"moodlesync/internal/model"
	"moodlesync/lib/platforms/moodle/browser"
	"moodlesync/lib/platforms/moodle/webservice"
)

var activityTypes = map[string]model.ActivityType{
	"assign":     model.ActivityAssignment,
	"assignment": model.ActivityAssignment,
	"作業":         model.ActivityAssignment,

	"resource": model.ActivityResource,
	"file":     model.ActivityResource,
	"folder":   model.ActivityResource,
	"page":     model.ActivityResource,
	"book":     model.ActivityResource,
	"檔案":       model.ActivityResource,
	"資源":       model.ActivityResource,

	"forum": model.ActivityForum,
	"討論區":   model.ActivityForum,

	"quiz": model.ActivityQuiz,
	"測驗":   model.ActivityQuiz,

	"url":  model.ActivityLink,
	"link": model.ActivityLink,
	"網址":   model.ActivityLink,
}

// ClassifyActivity maps a module name, css marker or localized label onto
// the closed set of activity types, ignoring case and surrounding space.
func ClassifyActivity(raw string) model.ActivityType {
	t, ok := activityTypes[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return model.ActivityUnknown
	}
	return t
}

// AssignmentIDFromURL returns the value of the id query parameter. URLs that
// do not parse fall back to whatever follows the last "id=", cut at the next
// '&' or '#'. It returns "" when there is no id.
func AssignmentIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err == nil {
		if id := u.Query().Get("id"); id != "" {
			return id
		}
	}
	idx := strings.LastIndex(raw, "id=")
	if idx < 0 {
		return ""
	}
	id := raw[idx+len("id="):]
	if end := strings.IndexAny(id, "&#"); end >= 0 {
		id = id[:end]
	}
	return id
}

// DueDate converts an epoch timestamp in seconds, moodle uses 0 for "no due
// date" so anything not positive is nil.
func DueDate(epoch int64) *time.Time {
	if epoch <= 0 {
		return nil
	}
	t := time.Unix(epoch, 0).UTC()
	return &t
}

func courseName(fullname, shortname string) string {
	if name := strings.TrimSpace(fullname); name != "" {
		return name
	}
	if name := strings.TrimSpace(shortname); name != "" {
		return name
	}
	return "Unknown"
}

func sectionTitle(name string, index int) string {
	if title := strings.TrimSpace(name); title != "" {
		return title
	}
	return "Section " + strconv.Itoa(index)
}

// Course maps a web service course, courseUrl is supplied by the caller
// since the response does not include one.
func Course(c webservice.Course, courseUrl string) model.Course {
	return model.Course{
		ID:          strconv.Itoa(c.ID),
		Name:        courseName(c.FullName, c.ShortName),
		URL:         courseUrl,
		Description: c.Summary,
	}
}

func BrowserCourse(c browser.Course) model.Course {
	return model.Course{
		ID:   c.ID,
		Name: courseName(c.Name, ""),
		URL:  c.URL,
	}
}

func files(contents []webservice.Content) []model.File {
	var out []model.File
	for _, c := range contents {
		if c.Type != "file" {
			continue
		}
		out = append(out, model.File{
			Filename: c.Filename,
			URL:      c.FileURL,
			Size:     c.FileSize,
			MimeType: c.MimeType,
		})
	}
	return out
}

func Sections(sections []webservice.Section) []model.Section {
	out := make([]model.Section, 0, len(sections))
	for _, s := range sections {
		activities := make([]model.Activity, 0, len(s.Modules))
		for _, m := range s.Modules {
			activities = append(activities, model.Activity{
				Type:        ClassifyActivity(m.ModName),
				Name:        m.Name,
				URL:         m.URL,
				Description: m.Description,
				Files:       files(m.Contents),
			})
		}
		out = append(out, model.Section{
			Index:      s.Section,
			Title:      sectionTitle(s.Name, s.Section),
			Activities: activities,
		})
	}
	return out
}

func BrowserSections(sections []browser.Section) []model.Section {
	out := make([]model.Section, 0, len(sections))
	for _, s := range sections {
		activities := make([]model.Activity, 0, len(s.Activities))
		for _, a := range s.Activities {
			activities = append(activities, model.Activity{
				Type:        ClassifyActivity(a.Type),
				Name:        a.Name,
				URL:         a.URL,
				Description: a.Description,
			})
		}
		out = append(out, model.Section{
			Index:      s.Index,
			Title:      sectionTitle(s.Title, s.Index),
			Activities: activities,
		})
	}
	return out
}

// Assignment maps a web service assignment, assignmentUrl is the module url
// built from its cmid.
func Assignment(course webservice.AssignmentCourse, a webservice.Assignment, assignmentUrl string) model.Assignment {
	return model.Assignment{
		ID:          AssignmentIDFromURL(assignmentUrl),
		CourseID:    strconv.Itoa(course.ID),
		CourseName:  courseName(course.FullName, course.ShortName),
		Name:        a.Name,
		Description: a.Intro,
		DueDate:     DueDate(a.DueDate),
		Status:      model.StatusPending,
		URL:         assignmentUrl,
	}
}

// DeriveAssignments lists the assignment activities of a course in section
// order. Scraped pages carry no due date or status.
func DeriveAssignments(course model.CourseWithContents) []model.Assignment {
	var out []model.Assignment
	for _, section := range course.Contents {
		for _, activity := range section.Activities {
			if activity.Type != model.ActivityAssignment {
				continue
			}
			out = append(out, model.Assignment{
				ID:          AssignmentIDFromURL(activity.URL),
				CourseID:    course.ID,
				CourseName:  course.Name,
				Name:        activity.Name,
				Description: activity.Description,
				Status:      model.StatusPending,
				URL:         activity.URL,
			})
		}
	}
	return out
}

func Event(e webservice.Event) model.Event {
	out := model.Event{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Type:        e.EventType,
		Module:      e.ModuleName,
		Start:       time.Unix(e.TimeStart, 0).UTC(),
		Duration:    e.TimeDuration,
		URL:         e.URL,
	}
	if e.Course != nil {
		out.CourseID = strconv.Itoa(e.Course.ID)
		out.CourseName = e.Course.FullName
	}
	return out
}
