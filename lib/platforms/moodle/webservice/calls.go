package webservice

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

const (
	FunctionSiteInfo       = "core_webservice_get_site_info"
	FunctionUsersCourses   = "core_enrol_get_users_courses"
	FunctionCourseContents = "core_course_get_contents"
	FunctionAssignments    = "mod_assign_get_assignments"
	FunctionUpcomingEvents = "core_calendar_get_calendar_upcoming_view"
)

func (c *Client) SiteInfo(ctx context.Context) (SiteInfo, error) {
	var out SiteInfo
	err := c.Call(ctx, FunctionSiteInfo, nil, &out)
	return out, err
}

func (c *Client) UsersCourses(ctx context.Context, userID int) ([]Course, error) {
	var out []Course
	err := c.Call(ctx, FunctionUsersCourses, url.Values{
		"userid": {strconv.Itoa(userID)},
	}, &out)
	return out, err
}

func (c *Client) CourseContents(ctx context.Context, courseID int) ([]Section, error) {
	var out []Section
	err := c.Call(ctx, FunctionCourseContents, url.Values{
		"courseid": {strconv.Itoa(courseID)},
	}, &out)
	return out, err
}

type AssignmentsResponse struct {
	Courses  []AssignmentCourse `json:"courses"`
	Warnings []Warning          `json:"warnings"`
}

// Assignments lists the assignments of the given courses, every course the
// user is enrolled in when courseIDs is empty.
func (c *Client) Assignments(ctx context.Context, courseIDs []int) (AssignmentsResponse, error) {
	params := url.Values{}
	for i, id := range courseIDs {
		params.Set(fmt.Sprintf("courseids[%d]", i), strconv.Itoa(id))
	}
	var out AssignmentsResponse
	err := c.Call(ctx, FunctionAssignments, params, &out)
	return out, err
}

func (c *Client) UpcomingEvents(ctx context.Context) ([]Event, error) {
	var out struct {
		Events []Event `json:"events"`
	}
	err := c.Call(ctx, FunctionUpcomingEvents, nil, &out)
	return out.Events, err
}

// AssignmentURL is the page of the assignment module with the given course
// module id.
func (c *Client) AssignmentURL(cmid int) string {
	return c.BaseUrl.JoinPath("mod", "assign", "view.php").String() + "?id=" + strconv.Itoa(cmid)
}

// CourseURL is the page of the course with the given id.
func (c *Client) CourseURL(courseID int) string {
	return c.BaseUrl.JoinPath("course", "view.php").String() + "?id=" + strconv.Itoa(courseID)
}
