package model

import "time"

type ActivityType string

const (
	ActivityAssignment ActivityType = "assignment"
	ActivityResource   ActivityType = "resource"
	ActivityForum      ActivityType = "forum"
	ActivityQuiz       ActivityType = "quiz"
	ActivityLink       ActivityType = "link"
	ActivityUnknown    ActivityType = "unknown"
)

// StatusPending is the assignment status used whenever the LMS does not
// report a definitive one.
const StatusPending = "pending"

type File struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

type Activity struct {
	Type        ActivityType `json:"type"`
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	Description string       `json:"description"`
	Files       []File       `json:"files,omitempty"`
}

// Section keeps the position it had on the LMS, activities are in
// presentation order.
type Section struct {
	Index      int        `json:"index"`
	Title      string     `json:"section_name"`
	Activities []Activity `json:"activities"`
}

type Course struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Teacher     string `json:"teacher"`
	Semester    string `json:"semester"`
}

// CourseWithContents is a course plus its sections. A nil Contents means the
// contents were never fetched, an empty one means they were fetched (or
// failed to be) and there is nothing in them.
type CourseWithContents struct {
	Course
	Contents []Section `json:"contents"`
}

type Assignment struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"course_id"`
	CourseName  string     `json:"course_name"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	Status      string     `json:"status"`
	URL         string     `json:"url"`
}

type Event struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"event_type"`
	CourseID    string    `json:"course_id"`
	CourseName  string    `json:"course_name"`
	Module      string    `json:"module"`
	Start       time.Time `json:"start"`
	Duration    int64     `json:"duration_seconds"`
	URL         string    `json:"url"`
}

type SyncData struct {
	Courses     []CourseWithContents `json:"courses"`
	Assignments []Assignment         `json:"assignments"`
	SyncedAt    time.Time            `json:"synced_at"`
}

// SyncResult is everything a sync reports to its caller, failures included.
type SyncResult struct {
	RunID            string    `json:"run_id"`
	Success          bool      `json:"success"`
	Message          string    `json:"message"`
	CoursesCount     int       `json:"courses_count"`
	AssignmentsCount int       `json:"assignments_count"`
	Data             *SyncData `json:"data,omitempty"`
}
