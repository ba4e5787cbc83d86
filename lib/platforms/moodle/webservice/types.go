package webservice

// The structs here only carry the fields of each response that something
// downstream reads, moodle sends many more.

type SiteInfo struct {
	SiteName string `json:"sitename"`
	SiteURL  string `json:"siteurl"`
	Username string `json:"username"`
	FullName string `json:"fullname"`
	UserID   int    `json:"userid"`
	Release  string `json:"release"`
	Version  string `json:"version"`
	Lang     string `json:"lang"`
}

type Course struct {
	ID          int    `json:"id"`
	ShortName   string `json:"shortname"`
	FullName    string `json:"fullname"`
	DisplayName string `json:"displayname"`
	Summary     string `json:"summary"`
	IDNumber    string `json:"idnumber"`
	Visible     int    `json:"visible"`
	StartDate   int64  `json:"startdate"`
	EndDate     int64  `json:"enddate"`
	Category    int    `json:"category"`
}

type Content struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	FileURL  string `json:"fileurl"`
	FileSize int64  `json:"filesize"`
	MimeType string `json:"mimetype"`
}

type Module struct {
	ID          int       `json:"id"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	Instance    int       `json:"instance"`
	Description string    `json:"description"`
	ModName     string    `json:"modname"`
	ModPlural   string    `json:"modplural"`
	Visible     int       `json:"visible"`
	Contents    []Content `json:"contents"`
}

type Section struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Summary string   `json:"summary"`
	Section int      `json:"section"`
	Visible int      `json:"visible"`
	Modules []Module `json:"modules"`
}

type Assignment struct {
	ID                       int    `json:"id"`
	CMID                     int    `json:"cmid"`
	Course                   int    `json:"course"`
	Name                     string `json:"name"`
	Intro                    string `json:"intro"`
	DueDate                  int64  `json:"duedate"`
	AllowSubmissionsFromDate int64  `json:"allowsubmissionsfromdate"`
	CutoffDate               int64  `json:"cutoffdate"`
}

type AssignmentCourse struct {
	ID          int          `json:"id"`
	FullName    string       `json:"fullname"`
	ShortName   string       `json:"shortname"`
	Assignments []Assignment `json:"assignments"`
}

type Warning struct {
	Item        string `json:"item"`
	ItemID      int    `json:"itemid"`
	WarningCode string `json:"warningcode"`
	Message     string `json:"message"`
}

type EventCourse struct {
	ID       int    `json:"id"`
	FullName string `json:"fullname"`
}

type Event struct {
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	EventType    string       `json:"eventtype"`
	ModuleName   string       `json:"modulename"`
	Instance     int          `json:"instance"`
	TimeStart    int64        `json:"timestart"`
	TimeDuration int64        `json:"timeduration"`
	URL          string       `json:"url"`
	Course       *EventCourse `json:"course"`
}
