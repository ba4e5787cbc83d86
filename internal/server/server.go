// Package server exposes the service over a json http api.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"moodlesync/internal/components/assert"
	"moodlesync/internal/components/telemetry"
	"moodlesync/internal/model"
	"moodlesync/internal/runlog"
	"moodlesync/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
)

const (
	report_server_request = "server.request"
	report_server_encode  = "server.encode"
	report_server_api_key = "server.api-key"
)

const (
	serviceName    = "moodle-integration-service"
	serviceTitle   = "Moodle Integration Service"
	serviceVersion = "1.0.0"

	apiKeyHeader = "X-API-Key"

	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// API is what the handlers need from the service.
type API interface {
	Login(ctx context.Context, creds service.Credentials) (service.LoginResult, error)
	SyncAll(ctx context.Context, creds service.Credentials) model.SyncResult
	Courses(ctx context.Context) ([]model.Course, error)
	Course(ctx context.Context, courseID string) (model.CourseWithContents, error)
	Assignments(ctx context.Context, courseID string) ([]model.Assignment, error)
	Events(ctx context.Context) ([]model.Event, error)
	History(ctx context.Context, limit int) ([]runlog.Run, error)
}

type Options struct {
	// ApiKey is compared against the X-API-Key header of every /api request,
	// empty disables the check.
	ApiKey         string
	AllowedOrigins []string
	// DefaultBaseUrl is used by login and sync when the request has none.
	DefaultBaseUrl string
	// Telemetry defaults to telemetry.SlogAPI.
	Telemetry telemetry.API
}

type Server struct {
	api      API
	opts     Options
	tel      telemetry.API
	validate *validator.Validate
}

func New(api API, opts Options) *Server {
	assert.NotNil(api)
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.SlogAPI{}
	}
	s := &Server{
		api:      api,
		opts:     opts,
		tel:      telemetry.NewScopedAPI("server", opts.Telemetry),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	if opts.ApiKey == "" {
		s.tel.ReportWarning(report_server_api_key, "API_KEY is empty, /api routes are not protected")
	}
	return s
}

// Handler returns the routes wrapped in cors handling.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/moodle/login", s.login)
	api.HandleFunc("POST /api/moodle/sync", s.sync)
	api.HandleFunc("GET /api/moodle/sync/history", s.history)
	api.HandleFunc("GET /api/moodle/courses", s.courses)
	api.HandleFunc("GET /api/moodle/courses/{id}", s.course)
	api.HandleFunc("GET /api/moodle/assignments", s.assignments)
	api.HandleFunc("GET /api/moodle/events", s.events)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /{$}", s.root)
	mux.Handle("/api/", s.requireApiKey(api))

	return cors.New(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(mux)
}

func (s *Server) requireApiKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.ApiKey != "" {
			given := r.Header.Get(apiKeyHeader)
			if subtle.ConstantTimeCompare([]byte(given), []byte(s.opts.ApiKey)) != 1 {
				s.writeDetail(w, http.StatusForbidden, "Invalid API Key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.tel.ReportBroken(report_server_encode, err)
	}
}

type detail struct {
	Detail string `json:"detail"`
}

func (s *Server) writeDetail(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, detail{Detail: message})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUnsupported):
		return http.StatusNotImplemented
	case model.IsAuthentication(err):
		return http.StatusUnauthorized
	case model.IsUpstream(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError reports err and writes it as a detail, action names what the
// request was doing.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusOf(err)
	if status < 500 {
		s.tel.ReportDebug(report_server_request, r.Method, r.URL.Path, status, err.Error())
	} else {
		s.tel.ReportBroken(report_server_request, err, r.Method, r.URL.Path)
	}

	switch status {
	case http.StatusNotFound:
		s.writeDetail(w, status, "Course not found")
	case http.StatusNotImplemented:
		s.writeDetail(w, status, "Upcoming events are only available with web services")
	default:
		if errors.Is(err, model.ErrConfiguration) {
			s.writeDetail(w, status, "Moodle credentials not configured in environment")
			return
		}
		s.writeDetail(w, status, fmt.Sprintf("%s: %s", action, err))
	}
}

// writeRequestError answers with 422 and the wrapped message, for client
// errors caused by values taken from the request body.
func (s *Server) writeRequestError(w http.ResponseWriter, r *http.Request, action string, err error) {
	s.tel.ReportDebug(report_server_request, r.Method, r.URL.Path, http.StatusUnprocessableEntity, err.Error())
	s.writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("%s: %s", action, err))
}

type credentialsRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	BaseUrl  string `json:"base_url" validate:"omitempty,http_url"`
}

// decodeCredentials reads and validates the request body, it writes the
// response itself and returns false when the body is unusable.
func (s *Server) decodeCredentials(w http.ResponseWriter, r *http.Request) (service.Credentials, bool) {
	var req credentialsRequest
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req)
	if err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %s", err))
		return service.Credentials{}, false
	}
	err = s.validate.Struct(req)
	if err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return service.Credentials{}, false
	}
	if req.BaseUrl == "" {
		req.BaseUrl = s.opts.DefaultBaseUrl
	}
	if req.BaseUrl == "" {
		s.writeDetail(w, http.StatusBadRequest, "Moodle base URL is required")
		return service.Credentials{}, false
	}
	return service.Credentials{
		BaseUrl:  req.BaseUrl,
		Username: req.Username,
		Password: req.Password,
	}, true
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"service": serviceTitle,
		"version": serviceVersion,
		"health":  "/health",
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	creds, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}
	result, err := s.api.Login(r.Context(), creds)
	if service.IsClientError(err) {
		s.writeRequestError(w, r, "Login failed", err)
		return
	}
	if err != nil {
		s.writeError(w, r, "Login failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	creds, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.api.SyncAll(r.Context(), creds))
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeDetail(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}
	runs, err := s.api.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, "Failed to read sync history", err)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) courses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.api.Courses(r.Context())
	if err != nil {
		s.writeError(w, r, "Failed to fetch courses", err)
		return
	}
	s.writeJSON(w, http.StatusOK, courses)
}

func (s *Server) course(w http.ResponseWriter, r *http.Request) {
	course, err := s.api.Course(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "Failed to fetch course detail", err)
		return
	}
	s.writeJSON(w, http.StatusOK, course)
}

func (s *Server) assignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := s.api.Assignments(r.Context(), r.URL.Query().Get("course_id"))
	if err != nil {
		s.writeError(w, r, "Failed to fetch assignments", err)
		return
	}
	s.writeJSON(w, http.StatusOK, assignments)
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	events, err := s.api.Events(r.Context())
	if err != nil {
		s.writeError(w, r, "Failed to fetch events", err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}
