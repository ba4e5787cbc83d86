// Package service runs syncs and the read operations the http api and the
// cli expose. Each call owns the source it reads from and closes it before
// returning.
package service

import (
	"context"

	"moodlesync/internal/components/assert"
	"moodlesync/internal/components/chrono"
	"moodlesync/internal/components/telemetry"
	"moodlesync/internal/model"
	"moodlesync/internal/runlog"
	"moodlesync/internal/source"

	"github.com/google/uuid"
	"github.com/mazen160/go-random"
)

const (
	report_service_login       = "service.login"
	report_service_close       = "service.close-source"
	report_service_record      = "service.record-run"
	report_sync_authenticate   = "sync.authenticate"
	report_sync_list_courses   = "sync.list-courses"
	report_sync_course_details = "sync.course-details"
	report_sync_assignments    = "sync.assignments"
	report_sync_transition     = "sync.transition"
	report_rand_session_id     = "rand.session-id"
)

// RandomAPI is an abstraction over any code that generates random values,
// tests replace it to get stable ids.
type RandomAPI interface {
	SessionID() (string, error)
	RunID() string
}

type defaultRandomAPI struct{}

func (defaultRandomAPI) SessionID() (string, error) {
	return random.String(32)
}

func (defaultRandomAPI) RunID() string {
	return uuid.NewString()
}

// Journal stores the outcome of sync runs, runlog.Journal implements it.
type Journal interface {
	Record(ctx context.Context, run runlog.Run) error
	Recent(ctx context.Context, limit int) ([]runlog.Run, error)
}

// Credentials select the account and site a call reads from. Empty fields
// are taken from the service defaults.
type Credentials struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c Credentials) or(defaults Credentials) Credentials {
	if c.BaseUrl == "" {
		c.BaseUrl = defaults.BaseUrl
	}
	if c.Username == "" {
		c.Username = defaults.Username
	}
	if c.Password == "" {
		c.Password = defaults.Password
	}
	return c
}

// SourceFactory creates the source for a single call.
type SourceFactory func(creds Credentials) (source.Source, error)

// NewSourceFactory returns a factory that fills template with the given
// credentials.
func NewSourceFactory(template source.Options) SourceFactory {
	return func(creds Credentials) (source.Source, error) {
		opts := template
		opts.BaseUrl = creds.BaseUrl
		opts.Username = creds.Username
		opts.Password = creds.Password
		return source.New(opts)
	}
}

type Service struct {
	newSource SourceFactory
	defaults  Credentials
	journal   Journal
	rand      RandomAPI
	clock     chrono.API
	tel       telemetry.API
	observe   func(runID string, state model.SyncState)
}

type config struct {
	journal Journal
	rand    RandomAPI
	clock   chrono.API
	tel     telemetry.API
	observe func(runID string, state model.SyncState)
}

type Option func(cfg *config)

func WithCustomRandomAPI(rand RandomAPI) Option {
	return func(cfg *config) {
		cfg.rand = rand
	}
}

func WithCustomTelemetryAPI(tel telemetry.API) Option {
	return func(cfg *config) {
		cfg.tel = tel
	}
}

func WithClock(clock chrono.API) Option {
	return func(cfg *config) {
		cfg.clock = clock
	}
}

// WithJournal records every sync run in journal.
func WithJournal(journal Journal) Option {
	return func(cfg *config) {
		cfg.journal = journal
	}
}

// WithStateObserver calls observe on every state a sync enters.
func WithStateObserver(observe func(runID string, state model.SyncState)) Option {
	return func(cfg *config) {
		cfg.observe = observe
	}
}

func New(newSource SourceFactory, defaults Credentials, options ...Option) *Service {
	assert.NotNil(newSource)

	cfg := config{}
	for _, opt := range options {
		opt(&cfg)
	}

	s := &Service{
		newSource: newSource,
		defaults:  defaults,
		journal:   cfg.journal,
		rand:      defaultRandomAPI{},
		clock:     chrono.StandardImpl{},
		tel:       telemetry.SlogAPI{},
		observe:   cfg.observe,
	}
	if cfg.rand != nil {
		s.rand = cfg.rand
	}
	if cfg.clock != nil {
		s.clock = cfg.clock
	}
	if cfg.tel != nil {
		s.tel = cfg.tel
	}
	s.tel = telemetry.NewScopedAPI("service", s.tel)
	return s
}

// open creates a source for creds, the caller must release it with close.
func (s *Service) open(creds Credentials) (source.Source, error) {
	return s.newSource(creds.or(s.defaults))
}

func (s *Service) close(src source.Source) {
	err := src.Close()
	if err != nil {
		s.tel.ReportWarning(report_service_close, err, src.Mode())
	}
}
