// Package config loads the service configuration: an optional config.json5
// (plus its .local override), then a .env file and the process environment
// on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"moodlesync/internal/model"
	"moodlesync/lib/configutil"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type MoodleConfig struct {
	BaseUrl  string `json:"base_url" validate:"omitempty,url"`
	Username string `json:"username"`
	Password string `json:"password"`
	Mode     string `json:"mode" validate:"omitempty,oneof=token browser auto"`
	Service  string `json:"service"`
	Headless *bool  `json:"headless"`
	// ChromePath overrides the chrome binary used in browser mode.
	ChromePath     string `json:"chrome_path"`
	AcceptLanguage string `json:"accept_language"`
}

type Config struct {
	Moodle MoodleConfig `json:"moodle"`

	// ApiKey is the shared secret every /api request must send in
	// X-API-Key. Empty disables the check.
	ApiKey         string   `json:"api_key"`
	AllowedOrigins []string `json:"allowed_origins" validate:"dive,required"`
	Host           string   `json:"host"`
	Port           int      `json:"port" validate:"min=1,max=65535"`

	// DiagnosticsDir receives failed exchanges and browser captures, the os
	// temp directory when empty.
	DiagnosticsDir string `json:"diagnostics_dir"`
	// RunlogDB is the sqlite dsn of the sync run journal.
	RunlogDB string `json:"runlog_db" validate:"required"`
	// Timezone is the IANA zone timestamps are reported in, UTC when empty.
	Timezone string `json:"timezone"`
	Verbose  bool   `json:"verbose"`
}

func (c Config) Headless() bool {
	return c.Moodle.Headless == nil || *c.Moodle.Headless
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func Default() Config {
	return Config{
		Moodle: MoodleConfig{
			Mode:    "token",
			Service: "moodle_mobile_app",
		},
		AllowedOrigins: []string{"http://localhost:3000"},
		Host:           "0.0.0.0",
		Port:           8000,
		RunlogDB:       ":memory:",
	}
}

// Env looks up a variable, it is swapped out in tests.
type Env func(key string) (string, bool)

// Load reads config.json5 from the working directory when it exists, loads
// .env into the environment and applies the environment on top.
func Load() (Config, error) {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	file, err := configutil.ReadOptional[Config]("config.json5")
	if err != nil {
		return Config{}, err
	}
	cfg = merge(cfg, file)
	return Apply(cfg, os.LookupEnv)
}

// merge overlays the non zero fields of file onto cfg.
func merge(cfg, file Config) Config {
	m, f := &cfg.Moodle, file.Moodle
	setStr(&m.BaseUrl, f.BaseUrl)
	setStr(&m.Username, f.Username)
	setStr(&m.Password, f.Password)
	setStr(&m.Mode, f.Mode)
	setStr(&m.Service, f.Service)
	setStr(&m.ChromePath, f.ChromePath)
	setStr(&m.AcceptLanguage, f.AcceptLanguage)
	if f.Headless != nil {
		m.Headless = f.Headless
	}

	setStr(&cfg.ApiKey, file.ApiKey)
	setStr(&cfg.Host, file.Host)
	setStr(&cfg.DiagnosticsDir, file.DiagnosticsDir)
	setStr(&cfg.RunlogDB, file.RunlogDB)
	setStr(&cfg.Timezone, file.Timezone)
	if len(file.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = file.AllowedOrigins
	}
	if file.Port != 0 {
		cfg.Port = file.Port
	}
	cfg.Verbose = cfg.Verbose || file.Verbose
	return cfg
}

func setStr(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// Apply overlays the environment variables onto cfg and validates the
// result.
func Apply(cfg Config, env Env) (Config, error) {
	str := func(key string, dst *string) {
		if value, ok := env(key); ok && value != "" {
			*dst = value
		}
	}
	str("MOODLE_BASE_URL", &cfg.Moodle.BaseUrl)
	str("MOODLE_USERNAME", &cfg.Moodle.Username)
	str("MOODLE_PASSWORD", &cfg.Moodle.Password)
	str("MOODLE_MODE", &cfg.Moodle.Mode)
	str("MOODLE_SERVICE", &cfg.Moodle.Service)
	str("MOODLE_CHROME_PATH", &cfg.Moodle.ChromePath)
	str("MOODLE_ACCEPT_LANGUAGE", &cfg.Moodle.AcceptLanguage)
	str("API_KEY", &cfg.ApiKey)
	str("HOST", &cfg.Host)
	str("DIAGNOSTICS_DIR", &cfg.DiagnosticsDir)
	str("RUNLOG_DB", &cfg.RunlogDB)
	str("TZ_NAME", &cfg.Timezone)

	if value, ok := env("MOODLE_HEADLESS"); ok && value != "" {
		headless, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, model.ConfigurationErrorf("MOODLE_HEADLESS: %s", err)
		}
		cfg.Moodle.Headless = &headless
	}
	if value, ok := env("PORT"); ok && value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, model.ConfigurationErrorf("PORT: %s", err)
		}
		cfg.Port = port
	}
	if value, ok := env("ALLOWED_ORIGINS"); ok && value != "" {
		var origins []string
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		cfg.AllowedOrigins = origins
	}
	if value, ok := env("VERBOSE"); ok && value != "" {
		verbose, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, model.ConfigurationErrorf("VERBOSE: %s", err)
		}
		cfg.Verbose = verbose
	}

	cfg.Moodle.Mode = strings.ToLower(strings.TrimSpace(cfg.Moodle.Mode))
	cfg.Moodle.BaseUrl = strings.TrimRight(cfg.Moodle.BaseUrl, "/")

	err := Validate(cfg)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the shape of cfg. Missing credentials are not an error
// here, they only fail the calls that need them.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err != nil {
		return model.ConfigurationErrorf("%s", err)
	}
	return nil
}
