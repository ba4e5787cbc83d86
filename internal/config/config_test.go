package config

import (
	"os"
	"path/filepath"
	"testing"

	"moodlesync/internal/model"
	"moodlesync/internal/source"

	"github.com/stretchr/testify/require"
)

func envOf(values map[string]string) Env {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg, err := Apply(Default(), envOf(nil))
	require.NoError(t, err)
	require.Equal(t, "token", cfg.Moodle.Mode)
	require.Equal(t, "moodle_mobile_app", cfg.Moodle.Service)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	require.Equal(t, "0.0.0.0:8000", cfg.Addr())
	require.True(t, cfg.Headless())
	require.Equal(t, ":memory:", cfg.RunlogDB)
}

func TestApplyEnvironment(t *testing.T) {
	cfg, err := Apply(Default(), envOf(map[string]string{
		"MOODLE_BASE_URL": "https://moodle.example.edu/",
		"MOODLE_USERNAME": "student",
		"MOODLE_PASSWORD": "hunter2",
		"MOODLE_MODE":     " Browser ",
		"MOODLE_HEADLESS": "false",
		"API_KEY":         "secret",
		"ALLOWED_ORIGINS": "https://a.example.edu, https://b.example.edu,",
		"PORT":            "9000",
		"RUNLOG_DB":       "file:runs.db",
	}))
	require.NoError(t, err)
	require.Equal(t, "https://moodle.example.edu", cfg.Moodle.BaseUrl)
	require.Equal(t, "student", cfg.Moodle.Username)
	require.Equal(t, "browser", cfg.Moodle.Mode)
	require.False(t, cfg.Headless())
	require.Equal(t, "secret", cfg.ApiKey)
	require.Equal(t, []string{"https://a.example.edu", "https://b.example.edu"}, cfg.AllowedOrigins)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, "file:runs.db", cfg.RunlogDB)
}

func TestApplyRejects(t *testing.T) {
	table := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown mode", env: map[string]string{"MOODLE_MODE": "scrape"}},
		{name: "relative base url", env: map[string]string{"MOODLE_BASE_URL": "moodle"}},
		{name: "port out of range", env: map[string]string{"PORT": "70000"}},
		{name: "port not a number", env: map[string]string{"PORT": "http"}},
		{name: "headless not a bool", env: map[string]string{"MOODLE_HEADLESS": "sometimes"}},
	}
	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			_, err := Apply(Default(), envOf(row.env))
			require.ErrorIs(t, err, model.ErrConfiguration)
		})
	}
}

func TestMergeFile(t *testing.T) {
	headless := false
	cfg := merge(Default(), Config{
		Moodle: MoodleConfig{BaseUrl: "https://moodle.example.edu", Headless: &headless},
		Port:   8080,
	})
	require.Equal(t, "https://moodle.example.edu", cfg.Moodle.BaseUrl)
	require.Equal(t, "token", cfg.Moodle.Mode)
	require.Equal(t, 8080, cfg.Port)
	require.False(t, cfg.Headless())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(cwd) })

	err = os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		// shared settings
		moodle: { base_url: "https://moodle.example.edu", mode: "auto" },
		port: 8100,
	}`), 0600)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		moodle: { username: "student" },
	}`), 0600)
	require.NoError(t, err)
	t.Setenv("PORT", "8200")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://moodle.example.edu", cfg.Moodle.BaseUrl)
	require.Equal(t, "auto", cfg.Moodle.Mode)
	require.Equal(t, "student", cfg.Moodle.Username)
	require.Equal(t, 8200, cfg.Port)
}

func TestSourceOptions(t *testing.T) {
	cfg, err := Apply(Default(), envOf(map[string]string{
		"MOODLE_BASE_URL":    "https://moodle.example.edu",
		"MOODLE_USERNAME":    "student",
		"MOODLE_PASSWORD":    "hunter2",
		"MOODLE_MODE":        "auto",
		"MOODLE_CHROME_PATH": "/usr/bin/chromium",
	}))
	require.NoError(t, err)

	opts, err := cfg.SourceOptions(nil)
	require.NoError(t, err)
	require.Equal(t, source.ModeAuto, opts.Mode)
	require.Equal(t, "/usr/bin/chromium", opts.ExecPath)
	require.True(t, opts.Headless)
	require.Empty(t, opts.Username)

	creds := cfg.Credentials()
	require.Equal(t, "https://moodle.example.edu", creds.BaseUrl)
	require.Equal(t, "student", creds.Username)
}
