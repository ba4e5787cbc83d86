package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	BaseUrl string `json:"base_url"`
	Mode    string `json:"mode"`
	Port    int    `json:"port"`
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.json5")
	writeFile(t, name, `{
		// comments are allowed
		base_url: "https://moodle.example.edu",
		mode: "token",
		port: 8000,
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{mode: "browser"}`)

	cfg, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, testConfig{
		BaseUrl: "https://moodle.example.edu",
		Mode:    "browser",
		Port:    8000,
	}, cfg)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)

	cfg, err := ReadOptional[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.NoError(t, err)
	require.Equal(t, testConfig{}, cfg)
}

func TestReadConfigOnlyLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{port: 9000}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
}

func TestLocalName(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "config.json5", expected: "config.local.json5"},
		{input: "dir/telemetry.json5", expected: "dir/telemetry.local.json5"},
		{input: "noext", expected: "noext.local."},
	}
	for _, row := range table {
		require.Equal(t, row.expected, LocalName(row.input))
	}
}
