package restyutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestRedactUrl(t *testing.T) {
	table := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "token",
			input:    "https://moodle.example.edu/webservice/rest/server.php?wsfunction=core_webservice_get_site_info&wstoken=abc",
			expected: "https://moodle.example.edu/webservice/rest/server.php?wsfunction=core_webservice_get_site_info&wstoken=%3CREDACTED%3E",
		},
		{
			name:     "nothing secret",
			input:    "https://moodle.example.edu/course/view.php?id=12",
			expected: "https://moodle.example.edu/course/view.php?id=12",
		},
		{
			name:     "no query",
			input:    "https://moodle.example.edu/my/",
			expected: "https://moodle.example.edu/my/",
		},
	}
	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			require.Equal(t, row.expected, redactUrl(row.input))
		})
	}
}

func TestRedactQuery(t *testing.T) {
	redacted := redactQuery("username=student&password=hunter2&service=moodle_mobile_app")
	require.NotContains(t, redacted, "hunter2")
	require.Contains(t, redacted, "username=student")
	require.Contains(t, redacted, "service=moodle_mobile_app")
}

func TestFormatHeaders(t *testing.T) {
	headers := http.Header{
		"Cookie":       {"MoodleSession=abc"},
		"Content-Type": {"application/json"},
	}
	require.Equal(t, "Content-Type: application/json\nCookie: <REDACTED>", formatHeaders(headers))
}

type memoryOutput map[string]string

func (m memoryOutput) Write(id, contents string) {
	m[id] = contents
}

func TestInstrumentWritesFailedExchanges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("error writing to database"))
			return
		}
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	output := memoryOutput{}
	client := resty.New().SetBaseURL(server.URL)
	InstrumentClient(client, "test-", nil, output)

	_, err := client.R().Get("/ok")
	require.NoError(t, err)
	require.Empty(t, output)

	_, err = client.R().
		SetFormData(map[string]string{"username": "student", "password": "hunter2"}).
		Post("/broken?wstoken=abc")
	require.NoError(t, err)
	require.Len(t, output, 1)

	dump := output["test-2"]
	require.Contains(t, dump, "500")
	require.Contains(t, dump, "error writing to database")
	require.NotContains(t, dump, "hunter2")
	require.NotContains(t, dump, "wstoken=abc")
}

func TestFilesystemOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "diagnostics")
	output, err := NewFilesystemOutput(dir)
	require.NoError(t, err)
	require.Equal(t, dir, output.Directory())

	output.Write("webservice-1", "dump")
	contents, err := os.ReadFile(filepath.Join(dir, "webservice-1.txt"))
	require.NoError(t, err)
	require.Equal(t, "dump", string(contents))

	require.NoError(t, output.WriteFile("../escape.png", []byte("png")))
	_, err = os.Stat(filepath.Join(dir, "escape.png"))
	require.NoError(t, err)
}
