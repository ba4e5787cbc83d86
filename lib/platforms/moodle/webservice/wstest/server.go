// Package wstest runs an in-process fake of the moodle web services
// endpoints for tests.
package wstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

type HandlerFunc func(form url.Values) any

type Server struct {
	*httptest.Server

	Username string
	Password string
	Token    string
	// TokenErrorCode makes every token exchange fail with this error code.
	TokenErrorCode string
	// TokenStatus makes every token exchange respond with this status.
	TokenStatus int

	mu        sync.Mutex
	functions map[string]HandlerFunc
	calls     []url.Values
}

// NewServer starts a fake that accepts the given credentials, it is closed
// when the test ends.
func NewServer(t testing.TB, username, password string) *Server {
	s := &Server{
		Username:  username,
		Password:  password,
		Token:     "0123456789abcdef",
		functions: map[string]HandlerFunc{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/login/token.php", s.handleToken)
	mux.HandleFunc("/webservice/rest/server.php", s.handleRest)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Handle responds to a function with a fixed value.
func (s *Server) Handle(function string, response any) {
	s.HandleFunc(function, func(url.Values) any { return response })
}

// HandleFunc responds to a function with the result of fn, returning an
// *Exception produces a moodle exception payload.
func (s *Server) HandleFunc(function string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.functions[function] = fn
}

// Calls returns the form of every REST call received so far.
func (s *Server) Calls() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]url.Values, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount counts the REST calls made to one function.
func (s *Server) CallCount(function string) int {
	count := 0
	for _, c := range s.Calls() {
		if c.Get("wsfunction") == function {
			count++
		}
	}
	return count
}

type Exception struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.TokenStatus != 0 {
		w.WriteHeader(s.TokenStatus)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if s.TokenErrorCode != "" {
		writeJSON(w, http.StatusOK, map[string]string{
			"error":     "web service unavailable",
			"errorcode": s.TokenErrorCode,
		})
		return
	}
	if r.Form.Get("username") != s.Username || r.Form.Get("password") != s.Password {
		writeJSON(w, http.StatusOK, map[string]string{
			"error":     "Invalid login, please try again",
			"errorcode": "invalidlogin",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": s.Token})
}

func (s *Server) handleRest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls = append(s.calls, r.Form)
	fn, ok := s.functions[r.Form.Get("wsfunction")]
	s.mu.Unlock()

	if r.Form.Get("wstoken") != s.Token {
		writeJSON(w, http.StatusOK, Exception{
			Exception: "moodle_exception",
			ErrorCode: "invalidtoken",
			Message:   "Invalid token - token not found",
		})
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, Exception{
			Exception: "dml_missing_record_exception",
			ErrorCode: "invalidrecord",
			Message:   "Can't find data record in database table external_functions.",
		})
		return
	}

	result := fn(r.Form)
	if exc, isExc := result.(*Exception); isExc {
		writeJSON(w, http.StatusOK, exc)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
