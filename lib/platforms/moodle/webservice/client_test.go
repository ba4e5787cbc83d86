package webservice

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"moodlesync/internal/components/telemetry"
	"moodlesync/lib/platforms/moodle/webservice/wstest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, server *wstest.Server) *Client {
	t.Helper()
	client, err := NewClient(ClientOptions{
		BaseUrl:           server.URL,
		Telemetry:         &telemetry.Recorder{},
		RequestsPerSecond: rate.Inf,
	})
	require.NoError(t, err)
	return client
}

func TestExchange(t *testing.T) {
	server := wstest.NewServer(t, "student", "hunter2")
	client := newTestClient(t, server)
	ctx := context.Background()

	_, err := client.Exchange(ctx, "student", "wrong", "")
	require.True(t, IsInvalidLogin(err), err)
	require.False(t, IsServiceUnavailable(err))
	require.Empty(t, client.Token())

	token, err := client.Exchange(ctx, "student", "hunter2", "")
	require.NoError(t, err)
	require.Equal(t, server.Token, token)
	require.Equal(t, server.Token, client.Token())
}

func TestExchangeUnavailable(t *testing.T) {
	table := []struct {
		name   string
		code   string
		status int
	}{
		{name: "web services disabled", code: "enablewsdescription"},
		{name: "service disabled", code: "servicenotavailable"},
		{name: "token endpoint missing", status: http.StatusNotFound},
		{name: "token endpoint forbidden", status: http.StatusForbidden},
	}
	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			server := wstest.NewServer(t, "student", "hunter2")
			server.TokenErrorCode = row.code
			server.TokenStatus = row.status
			client := newTestClient(t, server)

			_, err := client.Exchange(context.Background(), "student", "hunter2", "")
			require.Error(t, err)
			require.True(t, IsServiceUnavailable(err), err)
			require.False(t, IsInvalidLogin(err))
		})
	}
}

func TestCallWithoutToken(t *testing.T) {
	server := wstest.NewServer(t, "student", "hunter2")
	client := newTestClient(t, server)

	_, err := client.SiteInfo(context.Background())
	require.ErrorIs(t, err, ErrNoToken)
	require.Empty(t, server.Calls())
}

func TestCallException(t *testing.T) {
	server := wstest.NewServer(t, "student", "hunter2")
	client := newTestClient(t, server)
	client.SetToken("revoked")

	_, err := client.SiteInfo(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, FunctionSiteInfo, apiErr.Function)
	require.Equal(t, "invalidtoken", apiErr.ErrorCode)
	require.True(t, IsInvalidToken(err))
}

func TestTypedCalls(t *testing.T) {
	server := wstest.NewServer(t, "student", "hunter2")
	server.Handle(FunctionSiteInfo, map[string]any{
		"sitename": "Example University",
		"username": "student",
		"userid":   42,
		"release":  "4.1.2 (Build: 20230313)",
	})
	server.HandleFunc(FunctionUsersCourses, func(form url.Values) any {
		require.Equal(t, "42", form.Get("userid"))
		return []map[string]any{
			{"id": 7, "shortname": "GO101", "fullname": "Intro to Go"},
		}
	})
	server.HandleFunc(FunctionCourseContents, func(form url.Values) any {
		require.Equal(t, "7", form.Get("courseid"))
		return []map[string]any{{
			"id": 1, "name": "Week 1", "section": 1,
			"modules": []map[string]any{{
				"id": 99, "name": "Homework 1", "modname": "assign",
				"url": server.URL + "/mod/assign/view.php?id=99",
			}},
		}}
	})
	server.HandleFunc(FunctionAssignments, func(form url.Values) any {
		require.Equal(t, "7", form.Get("courseids[0]"))
		require.Equal(t, "8", form.Get("courseids[1]"))
		return map[string]any{
			"courses": []map[string]any{{
				"id": 7, "fullname": "Intro to Go",
				"assignments": []map[string]any{{"id": 3, "cmid": 99, "name": "Homework 1", "duedate": 1700000000}},
			}},
			"warnings": []any{},
		}
	})

	client := newTestClient(t, server)
	ctx := context.Background()
	_, err := client.Exchange(ctx, "student", "hunter2", "")
	require.NoError(t, err)

	info, err := client.SiteInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, 42, info.UserID)

	courses, err := client.UsersCourses(ctx, info.UserID)
	require.NoError(t, err)
	if diff := cmp.Diff([]Course{{ID: 7, ShortName: "GO101", FullName: "Intro to Go"}}, courses); diff != "" {
		t.Fatal(diff)
	}

	sections, err := client.CourseContents(ctx, 7)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	require.Equal(t, "assign", sections[0].Modules[0].ModName)

	assignments, err := client.Assignments(ctx, []int{7, 8})
	require.NoError(t, err)
	require.Len(t, assignments.Courses, 1)
	require.Equal(t, int64(1700000000), assignments.Courses[0].Assignments[0].DueDate)

	for _, call := range server.Calls() {
		require.Equal(t, "json", call.Get("moodlewsrestformat"))
		require.Equal(t, server.Token, call.Get("wstoken"))
	}
	require.Equal(t, server.URL+"/mod/assign/view.php?id=99", client.AssignmentURL(99))
}

func TestDecodeException(t *testing.T) {
	require.Nil(t, decodeException("f", []byte(`[]`)))
	require.Nil(t, decodeException("f", []byte(`null`)))
	require.Nil(t, decodeException("f", []byte(`{"courses": []}`)))

	apiErr := decodeException("f", []byte(` {"exception":"moodle_exception","errorcode":"nopermissions","message":"no"}`))
	require.NotNil(t, apiErr)
	require.Equal(t, "nopermissions", apiErr.ErrorCode)
}
