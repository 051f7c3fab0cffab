package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/Sternrassler/webreq/internal/testutil"
	"github.com/Sternrassler/webreq/pkg/client"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func newMock(t *testing.T) *testutil.MockAPI {
	t.Helper()
	mock := testutil.NewMockAPI()
	t.Cleanup(mock.Close)
	return mock
}

func TestInvokeCommand_Get(t *testing.T) {
	mock := newMock(t)
	mock.SetResponse("/users/42", testutil.NewJSONResponse(http.StatusOK, `{"id": 42}`))

	stdout, stderr, err := runCLI(t, "invoke",
		"--scheme", "http", "--host", mock.Host(),
		"--path", "/users/{id}", "-p", "id=42",
		"-q", "tag=a", "-q", "tag=b",
		"-H", "X-Trace=abc",
		"--cookie", "session=s1",
		"-u", "u", "--password", "p",
	)
	require.NoError(t, err)
	require.Equal(t, `{"id": 42}`, stdout)
	require.Contains(t, stderr, "status: 200")

	req, ok := mock.LastRequest()
	require.True(t, ok)
	require.Equal(t, "/users/42", req.Path)
	require.Equal(t, []string{"a", "b"}, req.Query["tag"])
	require.Equal(t, "abc", req.Header.Get("X-Trace"))
	require.Equal(t, (&client.BasicAuth{Username: "u", Password: "p"}).Header(), req.Header.Get("Authorization"))
	require.Len(t, req.Cookies, 1)
}

func TestInvokeCommand_Include(t *testing.T) {
	mock := newMock(t)
	mock.SetResponse("/x", testutil.NewJSONResponse(http.StatusCreated, `{}`))

	stdout, _, err := runCLI(t, "invoke", "--scheme", "http", "--host", mock.Host(), "--path", "/x", "-i")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "HTTP/1.1 201 Created\n"), stdout)
	require.Contains(t, stdout, "Content-Type: application/json")
}

func TestInvokeCommand_PostJSON(t *testing.T) {
	mock := newMock(t)

	_, _, err := runCLI(t, "invoke", "-X", "POST", "--scheme", "http", "--host", mock.Host(), "--path", "/items", "--json", `{"a":1}`)
	require.NoError(t, err)

	req, _ := mock.LastRequest()
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, "application/json", req.Header.Get("Content-Type"))
	require.Equal(t, "{\n  \"a\": 1\n}", string(req.Body))
}

func TestInvokeCommand_Errors(t *testing.T) {
	mock := newMock(t)
	mock.SetResponse("/broken", testutil.NewServerErrorResponse())

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing host",
			args:    []string{"invoke", "--path", "/x"},
			wantErr: "--host is required",
		},
		{
			name:    "unsupported method",
			args:    []string{"invoke", "-X", "PATCH", "--scheme", "http", "--host", mock.Host()},
			wantErr: `invalid method "PATCH"`,
		},
		{
			name:    "data and json together",
			args:    []string{"invoke", "-X", "POST", "--scheme", "http", "--host", mock.Host(), "-d", "x", "--json", "{}"},
			wantErr: "mutually exclusive",
		},
		{
			name:    "invalid json",
			args:    []string{"invoke", "-X", "POST", "--scheme", "http", "--host", mock.Host(), "--json", "{"},
			wantErr: "not valid JSON",
		},
		{
			name:    "bad pair",
			args:    []string{"invoke", "--scheme", "http", "--host", mock.Host(), "-q", "novalue"},
			wantErr: "expected name=value",
		},
		{
			name:    "fail on server error",
			args:    []string{"invoke", "--scheme", "http", "--host", mock.Host(), "--path", "/broken", "--fail"},
			wantErr: "status 500",
		},
		{
			name:    "negative rate",
			args:    []string{"invoke", "--rate", "-1", "--scheme", "http", "--host", mock.Host()},
			wantErr: "invalid configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.Reset()
			_, _, err := runCLI(t, tt.args...)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestInvokeCommand_UnsupportedMethodSendsNothing(t *testing.T) {
	mock := newMock(t)

	_, _, err := runCLI(t, "invoke", "-X", "PATCH", "--scheme", "http", "--host", mock.Host())
	require.Error(t, err)
	require.Equal(t, 0, mock.GetRequestCount())
}

func TestFetchOffsetCommand_JSON(t *testing.T) {
	mock := newMock(t)
	mock.SetOffsetPages("/versions", "startAt", "values", []any{
		map[string]any{"id": 1},
		map[string]any{"id": 2},
		map[string]any{"id": 3},
	}, 2)

	stdout, _, err := runCLI(t, "fetch", "offset", "--scheme", "http", "--host", mock.Host(), "--path", "/versions")
	require.NoError(t, err)

	var items []map[string]int
	require.NoError(t, json.Unmarshal([]byte(stdout), &items))
	require.Equal(t, []map[string]int{{"id": 1}, {"id": 2}, {"id": 3}}, items)

	// 0, 2 and the empty page at 3
	require.Equal(t, 3, mock.GetRequestCount())
}

func TestFetchOffsetCommand_CustomParam(t *testing.T) {
	mock := newMock(t)
	mock.SetOffsetPages("/list", "offset", "data", []any{"a", "b", "c"}, 5)

	stdout, _, err := runCLI(t, "fetch", "offset", "--scheme", "http", "--host", mock.Host(), "--path", "/list",
		"--start-at-param", "offset", "--items-field", "data")
	require.NoError(t, err)

	var items []string
	require.NoError(t, json.Unmarshal([]byte(stdout), &items))
	require.Equal(t, []string{"a", "b", "c"}, items)
}

func TestFetchCursorCommand_YAML(t *testing.T) {
	mock := newMock(t)
	mock.SetCursorPages("/events", "cursor", "results", "cursor", [][]any{
		{map[string]any{"n": 1}},
		{map[string]any{"n": 2}},
	})

	stdout, _, err := runCLI(t, "fetch", "cursor", "--scheme", "http", "--host", mock.Host(), "--path", "/events", "-o", "yaml")
	require.NoError(t, err)

	var items []map[string]int
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &items))
	require.Equal(t, []map[string]int{{"n": 1}, {"n": 2}}, items)
	require.Equal(t, 2, mock.GetRequestCount())
}

func TestFetchCursorCommand_CursorParamAndTable(t *testing.T) {
	mock := newMock(t)
	mock.SetCursorPages("/events", "after", "items", "next", [][]any{
		{map[string]any{"name": "alpha", "size": 1}},
		{map[string]any{"name": "beta"}},
	})

	stdout, _, err := runCLI(t, "fetch", "cursor", "--scheme", "http", "--host", mock.Host(), "--path", "/events",
		"--items-field", "items", "--cursor-field", "next", "--cursor-param", "after", "-o", "table")
	require.NoError(t, err)
	require.Contains(t, stdout, "alpha")
	require.Contains(t, stdout, "beta")
	require.Contains(t, strings.ToLower(stdout), "2 items")

	requests := mock.Requests()
	require.Len(t, requests, 2)
	require.Equal(t, "p1", requests[1].Query.Get("after"))
}

func TestFetchCommand_BadFormat(t *testing.T) {
	mock := newMock(t)

	_, _, err := runCLI(t, "fetch", "offset", "--scheme", "http", "--host", mock.Host(), "-o", "xml")
	require.ErrorContains(t, err, "unknown output format")
	require.Equal(t, 0, mock.GetRequestCount())
}

func TestParsePairs(t *testing.T) {
	pairs, err := parsePairs("query", []string{"a=1", "b=", "c=x=y"})
	require.NoError(t, err)
	require.Equal(t, [][2]string{{"a", "1"}, {"b", ""}, {"c", "x=y"}}, pairs)

	_, err = parsePairs("query", []string{"=1"})
	require.ErrorContains(t, err, "--query")
}

func TestRequestFlags_BasicAuthNeedsBoth(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
		wantAuth bool
	}{
		{name: "both", user: "u", password: "p", wantAuth: true},
		{name: "user only", user: "u"},
		{name: "password only", password: "p"},
		{name: "neither"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := requestFlags{method: "GET", scheme: "https", host: "example.com", path: "/", user: tt.user, password: tt.password}
			coords, err := f.coordinates()
			require.NoError(t, err)
			if tt.wantAuth {
				require.NotNil(t, coords.Auth)
				require.Equal(t, tt.user, coords.Auth.Username)
				require.Equal(t, tt.password, coords.Auth.Password)
			} else {
				require.Nil(t, coords.Auth)
			}
		})
	}
}

func TestInvokeCommand_UserWithoutPasswordSendsNoAuth(t *testing.T) {
	mock := newMock(t)

	_, _, err := runCLI(t, "invoke", "--scheme", "http", "--host", mock.Host(), "--path", "/x", "-u", "u")
	require.NoError(t, err)

	req, ok := mock.LastRequest()
	require.True(t, ok)
	require.Empty(t, req.Header.Get("Authorization"))
}

func TestWriteItems(t *testing.T) {
	items := []json.RawMessage{json.RawMessage(`{"id":1,"tags":["a"]}`), json.RawMessage(`{"id":2}`)}

	var buf bytes.Buffer
	require.NoError(t, writeItems(&buf, formatJSON, items))
	require.JSONEq(t, `[{"id":1,"tags":["a"]},{"id":2}]`, buf.String())

	buf.Reset()
	require.NoError(t, writeItems(&buf, formatTable, items))
	require.Contains(t, buf.String(), `["a"]`)

	buf.Reset()
	require.NoError(t, writeItems(&buf, formatTable, []json.RawMessage{json.RawMessage(`"x"`), json.RawMessage(`3`)}))
	require.Contains(t, buf.String(), "x")

	buf.Reset()
	require.NoError(t, writeItems(&buf, formatJSON, []json.RawMessage{}))
	require.Equal(t, "[]\n", buf.String())

	require.Error(t, writeItems(&buf, "csv", items))
}
