package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/meetup/internal/auth"
	"github.com/sakif/meetup/internal/config"
	"github.com/sakif/meetup/internal/logging"
	"github.com/sakif/meetup/internal/middleware"
	"github.com/sakif/meetup/internal/model"
	"github.com/sakif/meetup/internal/repository/sqlite"
)

const testSecret = "server-test-secret-0123456789"

func newTestServer(t *testing.T) (*httptest.Server, *auth.TokenService) {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		DBDriver:    config.DriverSQLite,
		DBPath:      ":memory:",
		JWTSecret:   testSecret,
		TokenTTL:    time.Hour,
		FrontendURL: "http://localhost:5173",
		CORSOrigins: []string{"http://localhost:5173"},
		Location:    time.UTC,
	}

	srv, err := New(cfg, db, logging.Discard())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	return ts, tokens
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func newClient(t *testing.T, base string, tokens *auth.TokenService, id auth.Identity) *client {
	token, err := tokens.Issue(id)
	require.NoError(t, err)
	return &client{t: t, base: base, token: token}
}

func (c *client) do(method, path, body string) (*http.Response, string) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, strings.NewReader(body))
	require.NoError(c.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, string(b)
}

// TestSeattleJUG walks the basic lifecycle over real HTTP: a group is
// created, a user joins it, schedules an event and attends it twice.
func TestSeattleJUG(t *testing.T) {
	ts, tokens := newTestServer(t)
	sam := newClient(t, ts.URL, tokens, auth.Identity{Subject: "auth0|sam", Name: "Sam", Email: "sam@example.com"})
	alice := newClient(t, ts.URL, tokens, auth.Identity{Subject: "auth0|alice", Name: "Alice", Email: "alice@example.com"})

	resp, body := sam.do(http.MethodPost, "/api/groups", `{"name":"Seattle JUG","city":"Seattle","country":"USA"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	var group model.Group
	require.NoError(t, json.Unmarshal([]byte(body), &group))
	assert.EqualValues(t, 1, group.ID)
	groupID := strconv.FormatInt(group.ID, 10)

	resp, body = alice.do(http.MethodPost, "/api/groups/members/"+groupID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = alice.do(http.MethodGet, "/api/groups", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mine []model.Group
	require.NoError(t, json.Unmarshal([]byte(body), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "Seattle JUG", mine[0].Name)

	resp, body = alice.do(http.MethodPost, "/api/events",
		`{"title":"Weekly Meetup","date":"2030-06-04T01:30:00Z","groupId":`+groupID+`}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	var event model.Event
	require.NoError(t, json.Unmarshal([]byte(body), &event))
	require.NotNil(t, event.Group)
	assert.Equal(t, group.ID, event.Group.ID)
	eventPath := "/api/events/" + strconv.FormatInt(event.ID, 10)

	resp, body = alice.do(http.MethodPost, eventPath+"/attendees", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.NoError(t, json.Unmarshal([]byte(body), &event))
	require.Len(t, event.Attendees, 1)
	assert.Equal(t, "auth0|alice", event.Attendees[0].ID)

	resp, body = alice.do(http.MethodPost, eventPath+"/attendees", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "User is already attending this event", body)

	resp, body = alice.do(http.MethodGet, eventPath, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &event))
	assert.Len(t, event.Attendees, 1, "second attend must not duplicate")

	t.Run("outsider cannot schedule", func(t *testing.T) {
		bob := newClient(t, ts.URL, tokens, auth.Identity{Subject: "auth0|bob", Name: "Bob"})
		resp, body := bob.do(http.MethodPost, "/api/events",
			`{"title":"Hijack","date":"2030-06-05T01:30:00Z","groupId":`+groupID+`}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "User is not a member of this group", body)

		resp, body = bob.do(http.MethodGet, "/api/events/available?size=50", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var page model.Page[model.Event]
		require.NoError(t, json.Unmarshal([]byte(body), &page))
		assert.EqualValues(t, 1, page.TotalElements)
	})

	t.Run("search", func(t *testing.T) {
		resp, body := alice.do(http.MethodGet, "/api/events/search?q=weekly", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var page model.Page[model.Event]
		require.NoError(t, json.Unmarshal([]byte(body), &page))
		require.Len(t, page.Content, 1)
		assert.Equal(t, "Weekly Meetup", page.Content[0].Title)
	})

	t.Run("missing ids are 404", func(t *testing.T) {
		resp, _ := alice.do(http.MethodGet, "/api/groups/404", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp, _ = alice.do(http.MethodGet, "/api/events/404", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
	b, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok"}`, string(b))
}

func TestMetrics(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/user")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), `meetup_http_requests_total{method="GET",route="/api/user",status="200"} 1`)
}

func TestAnonymousWritesRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/groups", "application/json", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/groups", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	t.Run("unknown origin", func(t *testing.T) {
		req.Header.Set("Origin", "https://evil.example")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestSessionWriteNeedsCSRFToken(t *testing.T) {
	ts, tokens := newTestServer(t)

	session, err := tokens.IssueSession(auth.Identity{Subject: "auth0|sam", Name: "Sam"})
	require.NoError(t, err)
	sessionCookie := &http.Cookie{Name: auth.SessionCookie, Value: session}

	// The SPA's first session request hands out the CSRF cookies.
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/user", nil)
	require.NoError(t, err)
	req.AddCookie(sessionCookie)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var csrfCookies []*http.Cookie
	var xsrf string
	for _, c := range resp.Cookies() {
		if c.Name == auth.SessionCookie {
			continue
		}
		csrfCookies = append(csrfCookies, c)
		if c.Name == middleware.CSRFCookie {
			xsrf = c.Value
		}
	}
	require.NotEmpty(t, xsrf)

	post := func(header string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/groups", strings.NewReader(`{"name":"Seattle JUG"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(sessionCookie)
		for _, c := range csrfCookies {
			req.AddCookie(c)
		}
		if header != "" {
			req.Header.Set(middleware.CSRFHeader, header)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusForbidden, post("").StatusCode)
	assert.Equal(t, http.StatusForbidden, post("forged-token").StatusCode)
	assert.Equal(t, http.StatusCreated, post(xsrf).StatusCode)

	t.Run("bearer writes need no token", func(t *testing.T) {
		sam := newClient(t, ts.URL, tokens, auth.Identity{Subject: "auth0|sam", Name: "Sam"})
		resp, body := sam.do(http.MethodPost, "/api/groups", `{"name":"Portland JUG"}`)
		assert.Equal(t, http.StatusCreated, resp.StatusCode, body)
	})
}

func TestHugePageIsEmpty(t *testing.T) {
	ts, tokens := newTestServer(t)
	sam := newClient(t, ts.URL, tokens, auth.Identity{Subject: "auth0|sam", Name: "Sam"})

	resp, body := sam.do(http.MethodPost, "/api/groups", `{"name":"Seattle JUG"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	var group model.Group
	require.NoError(t, json.Unmarshal([]byte(body), &group))
	resp, body = sam.do(http.MethodPost, "/api/events",
		`{"title":"Weekly Meetup","date":"2030-06-04T01:30:00Z","groupId":`+strconv.FormatInt(group.ID, 10)+`}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	for _, path := range []string{
		"/api/events/available?page=9223372036854775807",
		"/api/groups/available/paginated?page=9223372036854775807",
	} {
		t.Run(path, func(t *testing.T) {
			resp, body := sam.do(http.MethodGet, path, "")
			require.Equal(t, http.StatusOK, resp.StatusCode, body)

			var page struct {
				Content       []json.RawMessage `json:"content"`
				TotalElements int64             `json:"totalElements"`
				TotalPages    int               `json:"totalPages"`
				HasNext       bool              `json:"hasNext"`
			}
			require.NoError(t, json.Unmarshal([]byte(body), &page))
			assert.Empty(t, page.Content)
			assert.False(t, page.HasNext)
			assert.EqualValues(t, 1, page.TotalElements)
			assert.Equal(t, 1, page.TotalPages)
		})
	}
}
