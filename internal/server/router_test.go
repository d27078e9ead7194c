package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offsetx/carbon-tracker/internal/auth"
	"github.com/offsetx/carbon-tracker/internal/metrics"
	"github.com/offsetx/carbon-tracker/internal/models"
	"github.com/offsetx/carbon-tracker/internal/store"
	"github.com/offsetx/carbon-tracker/internal/tracker"
)

type memReports struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memReports) PutReport(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memReports) GetReport(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.objects[key]; ok {
		return data, nil
	}
	return nil, store.ErrNotFound
}

// testServer runs the full router over the memory store and memory sessions.
type testServer struct {
	t        *testing.T
	srv      *httptest.Server
	store    *store.MemoryStore
	sessions *auth.MemorySessionStore
}

func newTestServer(t *testing.T, reports tracker.ReportStore) *testServer {
	t.Helper()
	ts := &testServer{
		t:        t,
		store:    store.NewMemoryStore(),
		sessions: auth.NewMemorySessionStore(time.Hour),
	}
	ts.srv = httptest.NewServer(NewRouter(Deps{
		Store:       ts.store,
		Sessions:    ts.sessions,
		Reports:     reports,
		Cookie:      auth.CookieConfig{Name: "session", TTL: time.Hour},
		CORSOrigins: []string{"http://localhost:5173"},
		Metrics:     metrics.New("test"),
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

// client returns an HTTP client with its own cookie jar, i.e. one browser.
func (ts *testServer) client() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(ts.t, err)
	return &http.Client{Jar: jar}
}

func (ts *testServer) do(c *http.Client, method, path string, body any) (int, []byte) {
	ts.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, r)
	require.NoError(ts.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	return resp.StatusCode, data
}

func (ts *testServer) register(c *http.Client, username string) {
	ts.t.Helper()
	status, body := ts.do(c, http.MethodPost, "/api/register", models.RegisterRequest{
		Name: "Name " + username, Username: username, Password: "pw-" + username, Mobile: "555",
	})
	require.Equal(ts.t, http.StatusOK, status, string(body))
}

func (ts *testServer) login(c *http.Client, username string) {
	ts.t.Helper()
	status, body := ts.do(c, http.MethodPost, "/api/login", models.LoginRequest{
		Username: username, Password: "pw-" + username,
	})
	require.Equal(ts.t, http.StatusOK, status, string(body))
}

func (ts *testServer) signedIn(username string) *http.Client {
	c := ts.client()
	ts.register(c, username)
	ts.login(c, username)
	return c
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	status, body := ts.do(ts.client(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.client()
	ts.register(c, "asha")

	status, body := ts.do(c, http.MethodPost, "/api/register", models.RegisterRequest{
		Name: "Other", Username: "asha", Password: "different", Mobile: "000",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"username already exists"}`, string(body))

	// The original account still logs in with its own password.
	ts.login(c, "asha")
	status, body = ts.do(c, http.MethodGet, "/api/user", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Name asha", decode[models.User](t, body).Name)
}

func TestRegisterAnswersOKWithMessage(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := ts.do(ts.client(), http.MethodPost, "/api/register", models.RegisterRequest{
		Name: "Asha", Username: "asha", Password: "pw", Mobile: "555",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"message":"User registered successfully"}`, string(body))
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.client()

	status, _ := ts.do(c, http.MethodPost, "/api/register", models.RegisterRequest{Username: "x", Password: "y"})
	assert.Equal(t, http.StatusBadRequest, status)

	req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/register", strings.NewReader("{not json"))
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginSetsHTTPOnlyCookie(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.client()
	ts.register(c, "asha")

	raw, _ := json.Marshal(models.LoginRequest{Username: "asha", Password: "pw-asha"})
	resp, err := http.Post(ts.srv.URL+"/api/login", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == "session" {
			session = ck
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, 3600, session.MaxAge)
	assert.NotEmpty(t, session.Value)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.client()
	ts.register(c, "asha")

	_, wrongPassword := ts.do(c, http.MethodPost, "/api/login", models.LoginRequest{Username: "asha", Password: "nope"})
	status, unknownUser := ts.do(c, http.MethodPost, "/api/login", models.LoginRequest{Username: "ghost", Password: "nope"})

	assert.Equal(t, http.StatusUnauthorized, status)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, string(wrongPassword))
	assert.Equal(t, string(wrongPassword), string(unknownUser))

	// No session was issued.
	assert.Zero(t, ts.sessions.Len())
	status, _ = ts.do(c, http.MethodGet, "/api/user", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestUserOmitsPassword(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.signedIn("asha")

	status, body := ts.do(c, http.MethodGet, "/api/user", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, string(body), "password")
	assert.NotContains(t, string(body), "$2a$")

	u := decode[models.User](t, body)
	assert.Equal(t, "asha", u.Username)
	assert.Equal(t, "555", u.Mobile)
	assert.NotEmpty(t, u.ID)
}

func TestUserDeletedAfterLoginIsNotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.client()

	sid, err := ts.sessions.Create(context.Background(), "vanished-user")
	require.NoError(t, err)
	u, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/user", nil)
	u.AddCookie(&http.Cookie{Name: "session", Value: sid})
	resp, err := c.Do(u)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProtectedEndpointsRequireSession(t *testing.T) {
	ts := newTestServer(t, &memReports{objects: map[string][]byte{}})

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/user"},
		{http.MethodGet, "/api/summary/2024-03"},
		{http.MethodPost, "/api/share/2024-03"},
		{http.MethodGet, "/api/share/2024-03"},
	}
	for _, k := range models.Kinds {
		paths = append(paths,
			struct{ method, path string }{http.MethodPost, "/api/" + string(k)},
			struct{ method, path string }{http.MethodGet, "/api/" + string(k) + "/month/2024-03"},
			struct{ method, path string }{http.MethodGet, "/api/" + string(k) + "/day/2024-03-01"},
		)
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			// No cookie.
			status, _ := ts.do(ts.client(), p.method, p.path, map[string]string{})
			assert.Equal(t, http.StatusUnauthorized, status)

			// Forged cookie.
			req, _ := http.NewRequest(p.method, ts.srv.URL+p.path, strings.NewReader("{}"))
			req.AddCookie(&http.Cookie{Name: "session", Value: "forged-token"})
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.signedIn("asha")

	status, _ := ts.do(c, http.MethodGet, "/api/user", nil)
	require.Equal(t, http.StatusOK, status)

	status, body := ts.do(c, http.MethodPost, "/api/logout", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Zero(t, ts.sessions.Len())

	status, _ = ts.do(c, http.MethodGet, "/api/user", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRecordAndListByMonthAndDay(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.signedIn("asha")

	logs := []struct {
		kind  string
		entry any
	}{
		{"food", models.FoodLog{Date: "2024-03-01", Items: []string{"rice", "dal"}}},
		{"food", models.FoodLog{Date: "2024-04-01", Items: []string{"salad"}}},
		{"travel", models.TravelLog{Date: "2024-03-02", Mode: "bus", DistanceKM: 10}},
		{"electricity", models.ElectricityLog{Date: "2024-03-02", Units: 3}},
		{"lifestyle", models.LifestyleLog{Date: "2024-03-03", Habits: []string{"cycling"}}},
		{"food", models.FoodLog{Date: "2024-3-5", Items: []string{"tea"}}},
		{"food", models.FoodLog{Date: "2023-03-01", Items: []string{"toast"}}},
	}
	for _, l := range logs {
		status, body := ts.do(c, http.MethodPost, "/api/"+l.kind, l.entry)
		require.Equal(t, http.StatusOK, status, string(body))
	}

	status, body := ts.do(c, http.MethodPost, "/api/travel", models.TravelLog{Date: "2024-03-09", Mode: "car", DistanceKM: 1})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"message":"Travel log added"}`, string(body))

	status, body = ts.do(c, http.MethodGet, "/api/food/month/2024-03", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"date":"2024-03-01","items":["rice","dal"]}]`, string(body))

	status, body = ts.do(c, http.MethodGet, "/api/travel/month/2024-03", nil)
	require.Equal(t, http.StatusOK, status)
	travel := decode[[]models.TravelLog](t, body)
	require.Len(t, travel, 2)
	assert.Equal(t, "bus", travel[0].Mode)
	assert.Equal(t, "car", travel[1].Mode)

	status, body = ts.do(c, http.MethodGet, "/api/travel/day/2024-03-09", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"date":"2024-03-09","mode":"car","distance_km":1}]`, string(body))

	status, body = ts.do(c, http.MethodGet, "/api/lifestyle/month/2030-01", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestRecordRejectsInvalidEntries(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.signedIn("asha")

	status, body := ts.do(c, http.MethodPost, "/api/electricity", models.ElectricityLog{Date: "2024-03-01", Units: -5})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "units must be")

	status, _ = ts.do(c, http.MethodPost, "/api/travel", map[string]any{"date": "2024-03-01", "mode": "car", "distance_km": "far"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = ts.do(c, http.MethodGet, "/api/electricity/month/2024-03", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestSummary(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.signedIn("asha")

	for _, l := range []struct {
		kind  string
		entry any
	}{
		{"food", models.FoodLog{Date: "2024-03-01", Items: []string{"rice"}}},
		{"food", models.FoodLog{Date: "2024-03-02", Items: []string{"dal"}}},
		{"travel", models.TravelLog{Date: "2024-03-03", Mode: "car", DistanceKM: 10}},
		{"travel", models.TravelLog{Date: "2024-03-04", Mode: "bus", DistanceKM: 5}},
		{"electricity", models.ElectricityLog{Date: "2024-03-05", Units: 3}},
		{"lifestyle", models.LifestyleLog{Date: "2024-03-06", Habits: []string{"composting"}}},
		{"electricity", models.ElectricityLog{Date: "2024-04-01", Units: 400}},
	} {
		status, _ := ts.do(c, http.MethodPost, "/api/"+l.kind, l.entry)
		require.Equal(t, http.StatusOK, status)
	}

	status, body := ts.do(c, http.MethodGet, "/api/summary/2024-03", nil)
	require.Equal(t, http.StatusOK, status)

	sum := decode[tracker.Summary](t, body)
	assert.Len(t, sum.Food, 2)
	assert.Len(t, sum.Travel, 2)
	assert.Len(t, sum.Electricity, 1)
	assert.Len(t, sum.Lifestyle, 1)
	assert.Equal(t, 98.4, sum.GreenScore)
}

func TestLeaderboardIsPublicSortedAndCapped(t *testing.T) {
	ts := newTestServer(t, nil)

	for i := 0; i < 12; i++ {
		username := fmt.Sprintf("user%02d", i)
		c := ts.signedIn(username)
		// Higher index, more emission; months vary to show full-history scoring.
		status, _ := ts.do(c, http.MethodPost, "/api/electricity", models.ElectricityLog{
			Date:  fmt.Sprintf("20%02d-01-01", 10+i),
			Units: float64(12 - i),
		})
		require.Equal(t, http.StatusOK, status)
	}

	status, body := ts.do(ts.client(), http.MethodGet, "/api/leaderboard", nil)
	require.Equal(t, http.StatusOK, status)

	board := decode[[]tracker.LeaderboardEntry](t, body)
	require.Len(t, board, 10)
	assert.Equal(t, "user11", board[0].Username)
	assert.Equal(t, "Name user11", board[0].Name)
	assert.Equal(t, 0.85, board[0].TotalEmission)
	for i := 1; i < len(board); i++ {
		assert.LessOrEqual(t, board[i-1].TotalEmission, board[i].TotalEmission)
	}
	assert.NotContains(t, string(body), "user00")
}

func TestShareReports(t *testing.T) {
	reports := &memReports{objects: map[string][]byte{}}
	ts := newTestServer(t, reports)
	c := ts.signedIn("asha")

	status, _ := ts.do(c, http.MethodGet, "/api/share/2024-03", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.do(c, http.MethodPost, "/api/food", models.FoodLog{Date: "2024-03-01", Items: []string{"a", "b"}})
	require.Equal(t, http.StatusOK, status)

	status, body := ts.do(c, http.MethodPost, "/api/share/2024-03", nil)
	require.Equal(t, http.StatusCreated, status, string(body))
	card := decode[tracker.ShareCard](t, body)
	assert.Equal(t, 2.5, card.TotalEmission)
	assert.Equal(t, "A+", card.Grade)
	assert.Len(t, reports.objects, 1)

	status, body = ts.do(c, http.MethodGet, "/api/share/2024-03", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, card.ObjectKey, decode[tracker.ShareCard](t, body).ObjectKey)
}

func TestShareDisabled(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.signedIn("asha")

	status, body := ts.do(c, http.MethodPost, "/api/share/2024-03", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.JSONEq(t, `{"error":"share reports are disabled"}`, string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signedIn("asha")

	status, body := ts.do(ts.client(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "test_registrations_total 1")
	assert.Contains(t, string(body), `test_http_requests_total{method="POST",route="/api/login",status="200"} 1`)
}
