package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"taskflow/internal/config"
	"taskflow/internal/handlers/dto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            "0",
			Host:            "127.0.0.1",
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: time.Second,
			CORSOrigins:     []string{"http://localhost:3000"},
		},
		Repository: config.RepositoryConfig{Type: "inmemory"},
		Auth: config.AuthConfig{
			Provider:    "local",
			JWTSecret:   "0123456789abcdef0123456789abcdef",
			TokenTTL:    time.Hour,
			SiteURL:     "http://localhost:8080",
			AutoConfirm: true,
		},
		Timeline: config.TimelineConfig{NoDueDate: "same_day", Inverted: "drop"},
	}
}

func call(t *testing.T, h http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func field(t *testing.T, rec *httptest.ResponseRecorder, key string, dst any) {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	require.NoError(t, json.Unmarshal(body[key], dst))
}

func TestApp_EndToEnd(t *testing.T) {
	a := New(testConfig())
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(a.Close)
	h := a.Handler()

	rec := call(t, h, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = call(t, h, http.MethodPost, "/auth/signup", "",
		`{"email":"ada@example.com","password":"secret1","confirm_password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(t, h, http.MethodPost, "/auth/login", "", `{"email":"ada@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session dto.SessionResponse
	field(t, rec, "session", &session)
	token := session.AccessToken
	require.NotEmpty(t, token)

	today := time.Now().UTC()
	rec = call(t, h, http.MethodPost, "/tasks", token, `{"title":"Write report","due_date":"`+today.Format("2006-01-02")+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created dto.TaskResponse
	field(t, rec, "task", &created)
	assert.Equal(t, 1, created.Version)

	rec = call(t, h, http.MethodPost, "/tasks/"+created.ID.String()+"/toggle", token, `{"version":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, h, http.MethodPost, "/tasks/"+created.ID.String()+"/toggle", token, `{"version":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, h, http.MethodGet, "/tasks?status=done", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []dto.TaskResponse
	field(t, rec, "tasks", &tasks)
	require.Len(t, tasks, 1)
	assert.Equal(t, created.ID, tasks[0].ID)

	rec = call(t, h, http.MethodGet, "/tasks/timeline?month="+today.Format("2006-01"), token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tl dto.TimelineResponse
	field(t, rec, "timeline", &tl)
	assert.Equal(t, today.Format("2006-01"), tl.Month)
	require.NotEmpty(t, tl.Bars)
	assert.Equal(t, created.ID, tl.Bars[0].TaskID)

	rec = call(t, h, http.MethodDelete, "/tasks/"+created.ID.String(), token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, h, http.MethodPost, "/auth/logout", token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, h, http.MethodGet, "/tasks", token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApp_UsersAreIsolated(t *testing.T) {
	a := New(testConfig())
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(a.Close)
	h := a.Handler()

	login := func(email string) string {
		rec := call(t, h, http.MethodPost, "/auth/signup", "",
			`{"email":"`+email+`","password":"secret1","confirm_password":"secret1"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var s dto.SessionResponse
		field(t, rec, "session", &s)
		return s.AccessToken
	}
	alice, bob := login("alice@example.com"), login("bob@example.com")

	rec := call(t, h, http.MethodPost, "/tasks", alice, `{"title":"private"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created dto.TaskResponse
	field(t, rec, "task", &created)

	rec = call(t, h, http.MethodGet, "/tasks/"+created.ID.String(), bob, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, h, http.MethodGet, "/tasks", bob, "")
	var tasks []dto.TaskResponse
	field(t, rec, "tasks", &tasks)
	assert.Empty(t, tasks)
}

func TestApp_CORSPreflight(t *testing.T) {
	a := New(testConfig())
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(a.Close)

	req := httptest.NewRequest(http.MethodOptions, "/tasks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	a := New(testConfig())
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(a.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
