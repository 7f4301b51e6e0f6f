package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"taskflow/internal/app"
	"taskflow/internal/client"
	"taskflow/internal/config"
	"taskflow/internal/models/task"
	"taskflow/internal/state"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startAPI(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		Server:     config.ServerConfig{Port: "0", Host: "127.0.0.1", RequestTimeout: 5 * time.Second, ShutdownTimeout: time.Second},
		Repository: config.RepositoryConfig{Type: "inmemory"},
		Auth: config.AuthConfig{
			Provider:    "local",
			JWTSecret:   "0123456789abcdef0123456789abcdef",
			TokenTTL:    time.Hour,
			SiteURL:     "http://localhost",
			AutoConfirm: true,
		},
		Timeline: config.TimelineConfig{NoDueDate: "same_day", Inverted: "drop"},
	}
	a := app.New(cfg)
	require.NoError(t, a.Init(context.Background()))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})

	resp, err := http.Post(srv.URL+"/auth/signup", "application/json",
		strings.NewReader(`{"email":"ada@example.com","password":"secret1","confirm_password":"secret1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return srv
}

func login(t *testing.T, srv *httptest.Server) (*client.Client, uuid.UUID) {
	t.Helper()
	c, err := client.New(srv.URL)
	require.NoError(t, err)
	s, err := c.Login(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)
	return c, s.User.ID
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := client.New("not a url")
	assert.Error(t, err)
}

func TestClient_CRUD(t *testing.T) {
	srv := startAPI(t)
	c, userID := login(t, srv)
	ctx := context.Background()

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", me.Email)

	due := time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC)
	created, err := c.CreateTask(ctx, userID, &task.Task{Title: "Write report", DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, task.StatusTodo, created.Status)
	require.NotNil(t, created.DueDate)
	assert.True(t, due.Equal(*created.DueDate))

	moved, err := c.SetStatus(ctx, userID, created.ID, task.StatusInProgress, created.Version)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, moved.Status)

	edited := moved.Clone()
	edited.Title = "Write final report"
	edited.DueDate = nil
	updated, err := c.UpdateTask(ctx, userID, edited)
	require.NoError(t, err)
	assert.Equal(t, "Write final report", updated.Title)
	assert.Nil(t, updated.DueDate)
	assert.Equal(t, task.StatusInProgress, updated.Status)

	_, err = c.SetStatus(ctx, userID, created.ID, task.StatusDone, created.Version)
	assert.True(t, client.IsConflict(err), "stale version: %v", err)

	tasks, err := c.ListTasks(ctx, userID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, userID, tasks[0].UserID)

	require.NoError(t, c.DeleteTask(ctx, userID, created.ID, updated.Version))
	_, err = c.GetTask(ctx, userID, created.ID)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)

	require.NoError(t, c.Logout(ctx))
	_, err = c.Me(ctx)
	assert.True(t, client.IsUnauthorized(err))
}

func TestClient_WithController(t *testing.T) {
	srv := startAPI(t)
	c, userID := login(t, srv)
	ctx := context.Background()

	seed, err := c.CreateTask(ctx, userID, &task.Task{Title: "seed"})
	require.NoError(t, err)

	tasks, err := c.ListTasks(ctx, userID)
	require.NoError(t, err)
	ctrl := state.NewController(state.NewStore(tasks), c, userID)

	toggled, err := ctrl.Toggle(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusDone, toggled.Status)

	// Another writer bumps the version behind the controller's back.
	_, err = c.SetStatus(ctx, userID, seed.ID, task.StatusTodo, toggled.Version)
	require.NoError(t, err)

	_, err = ctrl.SetStatus(ctx, seed.ID, task.StatusInProgress)
	require.Error(t, err)
	cached, ok := ctrl.Store().Get(seed.ID)
	require.True(t, ok)
	assert.Equal(t, task.StatusDone, cached.Status, "failed write rolls back to the last confirmed state")
}

func TestClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"TIMELINE_CAPACITY","message":"too many overlapping tasks"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := client.New(srv.URL, client.WithToken("tok"))
	require.NoError(t, err)

	_, err = c.ListTasks(context.Background(), uuid.New())
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "TIMELINE_CAPACITY", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "too many overlapping tasks")
}
