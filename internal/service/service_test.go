package service_test

import (
	"context"
	"errors"
	"taskflow/internal/events"
	"taskflow/internal/filter"
	"taskflow/internal/models/task"
	"taskflow/internal/repository"
	"taskflow/internal/repository/task/inmemory"
	"taskflow/internal/service"
	"taskflow/internal/state"
	"taskflow/internal/timeline"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTaskRepository) Create(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*task.Task, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskRepository) ListByUser(ctx context.Context, userID uuid.UUID, order repository.Order) ([]*task.Task, error) {
	args := m.Called(ctx, userID, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*task.Task), args.Error(1)
}

func (m *MockTaskRepository) Update(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepository) Delete(ctx context.Context, userID, id uuid.UUID, version int) error {
	args := m.Called(ctx, userID, id, version)
	return args.Error(0)
}

func (m *MockTaskRepository) ListDueBefore(ctx context.Context, deadline time.Time, limit int) ([]*task.Task, error) {
	args := m.Called(ctx, deadline, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*task.Task), args.Error(1)
}

var _ service.TaskRepository = (*MockTaskRepository)(nil)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error { return errors.New("broker down") }
func (failingPublisher) Close() error                                { return nil }

var defaultPolicy = timeline.Policy{NoDueDate: timeline.SpanSameDay, Inverted: timeline.InvertedDrop}

func businessCode(t *testing.T, err error) string {
	t.Helper()
	var busErr *service.BusinessError
	require.True(t, errors.As(err, &busErr), "expected BusinessError, got %v", err)
	return busErr.Code
}

func TestTaskService_HealthCheck(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(*MockTaskRepository)
		expectError bool
	}{
		{
			name: "success - health check passes",
			setupMock: func(m *MockTaskRepository) {
				m.On("HealthCheck", mock.Anything).Return(nil)
			},
		},
		{
			name: "error - health check fails",
			setupMock: func(m *MockTaskRepository) {
				m.On("HealthCheck", mock.Anything).Return(errors.New("db connection failed"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockTaskRepository)
			tt.setupMock(mockRepo)

			svc := service.NewTaskService(mockRepo, nil, defaultPolicy)
			err := svc.HealthCheck(context.Background())

			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "health check")
			} else {
				assert.NoError(t, err)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestTaskService_CreateTask(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	due := time.Date(2026, time.October, 20, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		input     service.CreateTaskInput
		setupMock func(*MockTaskRepository)
		errCode   string
		check     func(*testing.T, *task.Task)
	}{
		{
			name:  "success - defaults to todo and trims",
			input: service.CreateTaskInput{Title: "  Write report  ", Description: " draft ", DueDate: &due},
			setupMock: func(m *MockTaskRepository) {
				m.On("Create", mock.Anything, mock.MatchedBy(func(tk *task.Task) bool {
					return tk.Title == "Write report" && tk.UserID == userID && tk.ID != uuid.Nil
				})).Return(nil)
			},
			check: func(t *testing.T, tk *task.Task) {
				assert.Equal(t, task.StatusTodo, tk.Status)
				assert.Equal(t, "draft", tk.Description)
				require.NotNil(t, tk.DueDate)
				assert.Equal(t, task.DateOf(due), *tk.DueDate)
			},
		},
		{
			name:  "success - explicit status",
			input: service.CreateTaskInput{Title: "Ship", Status: task.StatusInProgress},
			setupMock: func(m *MockTaskRepository) {
				m.On("Create", mock.Anything, mock.Anything).Return(nil)
			},
			check: func(t *testing.T, tk *task.Task) {
				assert.Equal(t, task.StatusInProgress, tk.Status)
				assert.Nil(t, tk.DueDate)
			},
		},
		{
			name:      "error - blank title",
			input:     service.CreateTaskInput{Title: "   "},
			setupMock: func(m *MockTaskRepository) {},
			errCode:   service.CodeValidation,
		},
		{
			name:      "error - title too long",
			input:     service.CreateTaskInput{Title: string(make([]rune, task.MaxTitleLength+1))},
			setupMock: func(m *MockTaskRepository) {},
			errCode:   service.CodeValidation,
		},
		{
			name:      "error - unknown status",
			input:     service.CreateTaskInput{Title: "x", Status: task.Status("blocked")},
			setupMock: func(m *MockTaskRepository) {},
			errCode:   service.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockTaskRepository)
			tt.setupMock(mockRepo)
			rec := &events.Recorder{}

			svc := service.NewTaskService(mockRepo, rec, defaultPolicy)
			created, err := svc.CreateTask(ctx, userID, tt.input)

			if tt.errCode != "" {
				assert.Equal(t, tt.errCode, businessCode(t, err))
				assert.Empty(t, rec.Events())
			} else {
				require.NoError(t, err)
				tt.check(t, created)
				assert.Equal(t, []events.Kind{events.KindCreated}, rec.Kinds())
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestTaskService_CreateTask_PublishFailureIgnored(t *testing.T) {
	mockRepo := new(MockTaskRepository)
	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	svc := service.NewTaskService(mockRepo, failingPublisher{}, defaultPolicy)
	created, err := svc.CreateTask(context.Background(), uuid.New(), service.CreateTaskInput{Title: "x"})

	require.NoError(t, err)
	assert.NotNil(t, created)
}

func TestTaskService_UpdateTask(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	taskID := uuid.New()

	stored := func() *task.Task {
		return &task.Task{ID: taskID, UserID: userID, Title: "Old", Status: task.StatusTodo, Version: 3}
	}

	tests := []struct {
		name      string
		version   int
		opts      []task.TaskOption
		setupMock func(*MockTaskRepository)
		errCode   string
	}{
		{
			name:    "success - matching version",
			version: 3,
			opts:    []task.TaskOption{task.WithTitle("New")},
			setupMock: func(m *MockTaskRepository) {
				m.On("GetByID", mock.Anything, userID, taskID).Return(stored(), nil)
				m.On("Update", mock.Anything, mock.MatchedBy(func(tk *task.Task) bool {
					return tk.Title == "New" && tk.Version == 3
				})).Return(nil)
			},
		},
		{
			name:    "success - version zero skips check",
			version: 0,
			opts:    []task.TaskOption{task.WithStatus(task.StatusDone)},
			setupMock: func(m *MockTaskRepository) {
				m.On("GetByID", mock.Anything, userID, taskID).Return(stored(), nil)
				m.On("Update", mock.Anything, mock.Anything).Return(nil)
			},
		},
		{
			name:    "error - stale version",
			version: 2,
			opts:    []task.TaskOption{task.WithTitle("New")},
			setupMock: func(m *MockTaskRepository) {
				m.On("GetByID", mock.Anything, userID, taskID).Return(stored(), nil)
			},
			errCode: service.CodeVersionConflict,
		},
		{
			name:    "error - not found",
			version: 3,
			setupMock: func(m *MockTaskRepository) {
				m.On("GetByID", mock.Anything, userID, taskID).Return(nil, repository.ErrNotFound)
			},
			errCode: service.CodeNotFound,
		},
		{
			name:    "error - cleared title",
			version: 3,
			opts:    []task.TaskOption{task.WithTitle(" ")},
			setupMock: func(m *MockTaskRepository) {
				m.On("GetByID", mock.Anything, userID, taskID).Return(stored(), nil)
			},
			errCode: service.CodeValidation,
		},
		{
			name:    "error - concurrent write",
			version: 3,
			opts:    []task.TaskOption{task.WithTitle("New")},
			setupMock: func(m *MockTaskRepository) {
				m.On("GetByID", mock.Anything, userID, taskID).Return(stored(), nil)
				m.On("Update", mock.Anything, mock.Anything).Return(repository.ErrVersionConflict)
			},
			errCode: service.CodeVersionConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockTaskRepository)
			tt.setupMock(mockRepo)

			svc := service.NewTaskService(mockRepo, nil, defaultPolicy)
			updated, err := svc.UpdateTask(ctx, userID, taskID, tt.version, tt.opts...)

			if tt.errCode != "" {
				assert.Equal(t, tt.errCode, businessCode(t, err))
				assert.Nil(t, updated)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, updated)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestTaskService_SetStatus_RejectsUnknown(t *testing.T) {
	mockRepo := new(MockTaskRepository)
	svc := service.NewTaskService(mockRepo, nil, defaultPolicy)

	_, err := svc.SetStatus(context.Background(), uuid.New(), uuid.New(), task.Status("archived"), 1)

	assert.Equal(t, service.CodeValidation, businessCode(t, err))
	mockRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything, mock.Anything)
}

func TestTaskService_ToggleStatus(t *testing.T) {
	userID := uuid.New()
	taskID := uuid.New()

	tests := []struct {
		from task.Status
		to   task.Status
	}{
		{from: task.StatusTodo, to: task.StatusDone},
		{from: task.StatusInProgress, to: task.StatusDone},
		{from: task.StatusDone, to: task.StatusTodo},
	}

	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			mockRepo := new(MockTaskRepository)
			mockRepo.On("GetByID", mock.Anything, userID, taskID).
				Return(&task.Task{ID: taskID, UserID: userID, Title: "x", Status: tt.from, Version: 1}, nil)
			mockRepo.On("Update", mock.Anything, mock.MatchedBy(func(tk *task.Task) bool {
				return tk.Status == tt.to
			})).Return(nil)

			svc := service.NewTaskService(mockRepo, nil, defaultPolicy)
			toggled, err := svc.ToggleStatus(context.Background(), userID, taskID, 1)

			require.NoError(t, err)
			assert.Equal(t, tt.to, toggled.Status)
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestTaskService_DeleteTask(t *testing.T) {
	userID := uuid.New()
	taskID := uuid.New()

	tests := []struct {
		name    string
		repoErr error
		errCode string
		events  []events.Kind
	}{
		{name: "success", events: []events.Kind{events.KindDeleted}},
		{name: "not found", repoErr: repository.ErrNotFound, errCode: service.CodeNotFound},
		{name: "stale", repoErr: repository.ErrVersionConflict, errCode: service.CodeVersionConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockTaskRepository)
			mockRepo.On("Delete", mock.Anything, userID, taskID, 2).Return(tt.repoErr)
			rec := &events.Recorder{}

			svc := service.NewTaskService(mockRepo, rec, defaultPolicy)
			err := svc.DeleteTask(context.Background(), userID, taskID, 2)

			if tt.errCode != "" {
				assert.Equal(t, tt.errCode, businessCode(t, err))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.events, rec.Kinds())
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestTaskService_DeleteTask_DatabaseError(t *testing.T) {
	mockRepo := new(MockTaskRepository)
	mockRepo.On("Delete", mock.Anything, mock.Anything, mock.Anything, 0).Return(errors.New("connection reset"))

	svc := service.NewTaskService(mockRepo, nil, defaultPolicy)
	err := svc.DeleteTask(context.Background(), uuid.New(), uuid.New(), 0)

	require.Error(t, err)
	var busErr *service.BusinessError
	assert.False(t, errors.As(err, &busErr))
}

func TestTaskService_ListTasks(t *testing.T) {
	userID := uuid.New()
	base := time.Date(2026, time.October, 1, 9, 0, 0, 0, time.UTC)
	due := func(d int) *time.Time {
		v := time.Date(2026, time.October, d, 0, 0, 0, 0, time.UTC)
		return &v
	}
	tasks := []*task.Task{
		{ID: uuid.New(), Title: "Buy milk", Status: task.StatusTodo, CreatedAt: base, DueDate: due(9)},
		{ID: uuid.New(), Title: "Write tests", Status: task.StatusDone, CreatedAt: base.Add(time.Hour)},
		{ID: uuid.New(), Title: "Review MILK order", Status: task.StatusInProgress, CreatedAt: base.Add(2 * time.Hour), DueDate: due(5)},
	}

	tests := []struct {
		name     string
		opts     service.ListOptions
		order    repository.Order
		expected []string
	}{
		{
			name:     "default sort",
			order:    repository.OrderCreatedDesc,
			expected: []string{"Review MILK order", "Write tests", "Buy milk"},
		},
		{
			name:     "incomplete due ascending",
			opts:     service.ListOptions{Criteria: filter.Criteria{Status: filter.StatusIncomplete}, Sort: filter.SortDueAsc},
			order:    repository.OrderDueAsc,
			expected: []string{"Review MILK order", "Buy milk"},
		},
		{
			name:     "query",
			opts:     service.ListOptions{Criteria: filter.Criteria{Query: "milk"}, Sort: filter.SortCreatedAsc},
			order:    repository.OrderCreatedAsc,
			expected: []string{"Buy milk", "Review MILK order"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockTaskRepository)
			mockRepo.On("ListByUser", mock.Anything, userID, tt.order).Return(tasks, nil)

			svc := service.NewTaskService(mockRepo, nil, defaultPolicy)
			got, err := svc.ListTasks(context.Background(), userID, tt.opts)

			require.NoError(t, err)
			titles := make([]string, len(got))
			for i, tk := range got {
				titles[i] = tk.Title
			}
			assert.Equal(t, tt.expected, titles)
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestTaskService_Board(t *testing.T) {
	userID := uuid.New()
	now := time.Now().UTC()
	mockRepo := new(MockTaskRepository)
	mockRepo.On("ListByUser", mock.Anything, userID, repository.OrderCreatedDesc).Return([]*task.Task{
		{ID: uuid.New(), Title: "a", Status: task.StatusDone, CreatedAt: now},
		{ID: uuid.New(), Title: "b", Status: task.StatusTodo, CreatedAt: now.Add(-time.Minute)},
	}, nil)

	svc := service.NewTaskService(mockRepo, nil, defaultPolicy)
	columns, err := svc.Board(context.Background(), userID, filter.Criteria{})

	require.NoError(t, err)
	require.Len(t, columns, 3)
	assert.Equal(t, task.StatusTodo, columns[0].Status)
	assert.Len(t, columns[0].Tasks, 1)
	assert.Empty(t, columns[1].Tasks)
	assert.Len(t, columns[2].Tasks, 1)
}

func TestTaskService_Timeline(t *testing.T) {
	userID := uuid.New()
	created := time.Date(2026, time.October, 5, 10, 0, 0, 0, time.UTC)
	due := time.Date(2026, time.October, 14, 0, 0, 0, 0, time.UTC)
	tasks := []*task.Task{
		{ID: uuid.New(), Title: "a", Status: task.StatusTodo, CreatedAt: created, DueDate: &due},
		{ID: uuid.New(), Title: "b", Status: task.StatusTodo, CreatedAt: created.Add(time.Hour), DueDate: &due},
	}

	t.Run("success", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		mockRepo.On("ListByUser", mock.Anything, userID, repository.OrderCreatedAsc).Return(tasks, nil)

		svc := service.NewTaskService(mockRepo, nil, defaultPolicy)
		layout, err := svc.Timeline(context.Background(), userID, 2026, time.October, filter.Criteria{})

		require.NoError(t, err)
		assert.Equal(t, 2, layout.Rows)
		assert.Len(t, layout.BarsFor(tasks[0].ID), 2)
	})

	t.Run("capacity exceeded", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		mockRepo.On("ListByUser", mock.Anything, userID, repository.OrderCreatedAsc).Return(tasks, nil)

		policy := defaultPolicy
		policy.MaxRows = 1
		svc := service.NewTaskService(mockRepo, nil, policy)
		_, err := svc.Timeline(context.Background(), userID, 2026, time.October, filter.Criteria{})

		assert.Equal(t, service.CodeTimelineCapacity, businessCode(t, err))
		assert.ErrorIs(t, err, timeline.ErrCapacityExceeded)
	})

	t.Run("invalid month", func(t *testing.T) {
		svc := service.NewTaskService(new(MockTaskRepository), nil, defaultPolicy)
		_, err := svc.Timeline(context.Background(), userID, 2026, time.Month(13), filter.Criteria{})

		assert.Equal(t, service.CodeValidation, businessCode(t, err))
	})
}

func TestScopedBackend_WithController(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	repo := inmemory.NewTaskStorage()
	rec := &events.Recorder{}
	svc := service.NewTaskService(repo, rec, defaultPolicy)

	ctrl := state.NewController(state.NewStore(nil), service.NewScopedBackend(svc), userID)

	first, err := ctrl.Create(ctx, &task.Task{Title: "first"})
	require.NoError(t, err)
	second, err := ctrl.Create(ctx, &task.Task{Title: "second"})
	require.NoError(t, err)

	cached := ctrl.Store().Tasks()
	require.Len(t, cached, 2)
	assert.Equal(t, second.ID, cached[0].ID)

	moved, err := ctrl.SetStatus(ctx, first.ID, task.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, moved.Status)
	assert.Equal(t, 2, moved.Version)

	edited, err := ctrl.Update(ctx, first.ID, task.WithTitle("first, edited"))
	require.NoError(t, err)
	assert.Equal(t, 3, edited.Version)

	stored, err := svc.GetTask(ctx, userID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first, edited", stored.Title)
	assert.Equal(t, task.StatusInProgress, stored.Status)

	// Another writer bumps the version behind the cache's back.
	_, err = svc.UpdateTask(ctx, userID, second.ID, 0, task.WithTitle("elsewhere"))
	require.NoError(t, err)

	_, err = ctrl.Toggle(ctx, second.ID)
	require.Error(t, err)
	var busErr *service.BusinessError
	require.True(t, errors.As(err, &busErr))
	assert.Equal(t, service.CodeVersionConflict, busErr.Code)

	rolledBack, ok := ctrl.Store().Get(second.ID)
	require.True(t, ok)
	assert.Equal(t, task.StatusTodo, rolledBack.Status)

	require.NoError(t, ctrl.Delete(ctx, first.ID))
	_, err = svc.GetTask(ctx, userID, first.ID)
	assert.Equal(t, service.CodeNotFound, businessCode(t, err))

	assert.Equal(t, []events.Kind{
		events.KindCreated, events.KindCreated,
		events.KindUpdated, events.KindUpdated, events.KindUpdated,
		events.KindDeleted,
	}, rec.Kinds())
}
