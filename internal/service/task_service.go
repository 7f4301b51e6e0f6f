package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"taskflow/internal/events"
	"taskflow/internal/filter"
	"taskflow/internal/logger"
	"taskflow/internal/models/task"
	rep "taskflow/internal/repository"
	"taskflow/internal/timeline"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateTaskInput struct {
	Title       string
	Description string
	Status      task.Status
	DueDate     *time.Time
}

type ListOptions struct {
	Criteria filter.Criteria
	Sort     filter.SortKey
}

type TaskService struct {
	repo      TaskRepository
	publisher events.Publisher
	policy    timeline.Policy
}

func NewTaskService(repo TaskRepository, publisher events.Publisher, policy timeline.Policy) *TaskService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &TaskService{
		repo:      repo,
		publisher: publisher,
		policy:    policy,
	}
}

func (s *TaskService) HealthCheck(ctx context.Context) error {
	if err := s.repo.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

func validateTask(t *task.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return NewValidationError("title", "must not be empty")
	}
	if utf8.RuneCountInString(t.Title) > task.MaxTitleLength {
		return NewValidationError("title", fmt.Sprintf("must be at most %d characters", task.MaxTitleLength))
	}
	if !t.Status.Valid() {
		return NewValidationError("status", fmt.Sprintf("unknown status %q", t.Status))
	}
	return nil
}

// mapRepoError turns storage sentinels into business errors; anything else is wrapped as is.
func mapRepoError(err error, id uuid.UUID, version int, op string) error {
	switch {
	case errors.Is(err, rep.ErrNotFound):
		logger.Info("Service: Task not found", zap.String("target_id", id.String()), zap.String("operation", op))
		return NewNotFound("task", id.String()).Wrap(err)
	case errors.Is(err, rep.ErrVersionConflict):
		logger.Info("Service: Version conflict", zap.String("target_id", id.String()), zap.Int("expected_version", version))
		return NewVersionConflict(id.String(), version).Wrap(err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *TaskService) publish(ctx context.Context, kind events.Kind, t *task.Task) {
	if err := s.publisher.Publish(ctx, events.New(kind, t)); err != nil {
		logger.Warn("Service: Failed to publish event",
			zap.String("kind", string(kind)),
			zap.String("task_id", t.ID.String()),
			zap.Error(err))
	}
}

func (s *TaskService) CreateTask(ctx context.Context, userID uuid.UUID, in CreateTaskInput) (*task.Task, error) {
	status := in.Status
	if status == "" {
		status = task.StatusTodo
	}

	newTask := &task.Task{
		ID:     uuid.New(),
		UserID: userID,
		Status: status,
	}
	opts := []task.TaskOption{task.WithTitle(in.Title), task.WithDescription(in.Description)}
	if in.DueDate != nil {
		opts = append(opts, task.WithDueDate(*in.DueDate))
	}
	newTask.Apply(opts...)

	if err := validateTask(newTask); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, newTask); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	logger.Info("Service: Task created", zap.String("task_id", newTask.ID.String()), zap.String("user_id", userID.String()))
	s.publish(ctx, events.KindCreated, newTask)
	return newTask, nil
}

func (s *TaskService) GetTask(ctx context.Context, userID, id uuid.UUID) (*task.Task, error) {
	t, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, mapRepoError(err, id, 0, "get task")
	}
	return t, nil
}

func repoOrder(key filter.SortKey) rep.Order {
	switch key {
	case filter.SortCreatedAsc:
		return rep.OrderCreatedAsc
	case filter.SortDueAsc:
		return rep.OrderDueAsc
	case filter.SortDueDesc:
		return rep.OrderDueDesc
	default:
		return rep.OrderCreatedDesc
	}
}

func (s *TaskService) ListTasks(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]*task.Task, error) {
	tasks, err := s.repo.ListByUser(ctx, userID, repoOrder(opts.Sort))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	key := opts.Sort
	if key == "" {
		key = filter.SortCreatedDesc
	}
	return filter.Sort(filter.Apply(tasks, opts.Criteria), key), nil
}

// UpdateTask applies options to the stored task. A version of 0 skips the
// staleness check; otherwise it must equal the stored version.
func (s *TaskService) UpdateTask(ctx context.Context, userID, id uuid.UUID, version int, options ...task.TaskOption) (*task.Task, error) {
	current, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, mapRepoError(err, id, version, "update task")
	}

	if version != 0 && current.Version != version {
		logger.Info("Service: Rejected stale update",
			zap.String("target_id", id.String()),
			zap.Int("expected_version", version),
			zap.Int("actual_version", current.Version))
		return nil, NewVersionConflict(id.String(), version)
	}

	current.Apply(options...)
	if err := validateTask(current); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, current); err != nil {
		return nil, mapRepoError(err, id, current.Version, "update task")
	}

	s.publish(ctx, events.KindUpdated, current)
	return current, nil
}

func (s *TaskService) SetStatus(ctx context.Context, userID, id uuid.UUID, status task.Status, version int) (*task.Task, error) {
	if !status.Valid() {
		return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	return s.UpdateTask(ctx, userID, id, version, task.WithStatus(status))
}

// ToggleStatus is the checkbox action: done goes back to todo, anything else becomes done.
func (s *TaskService) ToggleStatus(ctx context.Context, userID, id uuid.UUID, version int) (*task.Task, error) {
	current, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, mapRepoError(err, id, version, "toggle task")
	}
	return s.UpdateTask(ctx, userID, id, version, task.WithStatus(current.Status.Toggled()))
}

func (s *TaskService) DeleteTask(ctx context.Context, userID, id uuid.UUID, version int) error {
	if err := s.repo.Delete(ctx, userID, id, version); err != nil {
		return mapRepoError(err, id, version, "delete task")
	}

	logger.Info("Service: Task deleted", zap.String("task_id", id.String()))
	s.publish(ctx, events.KindDeleted, &task.Task{ID: id, UserID: userID})
	return nil
}

func (s *TaskService) Board(ctx context.Context, userID uuid.UUID, criteria filter.Criteria) ([]filter.Column, error) {
	tasks, err := s.ListTasks(ctx, userID, ListOptions{Criteria: criteria, Sort: filter.SortCreatedDesc})
	if err != nil {
		return nil, err
	}
	return filter.GroupByStatus(tasks), nil
}

// Timeline lays out the user's tasks over the full weeks covering the month.
// Older tasks are packed first so they keep the upper rows.
func (s *TaskService) Timeline(ctx context.Context, userID uuid.UUID, year int, month time.Month, criteria filter.Criteria) (*timeline.Layout, error) {
	if month < time.January || month > time.December {
		return nil, NewValidationError("month", "must be between 1 and 12")
	}

	tasks, err := s.ListTasks(ctx, userID, ListOptions{Criteria: criteria, Sort: filter.SortCreatedAsc})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	layout, err := timeline.Compute(tasks, timeline.MonthWindow(year, month), s.policy)
	if err != nil {
		var capErr *timeline.CapacityError
		if errors.As(err, &capErr) {
			return nil, NewBusinessError(CodeTimelineCapacity, "too many overlapping tasks to lay out",
				ToDetail("task_id", capErr.TaskID.String()),
				ToDetail("max_rows", capErr.MaxRows),
			).Wrap(err)
		}
		return nil, fmt.Errorf("compute timeline: %w", err)
	}

	logger.Debug("Service: Timeline computed",
		zap.Int("tasks", len(tasks)),
		zap.Int("bars", len(layout.Bars)),
		zap.Int("rows", layout.Rows),
		zap.Duration("ms", time.Since(start)))
	return layout, nil
}
