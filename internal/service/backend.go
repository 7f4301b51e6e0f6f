package service

import (
	"context"
	"taskflow/internal/models/task"
	"taskflow/internal/state"

	"github.com/google/uuid"
)

// ScopedBackend lets a state.Controller write straight through a TaskService
// in the same process.
type ScopedBackend struct {
	svc *TaskService
}

var _ state.Backend = (*ScopedBackend)(nil)

func NewScopedBackend(svc *TaskService) *ScopedBackend {
	return &ScopedBackend{svc: svc}
}

func (b *ScopedBackend) CreateTask(ctx context.Context, userID uuid.UUID, draft *task.Task) (*task.Task, error) {
	return b.svc.CreateTask(ctx, userID, CreateTaskInput{
		Title:       draft.Title,
		Description: draft.Description,
		Status:      draft.Status,
		DueDate:     draft.DueDate,
	})
}

func (b *ScopedBackend) UpdateTask(ctx context.Context, userID uuid.UUID, t *task.Task) (*task.Task, error) {
	opts := []task.TaskOption{
		task.WithTitle(t.Title),
		task.WithDescription(t.Description),
		task.WithStatus(t.Status),
	}
	if t.DueDate != nil {
		opts = append(opts, task.WithDueDate(*t.DueDate))
	} else {
		opts = append(opts, task.WithoutDueDate())
	}
	return b.svc.UpdateTask(ctx, userID, t.ID, t.Version, opts...)
}

func (b *ScopedBackend) SetStatus(ctx context.Context, userID, id uuid.UUID, status task.Status, version int) (*task.Task, error) {
	return b.svc.SetStatus(ctx, userID, id, status, version)
}

func (b *ScopedBackend) DeleteTask(ctx context.Context, userID, id uuid.UUID, version int) error {
	return b.svc.DeleteTask(ctx, userID, id, version)
}
