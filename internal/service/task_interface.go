package service

import (
	"context"
	"taskflow/internal/models/task"
	"taskflow/internal/repository"
	"time"

	"github.com/google/uuid"
)

// TaskRepository is the persistence contract. Every call that touches a single
// task is scoped by both the task id and the owning user id.
type TaskRepository interface {
	Create(context.Context, *task.Task) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*task.Task, error)
	ListByUser(ctx context.Context, userID uuid.UUID, order repository.Order) ([]*task.Task, error)
	Update(context.Context, *task.Task) error
	Delete(ctx context.Context, userID, id uuid.UUID, version int) error
	ListDueBefore(ctx context.Context, deadline time.Time, limit int) ([]*task.Task, error)
	HealthCheck(context.Context) error
}
