package handlers

import (
	"context"
	"taskflow/internal/auth"
	"taskflow/internal/filter"
	"taskflow/internal/models/task"
	"taskflow/internal/service"
	"taskflow/internal/timeline"
	"time"

	"github.com/google/uuid"
)

type TaskService interface {
	CreateTask(ctx context.Context, userID uuid.UUID, in service.CreateTaskInput) (*task.Task, error)
	GetTask(ctx context.Context, userID, id uuid.UUID) (*task.Task, error)
	ListTasks(ctx context.Context, userID uuid.UUID, opts service.ListOptions) ([]*task.Task, error)
	UpdateTask(ctx context.Context, userID, id uuid.UUID, version int, options ...task.TaskOption) (*task.Task, error)
	SetStatus(ctx context.Context, userID, id uuid.UUID, status task.Status, version int) (*task.Task, error)
	ToggleStatus(ctx context.Context, userID, id uuid.UUID, version int) (*task.Task, error)
	DeleteTask(ctx context.Context, userID, id uuid.UUID, version int) error
	Board(ctx context.Context, userID uuid.UUID, criteria filter.Criteria) ([]filter.Column, error)
	Timeline(ctx context.Context, userID uuid.UUID, year int, month time.Month, criteria filter.Criteria) (*timeline.Layout, error)
	HealthCheck(ctx context.Context) error
}

type AuthService interface {
	SignUp(ctx context.Context, in service.SignUpInput) (*auth.SignUpResult, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*auth.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, accessToken, password, confirm string) error
	CurrentUser(ctx context.Context, accessToken string) (*auth.User, error)
}

var (
	_ TaskService = (*service.TaskService)(nil)
	_ AuthService = (*service.AuthService)(nil)
)
