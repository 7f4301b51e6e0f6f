package dto

import (
	"fmt"
	"taskflow/internal/auth"
	"taskflow/internal/filter"
	"taskflow/internal/models/task"
	"taskflow/internal/timeline"
	"time"

	"github.com/google/uuid"
)

type CreateTaskRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      task.Status `json:"status,omitempty"`
	DueDate     *string     `json:"due_date,omitempty"`
}

// UpdateTaskRequest changes only the fields that are present. ClearDueDate
// removes the due date and wins over DueDate.
type UpdateTaskRequest struct {
	Title        *string      `json:"title,omitempty"`
	Description  *string      `json:"description,omitempty"`
	Status       *task.Status `json:"status,omitempty"`
	DueDate      *string      `json:"due_date,omitempty"`
	ClearDueDate bool         `json:"clear_due_date,omitempty"`
	Version      int          `json:"version"`
}

type StatusRequest struct {
	Status  task.Status `json:"status"`
	Version int         `json:"version"`
}

type ToggleRequest struct {
	Version int `json:"version"`
}

// ParseDueDate accepts an empty pointer or string as "no due date".
func ParseDueDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	d, err := task.ParseDate(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r UpdateTaskRequest) Options() ([]task.TaskOption, error) {
	var opts []task.TaskOption
	if r.Title != nil {
		opts = append(opts, task.WithTitle(*r.Title))
	}
	if r.Description != nil {
		opts = append(opts, task.WithDescription(*r.Description))
	}
	if r.Status != nil {
		opts = append(opts, task.WithStatus(*r.Status))
	}
	switch {
	case r.ClearDueDate:
		opts = append(opts, task.WithoutDueDate())
	case r.DueDate != nil:
		due, err := ParseDueDate(r.DueDate)
		if err != nil {
			return nil, err
		}
		if due == nil {
			opts = append(opts, task.WithoutDueDate())
		} else {
			opts = append(opts, task.WithDueDate(*due))
		}
	}
	if len(opts) == 0 {
		return nil, fmt.Errorf("nothing to update")
	}
	return opts, nil
}

type TaskResponse struct {
	ID          uuid.UUID   `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      task.Status `json:"status"`
	DueDate     *string     `json:"due_date"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Version     int         `json:"version"`
	IsOverdue   bool        `json:"is_overdue"`
}

func FromTask(t *task.Task, now time.Time) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Version:     t.Version,
		IsOverdue:   t.IsOverdue(now),
	}
	if t.DueDate != nil {
		due := task.FormatDate(*t.DueDate)
		resp.DueDate = &due
	}
	return resp
}

func FromTaskList(tasks []*task.Task, now time.Time) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = FromTask(t, now)
	}
	return result
}

// ToTask is the inverse of FromTask, used by the HTTP client.
func (r TaskResponse) ToTask(userID uuid.UUID) (*task.Task, error) {
	due, err := ParseDueDate(r.DueDate)
	if err != nil {
		return nil, err
	}
	return &task.Task{
		ID:          r.ID,
		UserID:      userID,
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		DueDate:     due,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Version:     r.Version,
	}, nil
}

type ColumnResponse struct {
	Status task.Status    `json:"status"`
	Label  string         `json:"label"`
	Count  int            `json:"count"`
	Tasks  []TaskResponse `json:"tasks"`
}

func FromColumns(columns []filter.Column, now time.Time) []ColumnResponse {
	out := make([]ColumnResponse, len(columns))
	for i, c := range columns {
		out[i] = ColumnResponse{
			Status: c.Status,
			Label:  c.Label,
			Count:  len(c.Tasks),
			Tasks:  FromTaskList(c.Tasks, now),
		}
	}
	return out
}

type TimelineResponse struct {
	Month   string          `json:"month"`
	Start   string          `json:"start"`
	End     string          `json:"end"`
	Weeks   int             `json:"weeks"`
	Rows    int             `json:"rows"`
	Bars    []timeline.Bar  `json:"bars"`
	Dropped []timeline.Drop `json:"dropped"`
	Undated []uuid.UUID     `json:"undated"`
}

func FromLayout(year int, month time.Month, l *timeline.Layout) TimelineResponse {
	resp := TimelineResponse{
		Month:   fmt.Sprintf("%04d-%02d", year, int(month)),
		Start:   task.FormatDate(l.Window.Start),
		End:     task.FormatDate(l.Window.End),
		Weeks:   l.Window.Weeks(),
		Rows:    l.Rows,
		Bars:    l.Bars,
		Dropped: l.Dropped,
		Undated: l.Undated,
	}
	if resp.Bars == nil {
		resp.Bars = []timeline.Bar{}
	}
	if resp.Dropped == nil {
		resp.Dropped = []timeline.Drop{}
	}
	if resp.Undated == nil {
		resp.Undated = []uuid.UUID{}
	}
	return resp
}

type SignUpRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type UserResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

type SessionResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         UserResponse `json:"user"`
}

func FromUser(u auth.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email}
}

func FromSession(s *auth.Session) SessionResponse {
	return SessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresAt:    s.ExpiresAt,
		User:         FromUser(s.User),
	}
}
