package task

import (
	"strings"
	"time"
)

type TaskOption func(*Task)

func WithTitle(title string) TaskOption {
	return func(task *Task) {
		task.Title = strings.TrimSpace(title)
	}
}

func WithDescription(description string) TaskOption {
	return func(task *Task) {
		task.Description = strings.TrimSpace(description)
	}
}

func WithStatus(status Status) TaskOption {
	return func(task *Task) {
		task.Status = status
	}
}

func WithDueDate(due time.Time) TaskOption {
	day := DateOf(due)
	return func(task *Task) {
		task.DueDate = &day
	}
}

func WithoutDueDate() TaskOption {
	return func(task *Task) {
		task.DueDate = nil
	}
}

// Apply runs opts in order, skipping nil entries.
func (t *Task) Apply(opts ...TaskOption) {
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
}
