// Package events publishes task lifecycle notifications.
package events

import (
	"context"
	"sync"
	"taskflow/internal/models/task"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
	KindOverdue Kind = "overdue"
)

type Event struct {
	ID         uuid.UUID  `json:"id"`
	Kind       Kind       `json:"kind"`
	TaskID     uuid.UUID  `json:"task_id"`
	UserID     uuid.UUID  `json:"user_id"`
	Task       *task.Task `json:"task,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// New builds an event for t. Deleted events carry no task body.
func New(kind Kind, t *task.Task) Event {
	ev := Event{
		ID:         uuid.New(),
		Kind:       kind,
		TaskID:     t.ID,
		UserID:     t.UserID,
		OccurredAt: time.Now().UTC(),
	}
	if kind != KindDeleted {
		ev.Task = t.Clone()
	}
	return ev
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mtx    sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds lists recorded event kinds in publish order, or nil when nothing was published.
func (r *Recorder) Kinds() []Kind {
	evs := r.Events()
	if len(evs) == 0 {
		return nil
	}
	out := make([]Kind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}
