// Package state keeps a client-side cache of one user's tasks and applies
// optimistic mutations to it with rollback on backend failure.
package state

import (
	"errors"
	"fmt"
	"slices"
	"taskflow/internal/models/task"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("state: task not in cache")
	ErrDuplicate = errors.New("state: task already in cache")
)

// State is an immutable snapshot: ordered ids plus the tasks they name.
// Reducers return a new State and never touch the one they were given.
type State struct {
	order []uuid.UUID
	tasks map[uuid.UUID]task.Task
}

func NewState(tasks []*task.Task) State {
	s := State{
		order: make([]uuid.UUID, 0, len(tasks)),
		tasks: make(map[uuid.UUID]task.Task, len(tasks)),
	}
	for _, t := range tasks {
		if t == nil {
			continue
		}
		if _, dup := s.tasks[t.ID]; dup {
			continue
		}
		s.order = append(s.order, t.ID)
		s.tasks[t.ID] = *t.Clone()
	}
	return s
}

func (s State) Len() int {
	return len(s.order)
}

func (s State) Get(id uuid.UUID) (*task.Task, bool) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// IndexOf returns the position of id, or -1.
func (s State) IndexOf(id uuid.UUID) int {
	return slices.Index(s.order, id)
}

// Tasks returns copies of the cached tasks in cache order.
func (s State) Tasks() []*task.Task {
	out := make([]*task.Task, 0, len(s.order))
	for _, id := range s.order {
		t := s.tasks[id]
		out = append(out, t.Clone())
	}
	return out
}

func (s State) clone() State {
	c := State{
		order: slices.Clone(s.order),
		tasks: make(map[uuid.UUID]task.Task, len(s.tasks)),
	}
	for id, t := range s.tasks {
		c.tasks[id] = t
	}
	return c
}

type Kind int

const (
	KindCreate Kind = iota + 1
	KindUpdate
	KindDelete
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindStatus:
		return "status"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// AtEnd as a Mutation position appends instead of inserting.
const AtEnd = -1

type Mutation struct {
	Kind   Kind
	Task   task.Task
	ID     uuid.UUID
	Status task.Status
	// At is the insertion index for KindCreate; AtEnd appends.
	At int
}

func Create(t *task.Task, at int) Mutation {
	return Mutation{Kind: KindCreate, Task: *t.Clone(), ID: t.ID, At: at}
}

func Update(t *task.Task) Mutation {
	return Mutation{Kind: KindUpdate, Task: *t.Clone(), ID: t.ID}
}

func Delete(id uuid.UUID) Mutation {
	return Mutation{Kind: KindDelete, ID: id}
}

func SetStatus(id uuid.UUID, status task.Status) Mutation {
	return Mutation{Kind: KindStatus, ID: id, Status: status}
}

// Reduce applies m to s and returns the resulting state.
func Reduce(s State, m Mutation) (State, error) {
	switch m.Kind {
	case KindCreate:
		if _, ok := s.tasks[m.ID]; ok {
			return s, fmt.Errorf("%w: %s", ErrDuplicate, m.ID)
		}
		next := s.clone()
		at := m.At
		if at < 0 || at > len(next.order) {
			at = len(next.order)
		}
		next.order = slices.Insert(next.order, at, m.ID)
		next.tasks[m.ID] = *m.Task.Clone()
		return next, nil

	case KindUpdate:
		if _, ok := s.tasks[m.ID]; !ok {
			return s, fmt.Errorf("%w: %s", ErrNotFound, m.ID)
		}
		next := s.clone()
		next.tasks[m.ID] = *m.Task.Clone()
		return next, nil

	case KindDelete:
		i := s.IndexOf(m.ID)
		if i < 0 {
			return s, fmt.Errorf("%w: %s", ErrNotFound, m.ID)
		}
		next := s.clone()
		next.order = slices.Delete(next.order, i, i+1)
		delete(next.tasks, m.ID)
		return next, nil

	case KindStatus:
		t, ok := s.tasks[m.ID]
		if !ok {
			return s, fmt.Errorf("%w: %s", ErrNotFound, m.ID)
		}
		if !m.Status.Valid() {
			return s, fmt.Errorf("%w: %q", task.ErrUnknownStatus, m.Status)
		}
		next := s.clone()
		t.Status = m.Status
		next.tasks[m.ID] = t
		return next, nil
	}
	return s, fmt.Errorf("state: unknown mutation kind %v", m.Kind)
}

// restore puts prev back at index i, replacing or re-inserting it as needed.
func restore(s State, prev task.Task, i int) State {
	if _, ok := s.tasks[prev.ID]; ok {
		next, _ := Reduce(s, Update(&prev))
		return next
	}
	next, _ := Reduce(s, Create(&prev, i))
	return next
}
