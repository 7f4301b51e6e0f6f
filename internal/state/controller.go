package state

import (
	"context"
	"fmt"
	"sync"
	"taskflow/internal/logger"
	"taskflow/internal/models/task"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Backend is the remote side of the cache. Every write is scoped by the
// owning user and, where it changes an existing task, carries the version the
// caller last saw.
type Backend interface {
	CreateTask(ctx context.Context, userID uuid.UUID, draft *task.Task) (*task.Task, error)
	UpdateTask(ctx context.Context, userID uuid.UUID, t *task.Task) (*task.Task, error)
	SetStatus(ctx context.Context, userID, id uuid.UUID, status task.Status, version int) (*task.Task, error)
	DeleteTask(ctx context.Context, userID, id uuid.UUID, version int) error
}

type ControllerOption func(*Controller)

// WithAppendOnCreate places new tasks at the end of the cache instead of the front.
func WithAppendOnCreate() ControllerOption {
	return func(c *Controller) {
		c.appendOnCreate = true
	}
}

// Controller applies mutations to the store before the backend confirms them.
// A failed write rolls the task back, unless a newer mutation of the same task
// has been applied in the meantime.
type Controller struct {
	store   *Store
	backend Backend
	userID  uuid.UUID

	mtx   sync.Mutex
	seq   map[uuid.UUID]uint64
	known map[uuid.UUID]int

	appendOnCreate bool
}

func NewController(store *Store, backend Backend, userID uuid.UUID, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:   store,
		backend: backend,
		userID:  userID,
		seq:     make(map[uuid.UUID]uint64),
		known:   make(map[uuid.UUID]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Store() *Store {
	return c.store
}

// pending is what a rollback needs: the task before the change, where it sat,
// and the sequence number of the change.
type pending struct {
	prev  task.Task
	index int
	seq   uint64
}

// begin builds the mutation from the cached task and applies it under the
// controller lock, so concurrent changes to the same task never interleave.
func (c *Controller) begin(id uuid.UUID, build func(prev *task.Task) Mutation) (pending, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	snap := c.store.Snapshot()
	prev, ok := snap.Get(id)
	if !ok {
		return pending{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := c.store.Apply(build(prev.Clone())); err != nil {
		return pending{}, err
	}

	c.seq[id]++
	if v := c.known[id]; v < prev.Version {
		c.known[id] = prev.Version
	}

	return pending{prev: *prev, index: snap.IndexOf(id), seq: c.seq[id]}, nil
}

func (c *Controller) rollback(p pending, kind Kind, cause error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	id := p.prev.ID
	if c.seq[id] != p.seq {
		logger.Info("State: Rollback skipped, newer change pending",
			zap.String("task_id", id.String()),
			zap.String("mutation", kind.String()))
		return
	}

	prev := p.prev
	if v := c.known[id]; v > prev.Version {
		prev.Version = v
	}
	c.store.update(func(s State) State {
		return restore(s, prev, p.index)
	})

	logger.Warn("State: Rolled back optimistic change",
		zap.String("task_id", id.String()),
		zap.String("mutation", kind.String()),
		zap.Error(cause))
}

// confirm merges the server's version stamp into the cached task. When no
// newer change is pending the whole server copy replaces the cached one.
func (c *Controller) confirm(p pending, server *task.Task) {
	if server == nil {
		return
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	id := server.ID
	if server.Version > c.known[id] {
		c.known[id] = server.Version
	}

	latest := c.seq[id] == p.seq
	c.store.update(func(s State) State {
		cur, ok := s.Get(id)
		if !ok {
			return s
		}
		if latest {
			cur = server.Clone()
		} else {
			cur.Version = server.Version
			cur.UpdatedAt = server.UpdatedAt
		}
		next, _ := Reduce(s, Update(cur))
		return next
	})
}

// SetStatus changes a task's status locally and then on the backend.
func (c *Controller) SetStatus(ctx context.Context, id uuid.UUID, status task.Status) (*task.Task, error) {
	return c.setStatus(ctx, id, func(task.Status) task.Status { return status })
}

// Toggle flips a task between done and todo.
func (c *Controller) Toggle(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	return c.setStatus(ctx, id, task.Status.Toggled)
}

func (c *Controller) setStatus(ctx context.Context, id uuid.UUID, next func(task.Status) task.Status) (*task.Task, error) {
	start := time.Now()

	var status task.Status
	p, err := c.begin(id, func(prev *task.Task) Mutation {
		status = next(prev.Status)
		return SetStatus(id, status)
	})
	if err != nil {
		return nil, err
	}

	server, err := c.backend.SetStatus(ctx, c.userID, id, status, p.prev.Version)
	if err != nil {
		c.rollback(p, KindStatus, err)
		return nil, fmt.Errorf("set status of %s: %w", id, err)
	}

	c.confirm(p, server)
	logger.Debug("State: Status confirmed",
		zap.String("task_id", id.String()),
		zap.String("status", status.String()),
		zap.Duration("ms", time.Since(start)))

	cur, _ := c.store.Get(id)
	return cur, nil
}

// Update applies opts to the cached task and sends the result to the backend.
func (c *Controller) Update(ctx context.Context, id uuid.UUID, opts ...task.TaskOption) (*task.Task, error) {
	var next *task.Task
	p, err := c.begin(id, func(prev *task.Task) Mutation {
		next = prev
		next.Apply(opts...)
		return Update(next.Clone())
	})
	if err != nil {
		return nil, err
	}

	server, err := c.backend.UpdateTask(ctx, c.userID, next)
	if err != nil {
		c.rollback(p, KindUpdate, err)
		return nil, fmt.Errorf("update %s: %w", id, err)
	}

	c.confirm(p, server)
	updated, _ := c.store.Get(id)
	return updated, nil
}

// Delete removes a task locally and then on the backend. On failure the task
// returns to its old position.
func (c *Controller) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := c.begin(id, func(*task.Task) Mutation { return Delete(id) })
	if err != nil {
		return err
	}

	if err := c.backend.DeleteTask(ctx, c.userID, id, p.prev.Version); err != nil {
		c.rollback(p, KindDelete, err)
		return fmt.Errorf("delete %s: %w", id, err)
	}

	c.mtx.Lock()
	delete(c.known, id)
	c.mtx.Unlock()
	return nil
}

// Create waits for the backend insert before caching the task.
func (c *Controller) Create(ctx context.Context, draft *task.Task) (*task.Task, error) {
	created, err := c.backend.CreateTask(ctx, c.userID, draft)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	at := 0
	if c.appendOnCreate {
		at = AtEnd
	}
	if err := c.store.Apply(Create(created, at)); err != nil {
		return nil, err
	}

	c.mtx.Lock()
	c.known[created.ID] = created.Version
	c.mtx.Unlock()

	return created.Clone(), nil
}
