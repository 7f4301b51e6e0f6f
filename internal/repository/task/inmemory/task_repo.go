package inmemory

import (
	"context"
	"slices"
	"sync"
	"taskflow/internal/logger"
	"taskflow/internal/models/task"
	repo "taskflow/internal/repository"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskStorage keeps tasks in process memory. Callers always receive copies.
type TaskStorage struct {
	storage map[uuid.UUID]*task.Task
	mtx     *sync.RWMutex
	ids     []uuid.UUID
	now     func() time.Time
}

func NewTaskStorage() *TaskStorage {
	return &TaskStorage{
		storage: make(map[uuid.UUID]*task.Task),
		mtx:     &sync.RWMutex{},
		ids:     []uuid.UUID{},
		now:     time.Now,
	}
}

func (s *TaskStorage) HealthCheck(ctx context.Context) error {
	logger.Debug("Repository: In-memory storage ready", zap.Int("tasks", s.count()))
	return nil
}

func (s *TaskStorage) count() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.ids)
}

func (s *TaskStorage) Create(ctx context.Context, taskToCreate *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	now := s.now().UTC()
	taskToCreate.CreatedAt = now
	taskToCreate.UpdatedAt = now
	taskToCreate.Version = 1

	s.storage[taskToCreate.ID] = taskToCreate.Clone()
	s.ids = append(s.ids, taskToCreate.ID)
	return nil
}

// Update writes taskToUpdate when the stored row has the same owner and version.
// On success taskToUpdate carries the new version and update time.
func (s *TaskStorage) Update(ctx context.Context, taskToUpdate *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existing, ok := s.storage[taskToUpdate.ID]
	if !ok || existing.UserID != taskToUpdate.UserID {
		return repo.ErrNotFound
	}
	if existing.Version != taskToUpdate.Version {
		logger.Warn("Repository: Version conflict on update",
			zap.String("task_id", taskToUpdate.ID.String()),
			zap.Int("expected_version", taskToUpdate.Version),
			zap.Int("actual_version", existing.Version))
		return repo.ErrVersionConflict
	}

	taskToUpdate.UpdatedAt = s.now().UTC()
	taskToUpdate.Version = existing.Version + 1
	taskToUpdate.CreatedAt = existing.CreatedAt
	s.storage[taskToUpdate.ID] = taskToUpdate.Clone()

	return nil
}

func (s *TaskStorage) GetByID(ctx context.Context, userID, id uuid.UUID) (*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	taskToGet, ok := s.storage[id]
	if !ok || taskToGet.UserID != userID {
		return nil, repo.ErrNotFound
	}
	return taskToGet.Clone(), nil
}

// Delete removes the task. A version of 0 skips the version check.
func (s *TaskStorage) Delete(ctx context.Context, userID, id uuid.UUID, version int) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existing, ok := s.storage[id]
	if !ok || existing.UserID != userID {
		return repo.ErrNotFound
	}
	if version != 0 && existing.Version != version {
		return repo.ErrVersionConflict
	}

	delete(s.storage, id)
	if i := slices.Index(s.ids, id); i >= 0 {
		s.ids = slices.Delete(s.ids, i, i+1)
	}
	return nil
}

func (s *TaskStorage) ListByUser(ctx context.Context, userID uuid.UUID, order repo.Order) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := []*task.Task{}
	for _, id := range s.ids {
		t := s.storage[id]
		if t.UserID == userID {
			res = append(res, t.Clone())
		}
	}

	slices.SortStableFunc(res, func(a, b *task.Task) int {
		return compare(order, a, b)
	})
	return res, nil
}

func compare(order repo.Order, a, b *task.Task) int {
	switch order {
	case repo.OrderCreatedAsc:
		return a.CreatedAt.Compare(b.CreatedAt)
	case repo.OrderDueAsc, repo.OrderDueDesc:
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return b.CreatedAt.Compare(a.CreatedAt)
		case a.DueDate == nil:
			return 1
		case b.DueDate == nil:
			return -1
		}
		c := a.DueDate.Compare(*b.DueDate)
		if order == repo.OrderDueDesc {
			c = -c
		}
		if c == 0 {
			return b.CreatedAt.Compare(a.CreatedAt)
		}
		return c
	default:
		return b.CreatedAt.Compare(a.CreatedAt)
	}
}

// ListDueBefore returns up to limit unfinished tasks of any user due before deadline.
func (s *TaskStorage) ListDueBefore(ctx context.Context, deadline time.Time, limit int) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var tasks []*task.Task
	for _, id := range s.ids {
		if limit > 0 && len(tasks) >= limit {
			break
		}

		t := s.storage[id]
		if t.Status != task.StatusDone && t.DueDate != nil && t.DueDate.Before(deadline) {
			tasks = append(tasks, t.Clone())
		}
	}

	return tasks, nil
}
