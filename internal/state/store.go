package state

import (
	"sync"
	"taskflow/internal/models/task"

	"github.com/google/uuid"
)

// Store holds the current State behind a mutex.
type Store struct {
	mtx   sync.RWMutex
	state State
}

func NewStore(tasks []*task.Task) *Store {
	return &Store{state: NewState(tasks)}
}

// Load replaces the cache with a fresh listing.
func (s *Store) Load(tasks []*task.Task) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.state = NewState(tasks)
}

func (s *Store) Snapshot() State {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.state
}

func (s *Store) Tasks() []*task.Task {
	return s.Snapshot().Tasks()
}

func (s *Store) Get(id uuid.UUID) (*task.Task, bool) {
	return s.Snapshot().Get(id)
}

func (s *Store) Apply(m Mutation) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.applyLocked(m)
}

func (s *Store) applyLocked(m Mutation) error {
	next, err := Reduce(s.state, m)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// update runs fn with the lock held and stores what it returns.
func (s *Store) update(fn func(State) State) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.state = fn(s.state)
}
