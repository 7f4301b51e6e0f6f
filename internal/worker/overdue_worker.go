package worker

import (
	"context"
	"fmt"
	"sync"
	"taskflow/internal/events"
	"taskflow/internal/logger"
	"taskflow/internal/models/task"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DueLister is the slice of the task repository the worker needs.
type DueLister interface {
	ListDueBefore(ctx context.Context, deadline time.Time, limit int) ([]*task.Task, error)
}

// OverdueWorker announces tasks that slipped past their due day. Each task is
// announced once per due date; moving the due date re-arms it.
type OverdueWorker struct {
	repo      DueLister
	publisher events.Publisher
	interval  time.Duration
	batchSize int
	now       func() time.Time

	mtx      sync.Mutex
	notified map[uuid.UUID]time.Time
}

func NewOverdueWorker(repo DueLister, publisher events.Publisher, interval *time.Duration, batchSize *int) *OverdueWorker {
	var intervalToSet time.Duration
	if interval == nil || *interval <= 0 {
		intervalToSet = 5 * time.Minute
	} else {
		intervalToSet = *interval
	}

	var batchToSet int
	if batchSize == nil || *batchSize <= 0 {
		batchToSet = 100
	} else {
		batchToSet = *batchSize
	}

	if publisher == nil {
		publisher = events.Nop{}
	}

	return &OverdueWorker{
		repo:      repo,
		publisher: publisher,
		interval:  intervalToSet,
		batchSize: batchToSet,
		now:       time.Now,
		notified:  make(map[uuid.UUID]time.Time),
	}
}

func (w *OverdueWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logger.Info("Worker: Overdue check scheduled", zap.Duration("interval", w.interval), zap.Int("batch", w.batchSize))

	for {
		select {
		case <-ticker.C:
			logger.Debug("Worker: Checking for overdue tasks", zap.Time("started_at", time.Now()))
			w.Check(ctx)
		case <-ctx.Done():
			logger.Info("Worker: Overdue check stopping")
			return
		}
	}
}

// Check publishes up to one batch of newly overdue tasks and returns how many
// were announced.
func (w *OverdueWorker) Check(ctx context.Context) int {
	start := time.Now()

	tasks, err := w.overdueTasks(ctx)
	if err != nil {
		logger.Warn("Worker: Failed to list overdue tasks", zap.Error(err))
		return 0
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.forgetResolved(tasks)

	announced := 0
	for _, t := range tasks {
		if announced >= w.batchSize {
			break
		}
		if seen, ok := w.notified[t.ID]; ok && seen.Equal(*t.DueDate) {
			continue
		}

		if err := w.publisher.Publish(ctx, events.New(events.KindOverdue, t)); err != nil {
			logger.Warn("Worker: Failed to publish overdue event", zap.String("task_id", t.ID.String()), zap.Error(err))
			continue
		}
		w.notified[t.ID] = *t.DueDate
		announced++
	}

	logger.Info("Worker: Overdue check finished",
		zap.Duration("ms", time.Since(start)),
		zap.Int("checked", len(tasks)),
		zap.Int("announced", announced),
	)
	return announced
}

func (w *OverdueWorker) overdueTasks(ctx context.Context) ([]*task.Task, error) {
	// No limit: forgetResolved needs the full overdue set.
	tasks, err := w.repo.ListDueBefore(ctx, task.DateOf(w.now()), 0)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}

	out := make([]*task.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.DueDate != nil && t.IsOverdue(w.now()) {
			out = append(out, t)
		}
	}
	return out, nil
}

// forgetResolved drops tasks that are no longer overdue so they can be
// announced again if they slip a second time.
func (w *OverdueWorker) forgetResolved(current []*task.Task) {
	still := make(map[uuid.UUID]struct{}, len(current))
	for _, t := range current {
		still[t.ID] = struct{}{}
	}
	for id := range w.notified {
		if _, ok := still[id]; !ok {
			delete(w.notified, id)
		}
	}
}
