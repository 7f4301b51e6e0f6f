package postgres

import (
	"context"
	"errors"
	"fmt"
	"taskflow/internal/logger"
	"taskflow/internal/models/task"
	repo "taskflow/internal/repository"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const slowQuery = 100 * time.Millisecond

type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

type Storage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, connString string, pc PoolConfig) (*Storage, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		logger.Error("Repository: Failed to parse pool config", err)
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = 5 * time.Minute
	if pc.MaxConns > 0 {
		config.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		config.MinConns = pc.MinConns
	}
	if pc.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		logger.Error("Repository: Failed to create pool", err)
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("Repository: Ping failed", err)
		return nil, fmt.Errorf("ping: %w", err)
	}

	logger.Info("Repository: Connected to PostgreSQL",
		zap.Int32("max_conns", config.MaxConns),
		zap.Int32("min_conns", config.MinConns))
	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
	logger.Info("Repository: PostgreSQL connections closed")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		logger.Error("Repository: Ping failed", err)
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func warnIfSlow(op string, start time.Time, threshold time.Duration) {
	if elapsed := time.Since(start); elapsed > threshold {
		logger.Warn("Repository: Slow query", zap.String("operation", op), zap.Duration("ms", elapsed))
	}
}

const selectColumns = `id, user_id, title, COALESCE(description, ''), status, due_date, created_at, updated_at, version`

func scanTask(row pgx.Row) (*task.Task, error) {
	t := &task.Task{}
	var status string
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.Description,
		&status,
		&t.DueDate,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.Version,
	)
	if err != nil {
		return nil, err
	}

	t.Status, err = task.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if t.DueDate != nil {
		due := task.DateOf(*t.DueDate)
		t.DueDate = &due
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func (s *Storage) Create(ctx context.Context, taskToCreate *task.Task) error {
	start := time.Now()

	query := `INSERT INTO tasks
				(id, user_id, title, description, status, due_date)
				VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
				RETURNING created_at, updated_at, version`

	err := s.pool.QueryRow(ctx, query,
		taskToCreate.ID,
		taskToCreate.UserID,
		taskToCreate.Title,
		taskToCreate.Description,
		string(taskToCreate.Status),
		taskToCreate.DueDate,
	).Scan(&taskToCreate.CreatedAt, &taskToCreate.UpdatedAt, &taskToCreate.Version)

	if err != nil {
		logger.Error("Repository: Failed to insert task", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("insert task: %w", err)
	}

	taskToCreate.CreatedAt = taskToCreate.CreatedAt.UTC()
	taskToCreate.UpdatedAt = taskToCreate.UpdatedAt.UTC()
	warnIfSlow("create", start, slowQuery/2)
	return nil
}

func (s *Storage) GetByID(ctx context.Context, userID, id uuid.UUID) (*task.Task, error) {
	start := time.Now()

	query := `SELECT ` + selectColumns + `
				FROM tasks
				WHERE id = $1 AND user_id = $2`

	t, err := scanTask(s.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Failed to get task", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("get task: %w", err)
	}

	warnIfSlow("get_by_id", start, slowQuery)
	return t, nil
}

// Update writes the task if its id, owner and version all match the stored row.
func (s *Storage) Update(ctx context.Context, taskToUpdate *task.Task) error {
	start := time.Now()

	query := `UPDATE tasks
			SET title = $1,
				description = NULLIF($2, ''),
				status = $3,
				due_date = $4,
				version = version + 1,
				updated_at = NOW()
			WHERE id = $5 AND user_id = $6 AND version = $7
			RETURNING created_at, updated_at, version`

	err := s.pool.QueryRow(ctx, query,
		taskToUpdate.Title,
		taskToUpdate.Description,
		string(taskToUpdate.Status),
		taskToUpdate.DueDate,
		taskToUpdate.ID,
		taskToUpdate.UserID,
		taskToUpdate.Version,
	).Scan(&taskToUpdate.CreatedAt, &taskToUpdate.UpdatedAt, &taskToUpdate.Version)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.missOrConflict(ctx, taskToUpdate.UserID, taskToUpdate.ID, taskToUpdate.Version, "update")
		}
		logger.Error("Repository: Failed to update task", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("update task: %w", err)
	}

	taskToUpdate.CreatedAt = taskToUpdate.CreatedAt.UTC()
	taskToUpdate.UpdatedAt = taskToUpdate.UpdatedAt.UTC()
	warnIfSlow("update", start, slowQuery)
	return nil
}

// Delete removes the task. A version of 0 skips the version check.
func (s *Storage) Delete(ctx context.Context, userID, id uuid.UUID, version int) error {
	start := time.Now()

	query := `DELETE FROM tasks
				WHERE id = $1 AND user_id = $2 AND ($3 = 0 OR version = $3)`

	tag, err := s.pool.Exec(ctx, query, id, userID, version)
	if err != nil {
		logger.Error("Repository: Failed to delete task", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("delete task: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, userID, id, version, "delete")
	}

	warnIfSlow("delete", start, slowQuery)
	return nil
}

// missOrConflict tells a missing row apart from a stale version after a conditional write matched nothing.
func (s *Storage) missOrConflict(ctx context.Context, userID, id uuid.UUID, version int, op string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1 AND user_id = $2)`,
		id, userID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s task: check existence: %w", op, err)
	}
	if !exists {
		return repo.ErrNotFound
	}

	logger.Warn("Repository: Version conflict",
		zap.String("operation", op),
		zap.String("task_id", id.String()),
		zap.Int("expected_version", version))
	return repo.ErrVersionConflict
}

var orderClauses = map[repo.Order]string{
	repo.OrderCreatedDesc: `created_at DESC`,
	repo.OrderCreatedAsc:  `created_at ASC`,
	repo.OrderDueAsc:      `due_date ASC NULLS LAST, created_at DESC`,
	repo.OrderDueDesc:     `due_date DESC NULLS LAST, created_at DESC`,
}

func (s *Storage) ListByUser(ctx context.Context, userID uuid.UUID, order repo.Order) ([]*task.Task, error) {
	start := time.Now()

	clause, ok := orderClauses[order]
	if !ok {
		clause = orderClauses[repo.OrderCreatedDesc]
	}

	query := `SELECT ` + selectColumns + `
				FROM tasks
				WHERE user_id = $1
				ORDER BY ` + clause

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		logger.Error("Repository: Failed to list tasks", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks, err := collect(rows)
	if err != nil {
		return nil, err
	}

	warnIfSlow("list_by_user", start, slowQuery+time.Millisecond*time.Duration(len(tasks)))
	return tasks, nil
}

// ListDueBefore returns unfinished tasks of every user whose due day is before deadline's day.
func (s *Storage) ListDueBefore(ctx context.Context, deadline time.Time, limit int) ([]*task.Task, error) {
	start := time.Now()

	query := `SELECT ` + selectColumns + `
				FROM tasks
				WHERE status <> 'done'
				  AND due_date IS NOT NULL
				  AND due_date < $1::date
				ORDER BY due_date ASC, id
				LIMIT NULLIF($2, 0)`

	rows, err := s.pool.Query(ctx, query, task.DateOf(deadline), limit)
	if err != nil {
		logger.Error("Repository: Failed to list due tasks", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("list due tasks: %w", err)
	}

	tasks, err := collect(rows)
	if err != nil {
		return nil, err
	}

	warnIfSlow("list_due_before", start, slowQuery/2+10*time.Millisecond*time.Duration(limit))
	return tasks, nil
}

func collect(rows pgx.Rows) ([]*task.Task, error) {
	defer rows.Close()

	tasks := []*task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			logger.Warn("Repository: Failed to scan task", zap.Error(err))
			continue
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		logger.Error("Repository: Row iteration failed", err)
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return tasks, nil
}
