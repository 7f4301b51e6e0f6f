package handlers

import (
	"context"
	"net/http"
	"strconv"
	"taskflow/internal/filter"
	"taskflow/internal/handlers/dto"
	"taskflow/internal/logger"
	"taskflow/internal/models/task"
	"taskflow/internal/service"
	"time"

	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

type TaskHandler struct {
	TaskService TaskService
	now         func() time.Time
}

func NewTaskHandler(taskService TaskService) TaskHandler {
	return TaskHandler{
		TaskService: taskService,
		now:         time.Now,
	}
}

func parseCriteria(r *http.Request) (filter.Criteria, error) {
	q := r.URL.Query()
	status, err := filter.ParseStatusFilter(q.Get("status"))
	if err != nil {
		return filter.Criteria{}, err
	}
	return filter.Criteria{Status: status, Query: q.Get("q")}, nil
}

func (s *TaskHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.TaskService.HealthCheck(ctx); err != nil {
		logger.Error("HTTP: Health check failed", err)
		responseWithJSON(w, http.StatusServiceUnavailable,
			toPayload("status", "unavailable"),
			toPayload("time", s.now().UTC()))
		return
	}

	responseWithJSON(w, http.StatusOK,
		toPayload("status", "ok"),
		toPayload("time", s.now().UTC()))
}

func (s *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	criteria, err := parseCriteria(r)
	if err != nil {
		logger.Warn("HTTP: Invalid query parameter",
			zap.String("query", "status"),
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	sortKey, err := filter.ParseSortKey(r.URL.Query().Get("sort"))
	if err != nil {
		logger.Warn("HTTP: Invalid query parameter",
			zap.String("query", "sort"),
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	tasks, err := s.TaskService.ListTasks(r.Context(), user.ID, service.ListOptions{Criteria: criteria, Sort: sortKey})
	if err != nil {
		handleServiceError(w, r, err, "list_tasks")
		return
	}

	logger.Info("HTTP_OUT: Tasks listed",
		zap.Duration("ms", time.Since(start)),
		zap.Int("count", len(tasks)),
		zap.Int("http_status", http.StatusOK))

	responseWithJSON(w, http.StatusOK,
		toPayload("tasks", dto.FromTaskList(tasks, s.now())),
		toPayload("count", len(tasks)))
}

func (s *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req dto.CreateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	due, err := dto.ParseDueDate(req.DueDate)
	if err != nil {
		logger.Warn("HTTP: Invalid due date",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.TaskService.CreateTask(r.Context(), user.ID, service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		DueDate:     due,
	})
	if err != nil {
		handleServiceError(w, r, err, "create_task")
		return
	}

	logger.Info("HTTP_OUT: Task created",
		zap.Duration("ms", time.Since(start)),
		zap.String("task_id", created.ID.String()),
		zap.Int("http_status", http.StatusCreated))

	responseWithJSON(w, http.StatusCreated, toPayload("task", dto.FromTask(created, s.now())))
}

func (s *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	found, err := s.TaskService.GetTask(r.Context(), user.ID, id)
	if err != nil {
		handleServiceError(w, r, err, "get_task")
		return
	}

	logger.Info("HTTP_OUT: Task found",
		zap.Duration("ms", time.Since(start)),
		zap.String("task_id", id.String()),
		zap.Int("http_status", http.StatusOK))

	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(found, s.now())))
}

func (s *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req dto.UpdateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opts, err := req.Options()
	if err != nil {
		logger.Warn("HTTP: Invalid update",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.TaskService.UpdateTask(r.Context(), user.ID, id, req.Version, opts...)
	if err != nil {
		handleServiceError(w, r, err, "update_task")
		return
	}

	logger.Info("HTTP_OUT: Task updated",
		zap.Duration("ms", time.Since(start)),
		zap.String("task_id", id.String()),
		zap.Int("version", updated.Version),
		zap.Int("http_status", http.StatusOK))

	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(updated, s.now())))
}

func (s *TaskHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req dto.StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := s.TaskService.SetStatus(r.Context(), user.ID, id, req.Status, req.Version)
	if err != nil {
		handleServiceError(w, r, err, "set_status")
		return
	}

	logger.Info("HTTP_OUT: Task status changed",
		zap.Duration("ms", time.Since(start)),
		zap.String("task_id", id.String()),
		zap.String("status", updated.Status.String()),
		zap.Int("http_status", http.StatusOK))

	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(updated, s.now())))
}

func (s *TaskHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	// An empty body toggles unconditionally.
	var req dto.ToggleRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	updated, err := s.TaskService.ToggleStatus(r.Context(), user.ID, id, req.Version)
	if err != nil {
		handleServiceError(w, r, err, "toggle_status")
		return
	}

	logger.Info("HTTP_OUT: Task toggled",
		zap.Duration("ms", time.Since(start)),
		zap.String("task_id", id.String()),
		zap.String("status", updated.Status.String()),
		zap.Int("http_status", http.StatusOK))

	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(updated, s.now())))
}

func (s *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	version := 0
	if raw := r.URL.Query().Get("version"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			logger.Warn("HTTP: Invalid query parameter",
				zap.String("query", "version"),
				zap.String("value", raw),
				zap.String("client_ip", r.RemoteAddr))
			responseWithError(w, http.StatusBadRequest, "invalid version "+strconv.Quote(raw))
			return
		}
		version = v
	}

	if err := s.TaskService.DeleteTask(r.Context(), user.ID, id, version); err != nil {
		handleServiceError(w, r, err, "delete_task")
		return
	}

	logger.Info("HTTP_OUT: Task deleted",
		zap.Duration("ms", time.Since(start)),
		zap.String("task_id", id.String()),
		zap.Int("http_status", http.StatusNoContent))

	responseWithJSON(w, http.StatusNoContent)
}

func (s *TaskHandler) Board(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	criteria, err := parseCriteria(r)
	if err != nil {
		responseWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	columns, err := s.TaskService.Board(r.Context(), user.ID, criteria)
	if err != nil {
		handleServiceError(w, r, err, "board")
		return
	}

	logger.Info("HTTP_OUT: Board built",
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithJSON(w, http.StatusOK, toPayload("columns", dto.FromColumns(columns, s.now())))
}

// Timeline lays out the requested month, the current one when ?month is absent.
func (s *TaskHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	criteria, err := parseCriteria(r)
	if err != nil {
		responseWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := s.now()
	year, month := now.Year(), now.Month()
	if raw := r.URL.Query().Get("month"); raw != "" {
		year, month, err = task.ParseMonth(raw)
		if err != nil {
			logger.Warn("HTTP: Invalid query parameter",
				zap.String("query", "month"),
				zap.String("value", raw),
				zap.String("client_ip", r.RemoteAddr))
			responseWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	layout, err := s.TaskService.Timeline(r.Context(), user.ID, year, month, criteria)
	if err != nil {
		handleServiceError(w, r, err, "timeline")
		return
	}

	logger.Info("HTTP_OUT: Timeline built",
		zap.Duration("ms", time.Since(start)),
		zap.Int("bars", len(layout.Bars)),
		zap.Int("rows", layout.Rows),
		zap.Int("http_status", http.StatusOK))

	responseWithJSON(w, http.StatusOK, toPayload("timeline", dto.FromLayout(year, month, layout)))
}
