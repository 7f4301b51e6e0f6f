package render

import (
	"strings"
	"taskflow/internal/filter"
	"taskflow/internal/models/task"
	"taskflow/internal/timeline"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newTask(title string, status task.Status, created time.Time, due *time.Time) *task.Task {
	return &task.Task{
		ID:        uuid.New(),
		Title:     title,
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
		DueDate:   due,
		Version:   1,
	}
}

func day(d int) *time.Time {
	t := time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"too long title", 6, "too l…"},
		{"ünïcödé", 4, "ünï…"},
		{"x", 0, ""},
		{"ab", 1, "…"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.width))
		})
	}
}

func TestStatusColor(t *testing.T) {
	assert.Equal(t, colorTodo, StatusColor(task.StatusTodo))
	assert.Equal(t, colorInProgress, StatusColor(task.StatusInProgress))
	assert.Equal(t, colorDone, StatusColor(task.StatusDone))
}

func TestList(t *testing.T) {
	assert.Contains(t, List(nil, now), "no tasks")

	late := newTask("Pay rent", task.StatusTodo, now.AddDate(0, 0, -5), day(10))
	late.Description = "before the landlord calls"
	open := newTask("Plan trip", task.StatusInProgress, now, nil)

	out := List([]*task.Task{late, open}, now)

	assert.Contains(t, out, ShortID(late.ID))
	assert.Contains(t, out, "Pay rent")
	assert.Contains(t, out, "due 2026-10-10 (overdue)")
	assert.Contains(t, out, "before the landlord calls")
	assert.Contains(t, out, "In Progress")
	assert.Contains(t, out, "no due date")
}

func TestBoard(t *testing.T) {
	tasks := []*task.Task{
		newTask("first", task.StatusTodo, now, nil),
		newTask("second", task.StatusDone, now, nil),
	}
	out := Board(filter.GroupByStatus(tasks), now, 20)

	assert.Contains(t, out, "To Do (1)")
	assert.Contains(t, out, "In Progress (0)")
	assert.Contains(t, out, "Done (1)")
	assert.Contains(t, out, "empty")

	lines := strings.Split(out, "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, lipgloss.Width(lines[0]), lipgloss.Width(lines[len(lines)-1]), "columns are joined into a rectangle")
}

func TestTimeline(t *testing.T) {
	// October 2026 starts on a Thursday; the window opens Monday 28 September.
	spanning := newTask("Quarterly report", task.StatusInProgress, time.Date(2026, 10, 2, 9, 0, 0, 0, time.UTC), day(6))
	single := newTask("Dentist", task.StatusTodo, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC), day(14))
	undated := newTask("Someday", task.StatusTodo, now, nil)

	policy := timeline.Policy{NoDueDate: timeline.SpanSkip, Inverted: timeline.InvertedDrop}
	l, err := timeline.Compute([]*task.Task{spanning, single, undated}, timeline.MonthWindow(2026, time.October), policy)
	require.NoError(t, err)

	byID := map[uuid.UUID]*task.Task{spanning.ID: spanning, single.ID: single, undated.ID: undated}
	out := Timeline(l, byID, 2026, time.October)

	assert.True(t, strings.HasPrefix(out, "October 2026"))
	assert.Contains(t, out, "Mon")
	assert.Contains(t, out, "Quarterly report›")
	assert.Contains(t, out, "‹Quarterly")
	assert.Contains(t, out, "Dent…")
	assert.Contains(t, out, "1 task(s) without a due date not shown")
}

func TestBarCell_Width(t *testing.T) {
	bar := timeline.Bar{StartDay: 1, EndDay: 3}
	cell := barCell(bar, newTask("A very long title that will not fit", task.StatusDone, now, nil))

	assert.Equal(t, 3*cellWidth, lipgloss.Width(cell))
	assert.Contains(t, cell, "…")
}
