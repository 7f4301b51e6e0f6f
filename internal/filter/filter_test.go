package filter_test

import (
	"taskflow/internal/filter"
	"taskflow/internal/models/task"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mk(title, desc string, status task.Status, created time.Time, due *time.Time) *task.Task {
	return &task.Task{
		ID:          uuid.New(),
		Title:       title,
		Description: desc,
		Status:      status,
		CreatedAt:   created,
		DueDate:     due,
	}
}

func at(d int) time.Time {
	return time.Date(2026, time.October, d, 0, 0, 0, 0, time.UTC)
}

func atPtr(d int) *time.Time {
	t := at(d)
	return &t
}

func fixtures() []*task.Task {
	return []*task.Task{
		mk("Write report", "quarterly numbers", task.StatusTodo, at(1), atPtr(20)),
		mk("Review PR", "", task.StatusInProgress, at(2), nil),
		mk("Ship release", "Tag and PUBLISH", task.StatusDone, at(3), atPtr(10)),
		mk("Plan offsite", "book venue", task.StatusTodo, at(4), atPtr(15)),
		mk("Straße umbenennen", "", task.StatusInProgress, at(5), nil),
	}
}

func TestParseStatusFilter(t *testing.T) {
	tests := []struct {
		input       string
		expected    filter.StatusFilter
		expectError bool
	}{
		{input: "", expected: filter.StatusAll},
		{input: "all", expected: filter.StatusAll},
		{input: "incomplete", expected: filter.StatusIncomplete},
		{input: "in-progress", expected: filter.StatusFilter(task.StatusInProgress)},
		{input: "archived", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := filter.ParseStatusFilter(tt.input)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestApply_Incomplete(t *testing.T) {
	tasks := fixtures()
	got := filter.Apply(tasks, filter.Criteria{Status: filter.StatusIncomplete})

	assert.Len(t, got, 4)
	for _, tk := range got {
		assert.NotEqual(t, task.StatusDone, tk.Status)
	}

	reversed := make([]*task.Task, len(tasks))
	for i, tk := range tasks {
		reversed[len(tasks)-1-i] = tk
	}
	assert.ElementsMatch(t, got, filter.Apply(reversed, filter.Criteria{Status: filter.StatusIncomplete}))
}

func TestCriteria_Match(t *testing.T) {
	tasks := fixtures()

	tests := []struct {
		name     string
		criteria filter.Criteria
		expected []string
	}{
		{
			name:     "blank query matches everything",
			criteria: filter.Criteria{Query: "   "},
			expected: []string{"Write report", "Review PR", "Ship release", "Plan offsite", "Straße umbenennen"},
		},
		{
			name:     "title is case insensitive",
			criteria: filter.Criteria{Query: "REVIEW"},
			expected: []string{"Review PR"},
		},
		{
			name:     "description match",
			criteria: filter.Criteria{Query: "publish"},
			expected: []string{"Ship release"},
		},
		{
			name:     "unicode folding",
			criteria: filter.Criteria{Query: "STRASSE"},
			expected: []string{"Straße umbenennen"},
		},
		{
			name:     "leading space is part of the query",
			criteria: filter.Criteria{Query: " report"},
			expected: []string{"Write report"},
		},
		{
			name:     "trailing space is part of the query",
			criteria: filter.Criteria{Query: "report "},
			expected: []string{},
		},
		{
			name:     "status and query combined",
			criteria: filter.Criteria{Status: filter.StatusFilter(task.StatusTodo), Query: "o"},
			expected: []string{"Write report", "Plan offsite"},
		},
		{
			name:     "no match",
			criteria: filter.Criteria{Query: "nothing like this"},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			titles := []string{}
			for _, tk := range filter.Apply(tasks, tt.criteria) {
				titles = append(titles, tk.Title)
			}
			assert.Equal(t, tt.expected, titles)
		})
	}
}

func TestSort(t *testing.T) {
	tasks := fixtures()

	tests := []struct {
		key      filter.SortKey
		expected []string
	}{
		{key: filter.SortCreatedDesc, expected: []string{"Straße umbenennen", "Plan offsite", "Ship release", "Review PR", "Write report"}},
		{key: filter.SortCreatedAsc, expected: []string{"Write report", "Review PR", "Ship release", "Plan offsite", "Straße umbenennen"}},
		{key: filter.SortDueAsc, expected: []string{"Ship release", "Plan offsite", "Write report", "Review PR", "Straße umbenennen"}},
		{key: filter.SortDueDesc, expected: []string{"Write report", "Plan offsite", "Ship release", "Review PR", "Straße umbenennen"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			sorted := filter.Sort(tasks, tt.key)

			titles := make([]string, len(sorted))
			for i, tk := range sorted {
				titles[i] = tk.Title
			}
			assert.Equal(t, tt.expected, titles)
		})
	}

	assert.Equal(t, "Write report", tasks[0].Title, "input must not be reordered")
}

func TestSort_NullDueDatesLast(t *testing.T) {
	tasks := fixtures()
	for _, key := range []filter.SortKey{filter.SortDueAsc, filter.SortDueDesc} {
		sorted := filter.Sort(tasks, key)
		seenNull := false
		for _, tk := range sorted {
			if tk.DueDate == nil {
				seenNull = true
				continue
			}
			assert.False(t, seenNull, "%s: dated task after undated one", key)
		}
	}
}

func TestParseSortKey(t *testing.T) {
	k, err := filter.ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, filter.SortCreatedDesc, k)

	k, err = filter.ParseSortKey("due-desc")
	require.NoError(t, err)
	assert.Equal(t, filter.SortDueDesc, k)

	_, err = filter.ParseSortKey("title")
	assert.Error(t, err)
}

func TestGroupByStatus(t *testing.T) {
	columns := filter.GroupByStatus(fixtures())
	require.Len(t, columns, 3)

	assert.Equal(t, task.StatusTodo, columns[0].Status)
	assert.Equal(t, "To Do", columns[0].Label)
	assert.Len(t, columns[0].Tasks, 2)
	assert.Equal(t, "Write report", columns[0].Tasks[0].Title)

	assert.Equal(t, task.StatusInProgress, columns[1].Status)
	assert.Len(t, columns[1].Tasks, 2)

	assert.Equal(t, task.StatusDone, columns[2].Status)
	assert.Len(t, columns[2].Tasks, 1)

	empty := filter.GroupByStatus(nil)
	for _, c := range empty {
		assert.NotNil(t, c.Tasks)
		assert.Empty(t, c.Tasks)
	}
}
