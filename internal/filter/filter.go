// Package filter holds the list predicates and orderings shared by the API and the terminal client.
package filter

import (
	"fmt"
	"strings"
	"taskflow/internal/models/task"

	"golang.org/x/text/cases"
)

type StatusFilter string

const (
	StatusAll        StatusFilter = "all"
	StatusIncomplete StatusFilter = "incomplete"
)

// ParseStatusFilter accepts "all", "incomplete" or a concrete task status. Empty means all.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch StatusFilter(s) {
	case "", StatusAll:
		return StatusAll, nil
	case StatusIncomplete:
		return StatusIncomplete, nil
	}
	st, err := task.ParseStatus(s)
	if err != nil {
		return "", fmt.Errorf("invalid status filter %q: want all, incomplete, todo, in-progress or done", s)
	}
	return StatusFilter(st), nil
}

func (f StatusFilter) Match(t *task.Task) bool {
	switch f {
	case "", StatusAll:
		return true
	case StatusIncomplete:
		return t.Status != task.StatusDone
	default:
		return t.Status == task.Status(f)
	}
}

type Criteria struct {
	Status StatusFilter
	Query  string
}

// Casers are stateful, so each call builds its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Match applies the status predicate and a case-insensitive substring search over title and description.
func (c Criteria) Match(t *task.Task) bool {
	if t == nil || !c.Status.Match(t) {
		return false
	}

	// Only a blank query is trimmed; surrounding spaces are part of the search.
	if strings.TrimSpace(c.Query) == "" {
		return true
	}

	q := fold(c.Query)
	return strings.Contains(fold(t.Title), q) ||
		strings.Contains(fold(t.Description), q)
}

// Apply returns the matching tasks in input order. The input slice is not modified.
func Apply(tasks []*task.Task, c Criteria) []*task.Task {
	out := make([]*task.Task, 0, len(tasks))
	for _, t := range tasks {
		if c.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Column is one Kanban lane.
type Column struct {
	Status task.Status  `json:"status"`
	Label  string       `json:"label"`
	Tasks  []*task.Task `json:"tasks"`
}

// GroupByStatus splits tasks into one column per status in board order, keeping input order inside a column.
func GroupByStatus(tasks []*task.Task) []Column {
	statuses := task.Statuses()
	columns := make([]Column, len(statuses))
	index := make(map[task.Status]int, len(statuses))
	for i, s := range statuses {
		columns[i] = Column{Status: s, Label: s.Label(), Tasks: []*task.Task{}}
		index[s] = i
	}

	for _, t := range tasks {
		if t == nil {
			continue
		}
		if i, ok := index[t.Status]; ok {
			columns[i].Tasks = append(columns[i].Tasks, t)
		}
	}
	return columns
}
