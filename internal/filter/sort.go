package filter

import (
	"fmt"
	"slices"
	"taskflow/internal/models/task"
)

type SortKey string

const (
	SortCreatedDesc SortKey = "created-desc"
	SortCreatedAsc  SortKey = "created-asc"
	SortDueAsc      SortKey = "due-asc"
	SortDueDesc     SortKey = "due-desc"
)

func SortKeys() []SortKey {
	return []SortKey{SortCreatedDesc, SortCreatedAsc, SortDueAsc, SortDueDesc}
}

// ParseSortKey defaults to newest first when s is empty.
func ParseSortKey(s string) (SortKey, error) {
	if s == "" {
		return SortCreatedDesc, nil
	}
	for _, k := range SortKeys() {
		if SortKey(s) == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("invalid sort key %q: want created-desc, created-asc, due-asc or due-desc", s)
}

// Compare orders a before b when the result is negative. Tasks without a due
// date go last under both due orderings.
func Compare(key SortKey, a, b *task.Task) int {
	switch key {
	case SortCreatedAsc:
		return a.CreatedAt.Compare(b.CreatedAt)
	case SortDueAsc, SortDueDesc:
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return 1
		case b.DueDate == nil:
			return -1
		}
		if key == SortDueDesc {
			return b.DueDate.Compare(*a.DueDate)
		}
		return a.DueDate.Compare(*b.DueDate)
	default:
		return b.CreatedAt.Compare(a.CreatedAt)
	}
}

// Sort returns a stably sorted copy of tasks.
func Sort(tasks []*task.Task, key SortKey) []*task.Task {
	out := slices.Clone(tasks)
	slices.SortStableFunc(out, func(a, b *task.Task) int {
		return Compare(key, a, b)
	})
	return out
}
