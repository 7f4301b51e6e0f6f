// Package timeline projects tasks onto a calendar week grid.
//
// A task spans from its creation day to its due day. Compute clips each span to
// the visible window, packs spans into rows greedily so that bars in one row
// never share a day, and cuts each span into one bar per week row it touches.
// The function is pure: the same tasks in the same order give the same layout.
package timeline

import (
	"fmt"
	"taskflow/internal/models/task"
	"time"

	"github.com/google/uuid"
)

// Bar is one renderable segment of a task inside a single week row.
type Bar struct {
	TaskID          uuid.UUID `json:"task_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Week            int       `json:"week"`
	StartDay        int       `json:"start_day"`
	EndDay          int       `json:"end_day"`
	Row             int       `json:"row"`
	LeftPercent     float64   `json:"left_percent"`
	WidthPercent    float64   `json:"width_percent"`
	ContinuesBefore bool      `json:"continues_before"`
	ContinuesAfter  bool      `json:"continues_after"`
}

func (b Bar) Days() int {
	return b.EndDay - b.StartDay + 1
}

type DropReason string

const DropInvertedSpan DropReason = "due date before creation date"

type Drop struct {
	TaskID uuid.UUID  `json:"task_id"`
	Reason DropReason `json:"reason"`
}

type Layout struct {
	Window  Window      `json:"window"`
	Bars    []Bar       `json:"bars"`
	Rows    int         `json:"rows"`
	Dropped []Drop      `json:"dropped,omitempty"`
	Undated []uuid.UUID `json:"undated,omitempty"`
}

// Week returns the bars drawn in week row i.
func (l *Layout) Week(i int) []Bar {
	var out []Bar
	for _, b := range l.Bars {
		if b.Week == i {
			out = append(out, b)
		}
	}
	return out
}

// RowsInWeek is the number of packing rows a week row needs to draw its bars.
func (l *Layout) RowsInWeek(i int) int {
	rows := 0
	for _, b := range l.Bars {
		if b.Week == i && b.Row+1 > rows {
			rows = b.Row + 1
		}
	}
	return rows
}

func (l *Layout) BarsFor(id uuid.UUID) []Bar {
	var out []Bar
	for _, b := range l.Bars {
		if b.TaskID == id {
			out = append(out, b)
		}
	}
	return out
}

type CapacityError struct {
	TaskID  uuid.UUID
	MaxRows int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("timeline: task %s does not fit in %d packing rows", e.TaskID, e.MaxRows)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

// Compute lays tasks out on the window. Tasks whose span misses the window are
// left out without comment; inverted spans follow p.Inverted.
func Compute(tasks []*task.Task, w Window, p Policy) (*Layout, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := w.validate(); err != nil {
		return nil, err
	}

	layout := &Layout{Window: w, Bars: []Bar{}}
	pk := &packer{maxRows: p.MaxRows}

	for _, t := range tasks {
		if t == nil {
			continue
		}

		s, ok := spanOf(t, p)
		switch {
		case !ok && t.DueDate == nil:
			layout.Undated = append(layout.Undated, t.ID)
			continue
		case !ok:
			layout.Dropped = append(layout.Dropped, Drop{TaskID: t.ID, Reason: DropInvertedSpan})
			continue
		}

		if s.start.After(w.End) || s.end.Before(w.Start) {
			continue
		}

		clippedStart, clippedEnd := s.start, s.end
		if clippedStart.Before(w.Start) {
			clippedStart = w.Start
		}
		if clippedEnd.After(w.End) {
			clippedEnd = w.End
		}

		iv := interval{
			start: task.DaysBetween(w.Start, clippedStart),
			end:   task.DaysBetween(w.Start, clippedEnd),
		}

		row, ok := pk.place(iv)
		if !ok {
			return nil, &CapacityError{TaskID: t.ID, MaxRows: p.MaxRows}
		}

		layout.Bars = append(layout.Bars, segments(t.ID, w, iv, row, s.start.Before(w.Start), s.end.After(w.End))...)
	}

	layout.Rows = len(pk.rows)
	return layout, nil
}

type span struct {
	start, end time.Time
}

// spanOf resolves a task to its [start, end] calendar days; ok is false when
// the task cannot be placed under the policy.
func spanOf(t *task.Task, p Policy) (span, bool) {
	start := task.DateOf(t.CreatedAt)

	if t.DueDate == nil {
		switch p.NoDueDate {
		case SpanSameDay:
			return span{start: start, end: start}, true
		case SpanOneMonth:
			return span{start: start, end: start.AddDate(0, 1, 0)}, true
		default:
			return span{}, false
		}
	}

	end := task.DateOf(*t.DueDate)
	if !end.Before(start) {
		return span{start: start, end: end}, true
	}

	switch p.Inverted {
	case InvertedSwap:
		return span{start: end, end: start}, true
	case InvertedCollapse:
		return span{start: end, end: end}, true
	default:
		return span{}, false
	}
}

// segments cuts the day interval iv into one bar per week row it covers.
func segments(id uuid.UUID, w Window, iv interval, row int, clippedStart, clippedEnd bool) []Bar {
	firstWeek := iv.start / DaysPerWeek
	lastWeek := iv.end / DaysPerWeek

	bars := make([]Bar, 0, lastWeek-firstWeek+1)
	for week := firstWeek; week <= lastWeek; week++ {
		from, to := 0, DaysPerWeek-1
		if week == firstWeek {
			from = iv.start % DaysPerWeek
		}
		if week == lastWeek {
			to = iv.end % DaysPerWeek
		}

		bars = append(bars, Bar{
			TaskID:          id,
			Start:           w.Day(week*DaysPerWeek + from),
			End:             w.Day(week*DaysPerWeek + to),
			Week:            week,
			StartDay:        from,
			EndDay:          to,
			Row:             row,
			LeftPercent:     percentOfWeek(from),
			WidthPercent:    percentOfWeek(to - from + 1),
			ContinuesBefore: week > firstWeek || clippedStart,
			ContinuesAfter:  week < lastWeek || clippedEnd,
		})
	}
	return bars
}

func percentOfWeek(days int) float64 {
	return float64(days) / DaysPerWeek * 100
}
