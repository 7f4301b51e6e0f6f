package timeline

import (
	"fmt"
	"taskflow/internal/models/task"
	"time"
)

const DaysPerWeek = 7

// Window is a run of whole Monday..Sunday weeks, both ends inclusive, at 00:00 UTC.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MonthWindow expands a month to the full weeks that cover it.
func MonthWindow(year int, month time.Month) Window {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	return Window{
		Start: first.AddDate(0, 0, -weekdayIndex(first)),
		End:   last.AddDate(0, 0, DaysPerWeek-1-weekdayIndex(last)),
	}
}

// NewWindow builds a window from arbitrary dates, requiring Monday and Sunday alignment.
func NewWindow(start, end time.Time) (Window, error) {
	w := Window{Start: task.DateOf(start), End: task.DateOf(end)}
	if err := w.validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

func (w Window) validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: bounds must be set", ErrInvalidWindow)
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidWindow, w.End.Format(time.DateOnly), w.Start.Format(time.DateOnly))
	}
	if weekdayIndex(w.Start) != 0 {
		return fmt.Errorf("%w: start %s is not a Monday", ErrInvalidWindow, w.Start.Format(time.DateOnly))
	}
	if weekdayIndex(w.End) != DaysPerWeek-1 {
		return fmt.Errorf("%w: end %s is not a Sunday", ErrInvalidWindow, w.End.Format(time.DateOnly))
	}
	return nil
}

func (w Window) Days() int {
	return task.DaysBetween(w.Start, w.End) + 1
}

func (w Window) Weeks() int {
	return w.Days() / DaysPerWeek
}

// Day returns the date at the given offset from the window start.
func (w Window) Day(offset int) time.Time {
	return task.AddDays(w.Start, offset)
}

func (w Window) Contains(day time.Time) bool {
	d := task.DateOf(day)
	return !d.Before(w.Start) && !d.After(w.End)
}

// weekdayIndex numbers days from Monday=0 to Sunday=6.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % DaysPerWeek
}
