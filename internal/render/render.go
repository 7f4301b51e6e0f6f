// Package render draws tasks for the terminal client.
package render

import (
	"fmt"
	"slices"
	"strings"
	"taskflow/internal/filter"
	"taskflow/internal/models/task"
	"taskflow/internal/timeline"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

const (
	colorTodo       = lipgloss.Color("#3B82F6")
	colorInProgress = lipgloss.Color("#F59E0B")
	colorDone       = lipgloss.Color("#22C55E")
	colorOverdue    = lipgloss.Color("#EF4444")
	colorMuted      = lipgloss.Color("244")
)

var (
	muted   = lipgloss.NewStyle().Foreground(colorMuted)
	bold    = lipgloss.NewStyle().Bold(true)
	overdue = lipgloss.NewStyle().Foreground(colorOverdue).Bold(true)
)

func StatusColor(s task.Status) lipgloss.Color {
	switch s {
	case task.StatusInProgress:
		return colorInProgress
	case task.StatusDone:
		return colorDone
	default:
		return colorTodo
	}
}

func StatusStyle(s task.Status) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(StatusColor(s)).Bold(true)
}

// ShortID is the prefix the client accepts in place of a full id.
func ShortID(id uuid.UUID) string {
	return id.String()[:8]
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}

func dueLabel(t *task.Task, now time.Time) string {
	if t.DueDate == nil {
		return muted.Render("no due date")
	}
	label := "due " + t.DueDate.Format(time.DateOnly)
	if t.IsOverdue(now) {
		return overdue.Render(label + " (overdue)")
	}
	return label
}

// List renders one task per line.
func List(tasks []*task.Task, now time.Time) string {
	if len(tasks) == 0 {
		return muted.Render("no tasks")
	}

	var b strings.Builder
	for _, t := range tasks {
		badge := StatusStyle(t.Status).Width(12).Render(t.Status.Label())
		fmt.Fprintf(&b, "%s %s  %s  %s\n", muted.Render(ShortID(t.ID)), badge, bold.Render(t.Title), dueLabel(t, now))
		if t.Description != "" {
			fmt.Fprintf(&b, "%s %s\n", strings.Repeat(" ", 21), muted.Render(truncate(t.Description, 60)))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Board renders the columns side by side, each width cells wide.
func Board(columns []filter.Column, now time.Time, width int) string {
	if width < 16 {
		width = 16
	}

	boxes := make([]string, 0, len(columns))
	for _, c := range columns {
		color := StatusColor(c.Status)
		lines := []string{
			lipgloss.NewStyle().Foreground(color).Bold(true).Render(fmt.Sprintf("%s (%d)", c.Label, len(c.Tasks))),
			"",
		}
		if len(c.Tasks) == 0 {
			lines = append(lines, muted.Render("empty"))
		}
		for _, t := range c.Tasks {
			title := truncate(t.Title, width-4)
			if t.IsOverdue(now) {
				title = overdue.Render(title)
			}
			lines = append(lines, "• "+title, "  "+muted.Render(ShortID(t.ID)))
		}

		box := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(color).
			Padding(0, 1).
			Width(width).
			Render(strings.Join(lines, "\n"))
		boxes = append(boxes, box)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

const cellWidth = 6

var weekdayNames = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Timeline renders a month layout as a week grid. Each bar spans the day
// cells it covers; ‹ and › mark bars that continue into another week.
func Timeline(l *timeline.Layout, tasks map[uuid.UUID]*task.Task, year int, month time.Month) string {
	var b strings.Builder
	title := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("January 2006")
	b.WriteString(bold.Render(title) + "\n")

	for _, name := range weekdayNames {
		b.WriteString(muted.Render(fmt.Sprintf("%-*s", cellWidth, name)))
	}
	b.WriteString("\n")

	for week := 0; week < l.Window.Weeks(); week++ {
		for d := 0; d < timeline.DaysPerWeek; d++ {
			day := l.Window.Day(week*timeline.DaysPerWeek + d)
			label := fmt.Sprintf("%-*d", cellWidth, day.Day())
			if day.Month() != month {
				label = muted.Render(label)
			}
			b.WriteString(label)
		}
		b.WriteString("\n")

		bars := l.Week(week)
		for row := 0; row < l.RowsInWeek(week); row++ {
			b.WriteString(barRow(bars, row, tasks))
			b.WriteString("\n")
		}
	}

	if len(l.Undated) > 0 {
		fmt.Fprintf(&b, "%s\n", muted.Render(fmt.Sprintf("%d task(s) without a due date not shown", len(l.Undated))))
	}
	for _, d := range l.Dropped {
		name := ShortID(d.TaskID)
		if t, ok := tasks[d.TaskID]; ok {
			name = t.Title
		}
		fmt.Fprintf(&b, "%s\n", muted.Render(fmt.Sprintf("skipped %q: %s", name, d.Reason)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func barRow(bars []timeline.Bar, row int, tasks map[uuid.UUID]*task.Task) string {
	var inRow []timeline.Bar
	for _, bar := range bars {
		if bar.Row == row {
			inRow = append(inRow, bar)
		}
	}
	slices.SortFunc(inRow, func(a, b timeline.Bar) int { return a.StartDay - b.StartDay })

	var b strings.Builder
	day := 0
	for _, bar := range inRow {
		for ; day < bar.StartDay; day++ {
			b.WriteString(strings.Repeat(" ", cellWidth))
		}
		b.WriteString(barCell(bar, tasks[bar.TaskID]))
		day = bar.EndDay + 1
	}
	return strings.TrimRight(b.String(), " ")
}

func barCell(bar timeline.Bar, t *task.Task) string {
	width := bar.Days()*cellWidth - 1
	label, status := "?", task.StatusTodo
	if t != nil {
		label, status = t.Title, t.Status
	}
	if bar.ContinuesBefore {
		label = "‹" + label
	}
	if bar.ContinuesAfter {
		label += "›"
	}

	style := lipgloss.NewStyle().
		Background(StatusColor(status)).
		Foreground(lipgloss.Color("#FFFFFF")).
		Width(width)
	return style.Render(truncate(label, width)) + " "
}
