package timeline

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPolicy    = errors.New("timeline: invalid policy")
	ErrInvalidWindow    = errors.New("timeline: invalid window")
	ErrCapacityExceeded = errors.New("timeline: packing row capacity exceeded")
)

// SpanPolicy decides where a task without a due date ends. The zero value is
// deliberately invalid: callers must pick one.
type SpanPolicy int

const (
	_ SpanPolicy = iota
	SpanSameDay
	SpanOneMonth
	SpanSkip
)

func ParseSpanPolicy(s string) (SpanPolicy, error) {
	switch s {
	case "same_day":
		return SpanSameDay, nil
	case "one_month":
		return SpanOneMonth, nil
	case "skip":
		return SpanSkip, nil
	}
	return 0, fmt.Errorf("%w: unknown no-due-date span %q (want same_day, one_month or skip)", ErrInvalidPolicy, s)
}

func (p SpanPolicy) String() string {
	switch p {
	case SpanSameDay:
		return "same_day"
	case SpanOneMonth:
		return "one_month"
	case SpanSkip:
		return "skip"
	}
	return fmt.Sprintf("SpanPolicy(%d)", int(p))
}

// InvertedPolicy decides what happens to a task whose due date precedes its creation date.
type InvertedPolicy int

const (
	_ InvertedPolicy = iota
	InvertedDrop
	InvertedSwap
	InvertedCollapse
)

func ParseInvertedPolicy(s string) (InvertedPolicy, error) {
	switch s {
	case "drop":
		return InvertedDrop, nil
	case "swap":
		return InvertedSwap, nil
	case "collapse":
		return InvertedCollapse, nil
	}
	return 0, fmt.Errorf("%w: unknown inverted span policy %q (want drop, swap or collapse)", ErrInvalidPolicy, s)
}

func (p InvertedPolicy) String() string {
	switch p {
	case InvertedDrop:
		return "drop"
	case InvertedSwap:
		return "swap"
	case InvertedCollapse:
		return "collapse"
	}
	return fmt.Sprintf("InvertedPolicy(%d)", int(p))
}

type Policy struct {
	NoDueDate SpanPolicy
	Inverted  InvertedPolicy
	// MaxRows caps packing rows; 0 lets rows grow as needed.
	MaxRows int
}

func DefaultPolicy() Policy {
	return Policy{
		NoDueDate: SpanSameDay,
		Inverted:  InvertedDrop,
	}
}

func (p Policy) Validate() error {
	switch p.NoDueDate {
	case SpanSameDay, SpanOneMonth, SpanSkip:
	default:
		return fmt.Errorf("%w: no-due-date span policy is not set", ErrInvalidPolicy)
	}
	switch p.Inverted {
	case InvertedDrop, InvertedSwap, InvertedCollapse:
	default:
		return fmt.Errorf("%w: inverted span policy is not set", ErrInvalidPolicy)
	}
	if p.MaxRows < 0 {
		return fmt.Errorf("%w: max rows must not be negative", ErrInvalidPolicy)
	}
	return nil
}
