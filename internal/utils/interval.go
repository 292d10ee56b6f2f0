package utils

import "time"

// Overlaps reports whether the half-open intervals [startA, endA) and
// [startB, endB) share at least one instant. Touching ends do not overlap.
func Overlaps(startA, endA, startB, endB time.Time) bool {
	return startA.Before(endB) && startB.Before(endA)
}

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Overlaps(o Window) bool {
	return Overlaps(w.Start, w.End, o.Start, o.End)
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Valid is false for zero bounds or end <= start.
func (w Window) Valid() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && w.End.After(w.Start)
}

// Contains reports whether inner lies entirely within w.
func (w Window) Contains(inner Window) bool {
	return !inner.Start.Before(w.Start) && !inner.End.After(w.End)
}

// ShiftTo keeps the duration and moves the window to start at t.
func (w Window) ShiftTo(t time.Time) Window {
	return Window{Start: t, End: t.Add(w.Duration())}
}

// DateSpan turns an inclusive calendar-date range into a window covering
// every instant of those days in the dates' location.
func DateSpan(startDate, endDate time.Time) Window {
	return Window{Start: StartOfDay(startDate), End: StartOfDay(endDate).AddDate(0, 0, 1)}
}
