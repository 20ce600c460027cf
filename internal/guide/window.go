// SPDX-License-Identifier: MIT
package guide

import "time"

// Window is the half-open interval of guide data requested in one run.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns a window of the given number of days starting at the
// top of the hour containing now.
func NewWindow(now time.Time, days int) Window {
	start := now.UTC().Truncate(time.Hour)
	return Window{Start: start, End: start.Add(time.Duration(days) * 24 * time.Hour)}
}

// Slices returns the start of each step-sized slice covering w. The last
// slice may extend past End.
func (w Window) Slices(step time.Duration) []time.Time {
	if step <= 0 || !w.End.After(w.Start) {
		return nil
	}
	var starts []time.Time
	for t := w.Start; t.Before(w.End); t = t.Add(step) {
		starts = append(starts, t)
	}
	return starts
}
