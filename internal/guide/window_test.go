// SPDX-License-Identifier: MIT
package guide

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWindowTruncatesToHour(t *testing.T) {
	now := time.Date(2025, 1, 2, 14, 37, 12, 0, time.FixedZone("CET", 3600))
	w := NewWindow(now, 2)

	assert.Equal(t, time.Date(2025, 1, 2, 13, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, 48*time.Hour, w.End.Sub(w.Start))
}

func TestWindowSlices(t *testing.T) {
	w := NewWindow(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), 1)

	tests := []struct {
		name  string
		step  time.Duration
		count int
	}{
		{"even", 3 * time.Hour, 8},
		{"uneven", 5 * time.Hour, 5},
		{"whole day", 24 * time.Hour, 1},
		{"zero step", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starts := w.Slices(tt.step)
			require.Len(t, starts, tt.count)
			for i, s := range starts {
				assert.Equal(t, w.Start.Add(time.Duration(i)*tt.step), s)
			}
		})
	}

	assert.Nil(t, Window{Start: w.End, End: w.Start}.Slices(time.Hour))
}
