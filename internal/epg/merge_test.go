// SPDX-License-Identifier: MIT
package epg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prog(ch, title string, start, end time.Time) Programme {
	return Programme{ChannelID: ch, Title: title, Start: start, End: end}
}

func titles(ps []Programme) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Title
	}
	return out
}

func TestBuilderOrdersByChannelThenStart(t *testing.T) {
	b := NewBuilder()
	b.AddChannel(Channel{ID: "9.1"})
	b.AddChannel(Channel{ID: "2.1"})
	assert.False(t, b.AddChannel(Channel{ID: "9.1", Name: "second registration"}))

	b.Add(0, prog("2.1", "c", at(10, 0), at(11, 0)))
	b.Add(0, prog("9.1", "b", at(12, 0), at(13, 0)))
	b.Add(0, prog("9.1", "a", at(8, 0), at(9, 0)))

	doc := b.Document()
	assert.Equal(t, []string{"a", "b", "c"}, titles(doc.Programmes))
	assert.Equal(t, "9.1", doc.Channels[0].ID)
	assert.Empty(t, doc.Channels[0].Name)
}

func TestBuilderMergeIsIdempotent(t *testing.T) {
	slice := []Programme{
		prog("5.1", "News", at(18, 0), at(18, 30)),
		prog("5.1", "Quiz", at(18, 30), at(19, 0)),
		prog("5.1", "Movie", at(19, 0), at(21, 0)),
	}

	b := NewBuilder()
	b.AddChannel(Channel{ID: "5.1"})
	for seq := 0; seq < 3; seq++ {
		for _, p := range slice {
			b.Add(seq, p)
		}
	}
	doc := b.Document()

	assert.Equal(t, []string{"News", "Quiz", "Movie"}, titles(doc.Programmes))
	assert.Equal(t, 6, doc.Stats.Duplicates)
	assert.Zero(t, doc.Stats.Overlaps)
}

func TestBuilderLaterFetchWinsOverlap(t *testing.T) {
	b := NewBuilder()
	b.AddChannel(Channel{ID: "5.1"})

	// First fetch believed the movie ran two hours.
	b.Add(0, prog("5.1", "Movie", at(19, 0), at(21, 0)))
	b.Add(0, prog("5.1", "Late News", at(21, 0), at(21, 30)))
	// The later fetch has the corrected schedule.
	b.Add(1, prog("5.1", "Movie", at(19, 0), at(20, 30)))
	b.Add(1, prog("5.1", "Short", at(20, 30), at(21, 0)))

	doc := b.Document()
	assert.Equal(t, []string{"Movie", "Short", "Late News"}, titles(doc.Programmes))
	assert.Equal(t, at(20, 30), doc.Programmes[0].End)
	assert.Equal(t, 1, doc.Stats.Overlaps)

	for i := 1; i < len(doc.Programmes); i++ {
		assert.False(t, doc.Programmes[i].Start.Before(doc.Programmes[i-1].End), "overlap at %d", i)
	}
}

func TestBuilderCountsInvalidAndDropped(t *testing.T) {
	b := NewBuilder()
	b.AddChannel(Channel{ID: "5.1"})

	b.Add(0, prog("5.1", "Backwards", at(10, 0), at(9, 0)))
	b.Add(0, prog("5.1", "Zero", at(10, 0), at(10, 0)))
	b.Add(0, prog("5.1", "", at(10, 0), at(11, 0)))
	b.Add(0, prog("9.9", "Unknown", at(10, 0), at(11, 0)))
	b.Drop(2)

	doc := b.Document()
	assert.Empty(t, doc.Programmes)
	assert.Equal(t, 3, doc.Stats.Invalid)
	assert.Equal(t, 3, doc.Stats.Dropped)
}

func TestBuilderNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	b := NewBuilder()
	b.AddChannel(Channel{ID: "5.1"})
	b.Add(0, prog("5.1", "News", time.Date(2025, 1, 2, 10, 0, 0, 0, loc), time.Date(2025, 1, 2, 11, 0, 0, 0, loc)))

	doc := b.Document()
	require.Len(t, doc.Programmes, 1)
	assert.Equal(t, time.UTC, doc.Programmes[0].Start.Location())
	assert.Equal(t, at(18, 0), doc.Programmes[0].Start)
}

func TestDocumentWindow(t *testing.T) {
	doc := &Document{Programmes: []Programme{
		prog("1", "a", at(10, 0), at(11, 0)),
		prog("2", "b", at(8, 0), at(9, 0)),
		prog("2", "c", at(12, 0), at(13, 0)),
	}}
	start, end := doc.Window()
	assert.Equal(t, at(8, 0), start)
	assert.Equal(t, at(13, 0), end)
}
