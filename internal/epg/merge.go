// SPDX-License-Identifier: MIT
package epg

import (
	"cmp"
	"slices"
	"time"
)

// Builder accumulates channels and programmes from one or more fetches and
// resolves repeats. Programmes carry the sequence number of the fetch that
// produced them; when two entries of one channel overlap, the entry from the
// higher sequence is kept.
type Builder struct {
	channels []Channel
	index    map[string]int
	pending  []sequenced
	stats    Stats
}

type sequenced struct {
	seq int
	p   Programme
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int)}
}

// AddChannel registers ch. The first registration of an id wins.
func (b *Builder) AddChannel(ch Channel) bool {
	if ch.ID == "" {
		return false
	}
	if _, ok := b.index[ch.ID]; ok {
		return false
	}
	b.index[ch.ID] = len(b.channels)
	b.channels = append(b.channels, ch)
	return true
}

// HasChannel reports whether id has been registered.
func (b *Builder) HasChannel(id string) bool {
	_, ok := b.index[id]
	return ok
}

// Add queues p from fetch seq. Invalid entries are counted and discarded.
func (b *Builder) Add(seq int, p Programme) {
	if !p.Valid() {
		b.stats.Invalid++
		return
	}
	p.Start = p.Start.UTC()
	p.End = p.End.UTC()
	b.pending = append(b.pending, sequenced{seq: seq, p: p})
}

// Drop records n entries discarded before reaching the builder.
func (b *Builder) Drop(n int) {
	b.stats.Dropped += n
}

// Document resolves duplicates and overlaps and returns the ordered guide.
// Programmes for unregistered channels are counted as dropped.
func (b *Builder) Document() *Document {
	byChannel := make(map[string][]sequenced)
	stats := b.stats
	for _, s := range b.pending {
		if !b.HasChannel(s.p.ChannelID) {
			stats.Dropped++
			continue
		}
		byChannel[s.p.ChannelID] = append(byChannel[s.p.ChannelID], s)
	}

	doc := &Document{Channels: slices.Clone(b.channels)}
	for _, ch := range b.channels {
		kept := resolve(byChannel[ch.ID], &stats)
		doc.Programmes = append(doc.Programmes, kept...)
	}
	doc.Stats = stats
	return doc
}

// resolve keeps a non-overlapping subset of entries, preferring later
// fetches, and returns it ordered by start.
func resolve(entries []sequenced, stats *Stats) []Programme {
	if len(entries) == 0 {
		return nil
	}
	slices.SortStableFunc(entries, func(a, b sequenced) int {
		if c := cmp.Compare(b.seq, a.seq); c != 0 {
			return c
		}
		if c := a.p.Start.Compare(b.p.Start); c != 0 {
			return c
		}
		return a.p.End.Compare(b.p.End)
	})

	var kept []Programme
	for _, e := range entries {
		i, found := slices.BinarySearchFunc(kept, e.p.Start, func(k Programme, t time.Time) int {
			return k.Start.Compare(t)
		})
		if found && kept[i].End.Equal(e.p.End) {
			stats.Duplicates++
			continue
		}
		if overlapsAt(kept, i, e.p) {
			stats.Overlaps++
			continue
		}
		kept = slices.Insert(kept, i, e.p)
	}
	return kept
}

// overlapsAt reports whether p intersects the kept neighbours around the
// insertion index i. kept is sorted and non-overlapping.
func overlapsAt(kept []Programme, i int, p Programme) bool {
	if i > 0 && kept[i-1].End.After(p.Start) {
		return true
	}
	return i < len(kept) && kept[i].Start.Before(p.End)
}
