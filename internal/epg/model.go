// SPDX-License-Identifier: MIT

// Package epg holds the guide data model and converts between HDHomeRun
// guide payloads and XMLTV documents.
package epg

import "time"

// Channel is one guide channel. ID is the XMLTV channel id and, for
// HDHomeRun lineups, equal to the guide number.
type Channel struct {
	ID        string
	Number    string
	Name      string
	StationID string
	Icon      string
	Lang      string
	AltNames  []string
}

// EpisodeNum is an episode-num element.
type EpisodeNum struct {
	System string
	Value  string
}

// PreviouslyShown marks a repeat. Start is the original air time in
// XMLTV notation and may be empty.
type PreviouslyShown struct {
	Start string
}

// Programme is one guide entry. Start and End are UTC instants.
type Programme struct {
	ChannelID       string
	Title           string
	SubTitle        string
	Description     string
	Lang            string
	Start           time.Time
	End             time.Time
	Categories      []string
	Icon            string
	EpisodeNums     []EpisodeNum
	New             bool
	PreviouslyShown *PreviouslyShown
}

// Valid reports whether p has a title, a channel and a positive duration.
func (p Programme) Valid() bool {
	return p.ChannelID != "" && p.Title != "" && p.End.After(p.Start)
}

// Stats counts what normalization discarded.
type Stats struct {
	Dropped    int // entries for channels absent from the lineup
	Duplicates int // repeated (channel, start, end) entries
	Overlaps   int // entries displaced by an overlapping entry from a later fetch
	Invalid    int // entries with missing fields or End <= Start
}

// Document is a normalized guide: channels in first-seen order and
// programmes ordered by channel order then start time.
type Document struct {
	Channels   []Channel
	Programmes []Programme
	Stats      Stats
}

// Window returns the earliest start and latest end over all programmes.
func (d *Document) Window() (start, end time.Time) {
	for i, p := range d.Programmes {
		if i == 0 || p.Start.Before(start) {
			start = p.Start
		}
		if i == 0 || p.End.After(end) {
			end = p.End
		}
	}
	return start, end
}
