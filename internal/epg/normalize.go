// SPDX-License-Identifier: MIT
package epg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ManuGH/hdhr-xmltv/internal/failure"
	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

const defaultLang = "en"

// Payload is the raw result of one guide strategy. The set of payload
// kinds is closed: OfficialPayload and LegacyPayload.
type Payload interface {
	strategy() string
}

// OfficialPayload is the pre-formatted XMLTV feed, possibly compressed.
type OfficialPayload struct {
	Body     []byte
	Encoding string // Content-Encoding of the response
}

func (OfficialPayload) strategy() string { return "official" }

// LineupChannel is one channel of a tuner lineup.
type LineupChannel struct {
	Number string
	Name   string
	Icon   string
}

// Slice is the body of one legacy guide request.
type Slice struct {
	Seq   int
	Start time.Time
	Body  []byte
}

// LegacyPayload is a merged device lineup plus the guide slices.
type LegacyPayload struct {
	Lineup []LineupChannel
	Slices []Slice
}

func (LegacyPayload) strategy() string { return "legacy" }

// NormalizeOptions controls normalization.
type NormalizeOptions struct {
	// Location decides calendar-day comparisons for previously-shown.
	Location *time.Location
}

// Normalize converts a strategy payload into a Document. Undecodable
// payloads are MalformedResponse failures.
func Normalize(p Payload, opts NormalizeOptions) (*Document, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	switch p := p.(type) {
	case OfficialPayload:
		return normalizeOfficial(p)
	case LegacyPayload:
		return normalizeLegacy(p, opts)
	default:
		return nil, failure.Newf(failure.Internal, "epg.normalize", "unknown payload %T", p)
	}
}

func normalizeOfficial(p OfficialPayload) (*Document, error) {
	const op = "epg.normalize_official"
	if len(p.Body) == 0 {
		return nil, failure.Newf(failure.MalformedResponse, op, "empty XMLTV body")
	}
	r, err := decompress(p.Body, p.Encoding)
	if err != nil {
		return nil, failure.New(failure.MalformedResponse, op, err)
	}
	parsed, err := Parse(r)
	if err != nil {
		return nil, failure.New(failure.MalformedResponse, op, err)
	}

	b := NewBuilder()
	for _, ch := range parsed.Channels {
		b.AddChannel(ch)
	}
	for _, prog := range parsed.Programmes {
		if !b.HasChannel(prog.ChannelID) && prog.ChannelID != "" {
			b.AddChannel(Channel{ID: prog.ChannelID, Number: prog.ChannelID, StationID: prog.ChannelID, Name: prog.ChannelID})
		}
		b.Add(0, prog)
	}
	doc := b.Document()
	doc.Stats.Invalid += parsed.Stats.Invalid
	return doc, nil
}

// decompress picks the decoder from the Content-Encoding header, falling
// back to the gzip magic number for servers that omit the header.
func decompress(body []byte, encoding string) (io.Reader, error) {
	enc := strings.ToLower(strings.TrimSpace(encoding))
	switch {
	case enc == "br":
		return brotli.NewReader(bytes.NewReader(body)), nil
	case enc == "gzip" || enc == "x-gzip" || bytes.HasPrefix(body, []byte{0x1f, 0x8b}):
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	case enc == "" || enc == "identity":
		return bytes.NewReader(body), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

type legacyChannel struct {
	GuideNumber string            `json:"GuideNumber"`
	GuideName   string            `json:"GuideName"`
	ImageURL    string            `json:"ImageURL"`
	Guide       []legacyProgramme `json:"Guide"`
}

type legacyProgramme struct {
	StartTime       int64    `json:"StartTime"`
	EndTime         int64    `json:"EndTime"`
	Title           string   `json:"Title"`
	EpisodeNumber   string   `json:"EpisodeNumber"`
	EpisodeTitle    string   `json:"EpisodeTitle"`
	Synopsis        string   `json:"Synopsis"`
	ImageURL        string   `json:"ImageURL"`
	OriginalAirdate int64    `json:"OriginalAirdate"`
	Filter          []string `json:"Filter"`
	First           *bool    `json:"First"`
}

func normalizeLegacy(p LegacyPayload, opts NormalizeOptions) (*Document, error) {
	const op = "epg.normalize_legacy"
	b := NewBuilder()
	for _, lc := range p.Lineup {
		b.AddChannel(Channel{
			ID:        lc.Number,
			Number:    lc.Number,
			StationID: lc.Number,
			Name:      cleanText(lc.Name),
			Icon:      lc.Icon,
			Lang:      defaultLang,
		})
	}

	for _, s := range p.Slices {
		var channels []legacyChannel
		if err := json.Unmarshal(s.Body, &channels); err != nil {
			return nil, failure.New(failure.MalformedResponse, op,
				fmt.Errorf("slice %d starting %s: %w", s.Seq, s.Start.UTC().Format(time.RFC3339), err))
		}
		for _, lc := range channels {
			if !b.HasChannel(lc.GuideNumber) {
				b.Drop(len(lc.Guide))
				continue
			}
			for _, lp := range lc.Guide {
				b.Add(s.Seq, legacyToProgramme(lc.GuideNumber, lp, opts.Location))
			}
		}
	}
	return b.Document(), nil
}

func legacyToProgramme(channelID string, lp legacyProgramme, loc *time.Location) Programme {
	p := Programme{
		ChannelID:   channelID,
		Title:       cleanText(lp.Title),
		SubTitle:    cleanText(lp.EpisodeTitle),
		Description: cleanDescription(lp.Synopsis),
		Lang:        defaultLang,
		Start:       time.Unix(lp.StartTime, 0).UTC(),
		End:         time.Unix(lp.EndTime, 0).UTC(),
		Icon:        lp.ImageURL,
		EpisodeNums: episodeNums(lp.EpisodeNumber),
	}
	for _, f := range lp.Filter {
		if f = cleanText(f); f != "" {
			p.Categories = append(p.Categories, f)
		}
	}

	switch {
	case lp.First != nil && *lp.First:
		p.New = true
	case lp.OriginalAirdate != 0:
		aired := time.Unix(lp.OriginalAirdate, 0).In(loc)
		if !sameDay(aired, p.Start.In(loc)) {
			p.PreviouslyShown = &PreviouslyShown{Start: aired.Format(airDateLayout)}
		} else if lp.First != nil {
			p.PreviouslyShown = &PreviouslyShown{}
		}
	case lp.First != nil:
		p.PreviouslyShown = &PreviouslyShown{}
	}
	return p
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
