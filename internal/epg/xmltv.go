// SPDX-License-Identifier: MIT
package epg

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
)

const (
	// SourceInfoName is written on the tv root element.
	SourceInfoName = "HDHomeRun"

	xmlHeader     = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
	xmltvLayout   = "20060102150405 -0700"
	airDateLayout = "20060102150405"

	// MaxDocumentSize bounds how much XMLTV is read from one source.
	MaxDocumentSize = 256 << 20
)

// ErrDocumentTooLarge is returned by Parse when the input exceeds MaxDocumentSize.
var ErrDocumentTooLarge = errors.New("xmltv: document exceeds size limit")

type xmlTV struct {
	XMLName        xml.Name       `xml:"tv"`
	SourceInfoName string         `xml:"source-info-name,attr,omitempty"`
	GeneratorName  string         `xml:"generator-info-name,attr,omitempty"`
	GeneratorURL   string         `xml:"generator-info-url,attr,omitempty"`
	Channels       []xmlChannel   `xml:"channel"`
	Programmes     []xmlProgramme `xml:"programme"`
}

type xmlChannel struct {
	ID           string    `xml:"id,attr"`
	DisplayNames []xmlText `xml:"display-name"`
	Icon         *xmlIcon  `xml:"icon"`
}

type xmlText struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

type xmlIcon struct {
	Src string `xml:"src,attr"`
}

type xmlEpisodeNum struct {
	System string `xml:"system,attr,omitempty"`
	Value  string `xml:",chardata"`
}

type xmlPreviouslyShown struct {
	Start string `xml:"start,attr,omitempty"`
}

type xmlEmpty struct{}

type xmlProgramme struct {
	Start           string              `xml:"start,attr"`
	Stop            string              `xml:"stop,attr,omitempty"`
	Channel         string              `xml:"channel,attr"`
	Titles          []xmlText           `xml:"title"`
	SubTitles       []xmlText           `xml:"sub-title"`
	Descs           []xmlText           `xml:"desc"`
	Categories      []xmlText           `xml:"category"`
	Icons           []xmlIcon           `xml:"icon"`
	EpisodeNums     []xmlEpisodeNum     `xml:"episode-num"`
	PreviouslyShown *xmlPreviouslyShown `xml:"previously-shown"`
	New             *xmlEmpty           `xml:"new"`
}

// RenderOptions controls serialization.
type RenderOptions struct {
	Location      *time.Location // zone for start/stop attributes, UTC when nil
	GeneratorName string
	GeneratorURL  string
}

// Render serializes doc as an indented XMLTV document. Output depends only
// on doc and opts: channels keep their order and programmes are ordered by
// channel position, start, end and title.
func Render(doc *Document, opts RenderOptions) ([]byte, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	tv := xmlTV{
		SourceInfoName: SourceInfoName,
		GeneratorName:  opts.GeneratorName,
		GeneratorURL:   opts.GeneratorURL,
	}

	order := make(map[string]int, len(doc.Channels))
	for i, ch := range doc.Channels {
		order[ch.ID] = i
		tv.Channels = append(tv.Channels, channelToXML(ch))
	}

	progs := slices.Clone(doc.Programmes)
	slices.SortStableFunc(progs, func(a, b Programme) int {
		ai, aok := order[a.ChannelID]
		bi, bok := order[b.ChannelID]
		switch {
		case aok && !bok:
			return -1
		case !aok && bok:
			return 1
		case !aok && !bok:
			if c := strings.Compare(a.ChannelID, b.ChannelID); c != 0 {
				return c
			}
		default:
			if c := cmp.Compare(ai, bi); c != 0 {
				return c
			}
		}
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		if c := a.End.Compare(b.End); c != 0 {
			return c
		}
		return strings.Compare(a.Title, b.Title)
	})
	for _, p := range progs {
		tv.Programmes = append(tv.Programmes, programmeToXML(p, loc))
	}

	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(tv); err != nil {
		return nil, fmt.Errorf("encode xmltv: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func channelToXML(ch Channel) xmlChannel {
	out := xmlChannel{ID: ch.ID}
	names := append([]string{ch.Name}, ch.AltNames...)
	for _, n := range names {
		if n == "" {
			continue
		}
		out.DisplayNames = append(out.DisplayNames, xmlText{Lang: ch.Lang, Value: n})
	}
	if ch.Icon != "" {
		out.Icon = &xmlIcon{Src: ch.Icon}
	}
	return out
}

func programmeToXML(p Programme, loc *time.Location) xmlProgramme {
	text := func(v string) []xmlText {
		if v == "" {
			return nil
		}
		return []xmlText{{Lang: p.Lang, Value: v}}
	}
	out := xmlProgramme{
		Start:     FormatTime(p.Start, loc),
		Stop:      FormatTime(p.End, loc),
		Channel:   p.ChannelID,
		Titles:    text(p.Title),
		SubTitles: text(p.SubTitle),
		Descs:     text(p.Description),
	}
	for _, c := range p.Categories {
		out.Categories = append(out.Categories, xmlText{Lang: p.Lang, Value: c})
	}
	if p.Icon != "" {
		out.Icons = []xmlIcon{{Src: p.Icon}}
	}
	for _, e := range p.EpisodeNums {
		out.EpisodeNums = append(out.EpisodeNums, xmlEpisodeNum(e))
	}
	if p.PreviouslyShown != nil {
		out.PreviouslyShown = &xmlPreviouslyShown{Start: p.PreviouslyShown.Start}
	}
	if p.New {
		out.New = &xmlEmpty{}
	}
	return out
}

// Parse decodes an XMLTV document. Entity expansion is disabled and input
// beyond MaxDocumentSize is rejected. Programmes whose times cannot be
// parsed are counted in Stats.Invalid.
func Parse(r io.Reader) (*Document, error) {
	lr := &io.LimitedReader{R: r, N: MaxDocumentSize + 1}
	dec := xml.NewDecoder(lr)
	dec.Strict = true
	dec.Entity = map[string]string{}
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		if strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "us-ascii") {
			return input, nil
		}
		return nil, fmt.Errorf("xmltv: unsupported charset %q", charset)
	}

	var tv xmlTV
	if err := dec.Decode(&tv); err != nil {
		if lr.N <= 0 {
			return nil, ErrDocumentTooLarge
		}
		return nil, fmt.Errorf("decode xmltv: %w", err)
	}
	if lr.N <= 0 {
		return nil, ErrDocumentTooLarge
	}

	doc := &Document{}
	for _, c := range tv.Channels {
		ch := Channel{ID: c.ID, Number: c.ID, StationID: c.ID}
		for i, n := range c.DisplayNames {
			if i == 0 {
				ch.Name, ch.Lang = n.Value, n.Lang
				continue
			}
			ch.AltNames = append(ch.AltNames, n.Value)
		}
		if c.Icon != nil {
			ch.Icon = c.Icon.Src
		}
		doc.Channels = append(doc.Channels, ch)
	}

	for _, x := range tv.Programmes {
		p, err := programmeFromXML(x)
		if err != nil {
			doc.Stats.Invalid++
			continue
		}
		doc.Programmes = append(doc.Programmes, p)
	}
	return doc, nil
}

func programmeFromXML(x xmlProgramme) (Programme, error) {
	start, err := ParseTime(x.Start)
	if err != nil {
		return Programme{}, err
	}
	end, err := ParseTime(x.Stop)
	if err != nil {
		return Programme{}, err
	}
	p := Programme{ChannelID: x.Channel, Start: start, End: end}
	if len(x.Titles) > 0 {
		p.Title, p.Lang = x.Titles[0].Value, x.Titles[0].Lang
	}
	if len(x.SubTitles) > 0 {
		p.SubTitle = x.SubTitles[0].Value
	}
	if len(x.Descs) > 0 {
		p.Description = x.Descs[0].Value
	}
	for _, c := range x.Categories {
		p.Categories = append(p.Categories, c.Value)
	}
	if len(x.Icons) > 0 {
		p.Icon = x.Icons[0].Src
	}
	for _, e := range x.EpisodeNums {
		p.EpisodeNums = append(p.EpisodeNums, EpisodeNum(e))
	}
	if x.PreviouslyShown != nil {
		p.PreviouslyShown = &PreviouslyShown{Start: x.PreviouslyShown.Start}
	}
	p.New = x.New != nil
	return p, nil
}

// FormatTime renders t in XMLTV notation (YYYYMMDDHHMMSS ±HHMM) in loc.
func FormatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(xmltvLayout)
}

// ParseTime parses XMLTV notation. Truncated forms down to YYYYMMDDHHMM
// are accepted; a missing offset means UTC. The result is in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	digits, offset, _ := strings.Cut(s, " ")
	var layout string
	switch len(digits) {
	case 14:
		layout = "20060102150405"
	case 12:
		layout = "200601021504"
	default:
		return time.Time{}, fmt.Errorf("xmltv: invalid time %q", s)
	}
	if offset == "" {
		t, err := time.ParseInLocation(layout, digits, time.UTC)
		return t.UTC(), err
	}
	t, err := time.Parse(layout+" -0700", digits+" "+strings.TrimSpace(offset))
	if err != nil {
		return time.Time{}, fmt.Errorf("xmltv: invalid time %q: %w", s, err)
	}
	return t.UTC(), nil
}
