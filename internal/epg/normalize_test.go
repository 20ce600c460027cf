// SPDX-License-Identifier: MIT
package epg

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/ManuGH/hdhr-xmltv/internal/failure"
	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const officialXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE tv SYSTEM "xmltv.dtd">
<tv source-info-name="HDHomeRun">
  <channel id="US28446.hdhomerun.com">
    <display-name>5.1 KTVU</display-name>
    <display-name>5.1</display-name>
    <display-name>KTVU</display-name>
    <icon src="https://img.hdhomerun.com/channels/US28446.png"/>
  </channel>
  <programme start="20250102180000 +0000" stop="20250102183000 +0000" channel="US28446.hdhomerun.com">
    <title lang="en">News</title>
  </programme>
  <programme start="20250102180000 +0000" stop="20250102183000 +0000" channel="US28446.hdhomerun.com">
    <title lang="en">News</title>
  </programme>
  <programme start="20250102190000 +0000" stop="20250102200000 +0000" channel="US99999.hdhomerun.com">
    <title lang="en">Orphan</title>
  </programme>
</tv>`

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func brotlied(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, err := bw.Write(data)
	require.NoError(t, err)
	require.NoError(t, bw.Close())
	return buf.Bytes()
}

func TestNormalizeOfficialEncodings(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		encoding string
	}{
		{"plain", []byte(officialXML), ""},
		{"gzip header", gzipped(t, []byte(officialXML)), "gzip"},
		{"gzip sniffed", gzipped(t, []byte(officialXML)), ""},
		{"brotli", brotlied(t, []byte(officialXML)), "br"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Normalize(OfficialPayload{Body: tt.body, Encoding: tt.encoding}, NormalizeOptions{})
			require.NoError(t, err)

			require.Len(t, doc.Channels, 2)
			assert.Equal(t, "US28446.hdhomerun.com", doc.Channels[0].ID)
			assert.Equal(t, "5.1 KTVU", doc.Channels[0].Name)
			assert.Equal(t, []string{"5.1", "KTVU"}, doc.Channels[0].AltNames)
			assert.Equal(t, "https://img.hdhomerun.com/channels/US28446.png", doc.Channels[0].Icon)

			// Programmes naming an undeclared channel get a synthesized one.
			assert.Equal(t, "US99999.hdhomerun.com", doc.Channels[1].ID)
			assert.Equal(t, "US99999.hdhomerun.com", doc.Channels[1].Name)

			require.Len(t, doc.Programmes, 2)
			assert.Equal(t, 1, doc.Stats.Duplicates)
		})
	}
}

func TestNormalizeOfficialMalformed(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		encoding string
	}{
		{"empty", nil, ""},
		{"html", []byte("<html><body>Service Unavailable</body"), ""},
		{"bad gzip", []byte{0x1f, 0x8b, 0x00}, "gzip"},
		{"unknown encoding", []byte(officialXML), "zstd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(OfficialPayload{Body: tt.body, Encoding: tt.encoding}, NormalizeOptions{})
			require.Error(t, err)
			assert.Equal(t, failure.MalformedResponse, failure.KindOf(err))
		})
	}
}

func boolPtr(b bool) *bool { return &b }

func legacySlice(t *testing.T, seq int, channels []legacyChannel) Slice {
	t.Helper()
	body, err := json.Marshal(channels)
	require.NoError(t, err)
	return Slice{Seq: seq, Start: at(0, 0), Body: body}
}

func TestNormalizeLegacyDropsUnknownChannels(t *testing.T) {
	payload := LegacyPayload{
		Lineup: []LineupChannel{{Number: "5.1", Name: "KTVU"}},
		Slices: []Slice{legacySlice(t, 0, []legacyChannel{
			{GuideNumber: "5.1", Guide: []legacyProgramme{{StartTime: at(18, 0).Unix(), EndTime: at(18, 30).Unix(), Title: "News"}}},
			{GuideNumber: "9.9", Guide: []legacyProgramme{{StartTime: at(18, 0).Unix(), EndTime: at(18, 30).Unix(), Title: "Elsewhere"}}},
		})},
	}

	doc, err := Normalize(payload, NormalizeOptions{})
	require.NoError(t, err)
	require.Len(t, doc.Programmes, 1)
	assert.Equal(t, "News", doc.Programmes[0].Title)
	assert.Equal(t, 1, doc.Stats.Dropped)
	require.Len(t, doc.Channels, 1)
	assert.Equal(t, "5.1", doc.Channels[0].ID)
	assert.Equal(t, "en", doc.Channels[0].Lang)
}

func TestNormalizeLegacyEnrichment(t *testing.T) {
	start := at(18, 0)
	payload := LegacyPayload{
		Lineup: []LineupChannel{{Number: "5.1", Name: "KTVU", Icon: "http://img/ktvu.png"}},
		Slices: []Slice{legacySlice(t, 0, []legacyChannel{{GuideNumber: "5.1", Guide: []legacyProgramme{
			{
				StartTime:     start.Unix(),
				EndTime:       start.Add(time.Hour).Unix(),
				Title:         "Drama\x07",
				EpisodeNumber: "S02E05",
				EpisodeTitle:  "The Return",
				Synopsis:      "[HD,CC] A twist. (S2 Ep5)",
				ImageURL:      "http://img/drama.jpg",
				Filter:        []string{"Drama", "Series"},
				First:         boolPtr(true),
			},
			{
				StartTime:       start.Add(time.Hour).Unix(),
				EndTime:         start.Add(2 * time.Hour).Unix(),
				Title:           "Rerun",
				OriginalAirdate: time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC).Unix(),
			},
			{
				StartTime:       start.Add(2 * time.Hour).Unix(),
				EndTime:         start.Add(3 * time.Hour).Unix(),
				Title:           "Same Day",
				OriginalAirdate: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC).Unix(),
				First:           boolPtr(false),
			},
			{
				StartTime: start.Add(3 * time.Hour).Unix(),
				EndTime:   start.Add(4 * time.Hour).Unix(),
				Title:     "Not First",
				First:     boolPtr(false),
			},
			{
				StartTime: start.Add(4 * time.Hour).Unix(),
				EndTime:   start.Add(5 * time.Hour).Unix(),
				Title:     "Unknown",
			},
		}}})},
	}

	doc, err := Normalize(payload, NormalizeOptions{})
	require.NoError(t, err)
	require.Len(t, doc.Programmes, 5)

	drama := doc.Programmes[0]
	assert.Equal(t, "Drama", drama.Title)
	assert.Equal(t, "The Return", drama.SubTitle)
	assert.Equal(t, "A twist.", drama.Description)
	assert.Equal(t, []string{"Drama", "Series"}, drama.Categories)
	assert.Equal(t, "http://img/drama.jpg", drama.Icon)
	assert.Equal(t, []EpisodeNum{{System: "onscreen", Value: "S02E05"}, {System: "xmltv_ns", Value: "1.4."}}, drama.EpisodeNums)
	assert.True(t, drama.New)
	assert.Nil(t, drama.PreviouslyShown)

	require.NotNil(t, doc.Programmes[1].PreviouslyShown)
	assert.Equal(t, "20190501000000", doc.Programmes[1].PreviouslyShown.Start)

	require.NotNil(t, doc.Programmes[2].PreviouslyShown)
	assert.Empty(t, doc.Programmes[2].PreviouslyShown.Start)

	require.NotNil(t, doc.Programmes[3].PreviouslyShown)
	assert.Empty(t, doc.Programmes[3].PreviouslyShown.Start)

	assert.False(t, doc.Programmes[4].New)
	assert.Nil(t, doc.Programmes[4].PreviouslyShown)
}

func TestNormalizeLegacyOverlappingSlices(t *testing.T) {
	lineup := []LineupChannel{{Number: "5.1", Name: "KTVU"}}
	entries := []legacyProgramme{
		{StartTime: at(18, 0).Unix(), EndTime: at(18, 30).Unix(), Title: "News"},
		{StartTime: at(18, 30).Unix(), EndTime: at(19, 0).Unix(), Title: "Quiz"},
	}
	one := LegacyPayload{Lineup: lineup, Slices: []Slice{legacySlice(t, 0, []legacyChannel{{GuideNumber: "5.1", Guide: entries}})}}
	twice := LegacyPayload{Lineup: lineup, Slices: []Slice{
		legacySlice(t, 0, []legacyChannel{{GuideNumber: "5.1", Guide: entries}}),
		legacySlice(t, 1, []legacyChannel{{GuideNumber: "5.1", Guide: entries[1:]}}),
	}}

	a, err := Normalize(one, NormalizeOptions{})
	require.NoError(t, err)
	b, err := Normalize(twice, NormalizeOptions{})
	require.NoError(t, err)

	assert.Equal(t, a.Programmes, b.Programmes)
	assert.Equal(t, 1, b.Stats.Duplicates)
}

func TestNormalizeLegacyMalformedSlice(t *testing.T) {
	payload := LegacyPayload{
		Lineup: []LineupChannel{{Number: "5.1"}},
		Slices: []Slice{{Seq: 3, Start: at(0, 0), Body: []byte(`{"error":"nope"}`)}},
	}
	_, err := Normalize(payload, NormalizeOptions{})
	require.Error(t, err)
	assert.Equal(t, failure.MalformedResponse, failure.KindOf(err))
	assert.Contains(t, err.Error(), "slice 3")
}

func TestNormalizeLegacyPreviouslyShownUsesLocation(t *testing.T) {
	la := time.FixedZone("PST", -8*60*60)

	// Aired 2025-01-02 02:00 UTC, which is still January 1st in Los Angeles.
	aired := time.Date(2025, 1, 2, 2, 0, 0, 0, time.UTC)
	payload := LegacyPayload{
		Lineup: []LineupChannel{{Number: "5.1"}},
		Slices: []Slice{legacySlice(t, 0, []legacyChannel{{GuideNumber: "5.1", Guide: []legacyProgramme{
			{StartTime: at(18, 0).Unix(), EndTime: at(19, 0).Unix(), Title: "Show", OriginalAirdate: aired.Unix()},
		}}})},
	}

	utc, err := Normalize(payload, NormalizeOptions{Location: time.UTC})
	require.NoError(t, err)
	assert.Nil(t, utc.Programmes[0].PreviouslyShown)

	local, err := Normalize(payload, NormalizeOptions{Location: la})
	require.NoError(t, err)
	require.NotNil(t, local.Programmes[0].PreviouslyShown)
	assert.Equal(t, "20250101180000", local.Programmes[0].PreviouslyShown.Start)
}
