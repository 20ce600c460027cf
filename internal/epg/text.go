// SPDX-License-Identifier: MIT
package epg

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	unorm "golang.org/x/text/unicode/norm"
)

var (
	featureTags    = regexp.MustCompile(`\[[A-Z,]+\]`)
	episodeMarkers = regexp.MustCompile(`\(?[SE]?\d+\s?Ep\s?\d+[\d/]*\)?`)
	episodeNumber  = regexp.MustCompile(`^S(\d+)E(\d+)$`)
	spaces         = regexp.MustCompile(`[ \t]{2,}`)
)

// cleanText normalizes to NFC and strips control characters other than
// tab, newline and carriage return.
func cleanText(s string) string {
	s = unorm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		if r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// cleanDescription additionally removes feature tags such as [HD] or [CC]
// and episode markers that repeat the episode-num element.
func cleanDescription(s string) string {
	s = cleanText(s)
	s = featureTags.ReplaceAllString(s, "")
	s = episodeMarkers.ReplaceAllString(s, "")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// episodeNums returns the onscreen number and, when it has the SxxEyy
// shape, the zero-based xmltv_ns form.
func episodeNums(onscreen string) []EpisodeNum {
	onscreen = strings.TrimSpace(onscreen)
	if onscreen == "" {
		return nil
	}
	out := []EpisodeNum{{System: "onscreen", Value: onscreen}}
	m := episodeNumber.FindStringSubmatch(strings.ToUpper(onscreen))
	if m == nil {
		return out
	}
	season, err1 := strconv.Atoi(m[1])
	episode, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || season < 1 || episode < 1 {
		return out
	}
	return append(out, EpisodeNum{System: "xmltv_ns", Value: fmt.Sprintf("%d.%d.", season-1, episode-1)})
}
