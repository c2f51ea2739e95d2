package match

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reAudioTag    = regexp.MustCompile(`(?i)\s*[-–(]?\s*(Dublado|Legendado|Dub|Leg)\s*[)]?$`)
	reTrailDash   = regexp.MustCompile(`\s*[-–]\s*$`)
	reSeasonMark  = regexp.MustCompile(`(.*?)\s*(?:season|temporada|s)\s*(\d+)`)
	reTrailNumber = regexp.MustCompile(`(.*?)\s+(\d+)$`)
)

// yearGuard keeps titles ending in a release year ("Show 1999") out of the
// season index.
const yearGuard = 1900

// Parsed is a title decomposed into its canonical series name and the
// season/part index within that series.
type Parsed struct {
	Base string
	Seq  int
	Orig string
}

// CleanTitle strips the trailing audio/subtitle marker and any dangling dash.
// Case is preserved.
func CleanTitle(s string) string {
	if s == "" {
		return ""
	}
	s = reAudioTag.ReplaceAllString(s, "")
	s = reTrailDash.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Parse lower-cases the cleaned title and splits off a trailing season marker
// or bare season number. The result is the join key shared by the catalog
// groups and the visual cache, so the rules must not drift.
func Parse(raw string) Parsed {
	c := strings.ToLower(CleanTitle(raw))

	if m := reSeasonMark.FindStringSubmatch(c); m != nil {
		if n, ok := seqNumber(m[2]); ok {
			return Parsed{Base: strings.TrimSpace(m[1]), Seq: n, Orig: raw}
		}
	}
	if m := reTrailNumber.FindStringSubmatch(c); m != nil {
		if n, ok := seqNumber(m[2]); ok && n < yearGuard {
			return Parsed{Base: strings.TrimSpace(m[1]), Seq: n, Orig: raw}
		}
	}
	return Parsed{Base: c, Seq: 1, Orig: raw}
}

// seqNumber parses a run of digits. Values too large for an int clamp to
// math.MaxInt.
func seqNumber(digits string) (int, bool) {
	n, err := strconv.Atoi(digits)
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt, true
	}
	return n, err == nil
}

// IsMovie reports whether a title looks like a movie or OVA rather than a series.
func IsMovie(title string) bool {
	if title == "" {
		return false
	}
	t := strings.ToLower(title)
	return strings.Contains(t, "movie") || strings.Contains(t, "filme") || strings.Contains(t, "ova")
}
