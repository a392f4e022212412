package textclean

import (
	"math"
	"strings"
	"unicode"
)

const (
	// HardCap is the absolute title ceiling across every platform.
	HardCap = 200

	ellipsis      = "..."
	minSlack      = 17
	slackRatio    = 0.13
	keepRatio     = 0.7
	strictFloor   = 0.65
	cleanupPasses = 4
)

var connectorWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "by": {}, "with": {},
	"for": {}, "in": {}, "on": {}, "at": {}, "to": {}, "from": {}, "into": {}, "over": {},
	"under": {}, "as": {}, "&": {},
}

// Truncate bounds text to baseLimit with the default flexible slack and the 200 hard cap.
func Truncate(text string, baseLimit int) string {
	return TruncateToLimit(text, baseLimit, -1, HardCap)
}

// TruncateToLimit lets text run up to a small slack past baseLimit so a sentence
// can finish, but never past hardCap. A negative slack selects the default of
// max(round(baseLimit*0.13), 17).
func TruncateToLimit(text string, baseLimit, slack, hardCap int) string {
	if hardCap <= 0 {
		hardCap = HardCap
	}
	if baseLimit <= 0 || baseLimit > hardCap {
		baseLimit = hardCap
	}
	r := []rune(text)
	if len(r) <= baseLimit {
		return text
	}
	if slack < 0 {
		slack = int(math.Round(float64(baseLimit) * slackRatio))
		if slack < minSlack {
			slack = minSlack
		}
	}
	flexMax := baseLimit + slack
	if flexMax > hardCap {
		flexMax = hardCap
	}

	if len(r) <= flexMax {
		if cut := sentenceCut(r, baseLimit, flexMax); cut > 0 {
			return strings.TrimSpace(string(r[:cut]))
		}
		if sp := lastSpace(r, baseLimit, flexMax); sp > 0 {
			return strings.TrimSpace(string(r[:sp]))
		}
		return strings.TrimSpace(text)
	}

	if cut := sentenceCut(r, baseLimit, flexMax); cut > 0 {
		return strings.TrimSpace(string(r[:cut]))
	}
	room := flexMax - len(ellipsis)
	if room < 1 {
		return string(r[:flexMax])
	}
	floor := int(float64(baseLimit) * keepRatio)
	if sp := lastSpace(r, floor, room); sp > 0 {
		return strings.TrimRightFunc(string(r[:sp]), isTrailingJunk) + ellipsis
	}
	return strings.TrimSpace(string(r[:room])) + ellipsis
}

// StrictTrimTitleToMax never returns more than max runes. It prefers a sentence
// end, then a word boundary, and then drops dangling punctuation and connector words.
func StrictTrimTitleToMax(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 {
		return ""
	}
	r := []rune(text)
	if len(r) <= max {
		return text
	}

	floor := int(float64(max) * strictFloor)
	var out string
	switch {
	case sentenceCut(r, floor, max) > 0:
		out = string(r[:sentenceCut(r, floor, max)])
	case lastSpace(r, floor, max) > 0:
		out = string(r[:lastSpace(r, floor, max)])
	case lastSpace(r, 1, max) > 0:
		out = string(r[:lastSpace(r, 1, max)])
	default:
		out = string(r[:max])
	}

	cleaned := cleanTrailing(out)
	if cleaned == "" {
		cleaned = strings.TrimSpace(string(r[:max]))
	}
	return cleaned
}

// cleanTrailing strips trailing separators and dangling connector words.
func cleanTrailing(s string) string {
	for pass := 0; pass < cleanupPasses; pass++ {
		before := s
		s = strings.TrimRightFunc(s, isTrailingJunk)
		if idx := strings.LastIndexByte(s, ' '); idx >= 0 {
			last := strings.ToLower(s[idx+1:])
			if _, ok := connectorWords[last]; ok {
				s = s[:idx]
			}
		} else if _, ok := connectorWords[strings.ToLower(s)]; ok {
			s = ""
		}
		if s == before {
			break
		}
	}
	return strings.TrimSpace(s)
}

func isTrailingJunk(r rune) bool {
	switch r {
	case ',', ';', ':', '-', '–', '—', '/', '&', '(', '[':
		return true
	}
	return unicode.IsSpace(r)
}

// sentenceCut returns the length of the longest prefix within [lo, hi] that ends
// on a sentence terminator followed by whitespace or the end of text.
func sentenceCut(r []rune, lo, hi int) int {
	if hi > len(r) {
		hi = len(r)
	}
	if lo < 1 {
		lo = 1
	}
	for n := hi; n >= lo; n-- {
		switch r[n-1] {
		case '.', '!', '?':
			if n == len(r) || unicode.IsSpace(r[n]) {
				return n
			}
		}
	}
	return 0
}

// lastSpace returns the index of the last space within [lo, hi], or 0.
func lastSpace(r []rune, lo, hi int) int {
	if hi >= len(r) {
		hi = len(r) - 1
	}
	if lo < 1 {
		lo = 1
	}
	for i := hi; i >= lo; i-- {
		if unicode.IsSpace(r[i]) {
			return i
		}
	}
	return 0
}
