package keywords

import (
	"regexp"
	"strings"

	"stockmeta/internal/policy"
)

const (
	// MinLength is the shortest keyword accepted.
	MinLength = 3
	// AutoCeiling bounds auto mode when no target is given.
	AutoCeiling = 60
	// CombinedPhraseWords is the word count at which a keyword counts as a combined phrase.
	CombinedPhraseWords = 3
)

var (
	latinLetter = regexp.MustCompile(`[a-zA-Z]`)
	innerSpace  = regexp.MustCompile(`\s+`)
	stemSuffix  = []string{"ing", "ers", "es", "s"}
)

// Normalizer dedups, filters and caps keyword candidates. It is deterministic:
// identical inputs always give identical output.
type Normalizer struct {
	policy *policy.Policy
}

func NewNormalizer(p *policy.Policy) *Normalizer {
	if p == nil {
		p = policy.Default()
	}
	return &Normalizer{policy: p}
}

// Normalize accepts candidates in order, then seeds while under target, keeping
// the first keyword seen for each stem. A target <= 0 means auto mode, bounded by
// AutoCeiling. The result is never padded.
func (n *Normalizer) Normalize(candidates []string, target int, seeds []string, extraBlocklist []string) []string {
	limit := target
	if limit <= 0 {
		limit = AutoCeiling
	}

	blocked := make(map[string]struct{}, len(extraBlocklist))
	for _, b := range extraBlocklist {
		b = Clean(b)
		if b != "" {
			blocked[b] = struct{}{}
		}
	}

	out := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)
	accept := func(list []string) {
		for _, raw := range list {
			if len(out) >= limit {
				return
			}
			kw := Clean(raw)
			if !n.valid(kw, blocked) {
				continue
			}
			stem := Stem(kw)
			if _, dup := seen[stem]; dup {
				continue
			}
			seen[stem] = struct{}{}
			out = append(out, kw)
		}
	}
	accept(candidates)
	accept(seeds)
	return out
}

func (n *Normalizer) valid(kw string, blocked map[string]struct{}) bool {
	if len(kw) < MinLength {
		return false
	}
	if _, ok := blocked[kw]; ok {
		return false
	}
	if n.policy.IsBanned(kw) {
		return false
	}
	if !latinLetter.MatchString(kw) {
		return false
	}
	return !n.policy.IsStopword(kw)
}

// Clean lowercases a keyword, collapses spaces and trims surrounding punctuation.
func Clean(kw string) string {
	kw = innerSpace.ReplaceAllString(strings.ToLower(kw), " ")
	for {
		next := strings.TrimSpace(strings.Trim(kw, `.,;:!?"'()[]{}#*`))
		if next == kw {
			return kw
		}
		kw = next
	}
}

// Stem strips one light suffix from every word. It is only used for duplicate
// detection.
func Stem(kw string) string {
	words := strings.Fields(kw)
	for i, w := range words {
		words[i] = stemWord(w)
	}
	return strings.Join(words, " ")
}

func stemWord(w string) string {
	for _, suf := range stemSuffix {
		if strings.HasSuffix(w, suf) && len(w)-len(suf) >= MinLength {
			return w[:len(w)-len(suf)]
		}
	}
	return w
}

// SplitCombined replaces every keyword of three or more words with its individual
// words, in place.
func SplitCombined(list []string) []string {
	out := make([]string, 0, len(list))
	for _, kw := range list {
		words := strings.Fields(kw)
		if len(words) >= CombinedPhraseWords {
			out = append(out, words...)
			continue
		}
		out = append(out, kw)
	}
	return out
}

// Contains reports a case-insensitive exact match.
func Contains(list []string, kw string) bool {
	kw = Clean(kw)
	for _, k := range list {
		if Clean(k) == kw {
			return true
		}
	}
	return false
}
