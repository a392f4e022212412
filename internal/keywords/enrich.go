package keywords

import (
	"strings"

	"stockmeta/internal/models"
	"stockmeta/internal/policy"
	"stockmeta/internal/textclean"
)

const (
	maxLongTail       = 15
	maxLongTailLength = 40
	longTailAfter     = 10
	longTailBefore    = 25
)

// Stage expands a keyword list. Stages never remove entries.
type Stage func(list []string, title string, platform models.Platform, target int) []string

// Enricher runs the enrichment stages in a fixed order and re-normalizes the result.
type Enricher struct {
	policy     *policy.Policy
	normalizer *Normalizer
	stages     []Stage
}

func NewEnricher(p *policy.Policy, n *Normalizer) *Enricher {
	if p == nil {
		p = policy.Default()
	}
	if n == nil {
		n = NewNormalizer(p)
	}
	e := &Enricher{policy: p, normalizer: n}
	e.stages = []Stage{e.synonyms, e.scientificNames, e.technicalTerms, e.longTail}
	return e
}

// Enrich applies synonyms, scientific names, technical terms and long-tail
// phrases, then re-normalizes against target so no duplicates come back.
func (e *Enricher) Enrich(list []string, title string, platform models.Platform, target int, blocklist []string) []string {
	if len(list) == 0 {
		return list
	}
	out := append([]string(nil), list...)
	for _, stage := range e.stages {
		out = stage(out, title, platform, target)
	}
	return e.normalizer.Normalize(out, target, nil, blocklist)
}

func (e *Enricher) synonyms(list []string, _ string, _ models.Platform, _ int) []string {
	out := list
	for _, kw := range list {
		for _, syn := range e.policy.Synonyms(kw) {
			if !Contains(out, syn) {
				out = append(out, syn)
			}
		}
	}
	return out
}

func (e *Enricher) scientificNames(list []string, title string, _ models.Platform, _ int) []string {
	haystack := title + " " + strings.Join(list, " ")
	common, sci := e.policy.ScientificName(haystack)
	if sci == "" || Contains(list, sci) {
		return list
	}
	// Place it right after the common name when the list has it.
	for i, kw := range list {
		if Clean(kw) == common {
			return insertAt(list, i+1, sci)
		}
	}
	return append(list, sci)
}

func (e *Enricher) technicalTerms(list []string, title string, _ models.Platform, _ int) []string {
	out := list
	for _, w := range textclean.Words(title) {
		for _, term := range e.policy.TechnicalTerms(w) {
			if !Contains(out, term) {
				out = append(out, term)
			}
		}
	}
	return out
}

func (e *Enricher) longTail(list []string, title string, platform models.Platform, target int) []string {
	limit := target
	if limit <= 0 {
		limit = AutoCeiling
	}
	slots := limit - len(list)
	if slots <= 0 {
		return list
	}
	if slots > maxLongTail {
		slots = maxLongTail
	}
	subject := e.subject(list, title)
	if subject == "" {
		return list
	}

	var phrases []string
	for _, tpl := range e.policy.LongTailTemplates() {
		phrase := strings.TrimSpace(strings.ReplaceAll(tpl, "{subject}", subject))
		if len(phrase) > maxLongTailLength || Contains(list, phrase) || Contains(phrases, phrase) {
			continue
		}
		// Adobe treats three-word keywords as combined phrases.
		if platform == models.PlatformAdobe && len(strings.Fields(phrase)) >= CombinedPhraseWords {
			continue
		}
		phrases = append(phrases, phrase)
		if len(phrases) == slots {
			break
		}
	}
	if len(phrases) == 0 {
		return list
	}

	pos := longTailAfter
	if pos > len(list) {
		pos = len(list)
	}
	if pos > longTailBefore {
		pos = longTailBefore
	}
	return insertAt(list, pos, phrases...)
}

// subject is the first keyword that is a meaningful single concept, falling back
// to the first meaningful title word.
func (e *Enricher) subject(list []string, title string) string {
	for _, kw := range list {
		kw = Clean(kw)
		if kw == "" || e.policy.IsGeneric(kw) || e.policy.IsStopword(kw) {
			continue
		}
		if len(strings.Fields(kw)) == 1 && len(kw) >= MinLength {
			return kw
		}
	}
	for _, w := range textclean.Words(title) {
		if len(w) >= MinLength && !e.policy.IsStopword(w) && !e.policy.IsGeneric(w) && !e.policy.IsBanned(w) {
			return w
		}
	}
	return ""
}

func insertAt(list []string, pos int, items ...string) []string {
	out := make([]string, 0, len(list)+len(items))
	out = append(out, list[:pos]...)
	out = append(out, items...)
	out = append(out, list[pos:]...)
	return out
}
