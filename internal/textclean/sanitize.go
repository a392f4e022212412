package textclean

import (
	"html"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"stockmeta/internal/policy"
)

const maxFilenameTokens = 12

var (
	filenameSplit  = regexp.MustCompile(`[\s._\-]+`)
	wordPattern    = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)?`)
	digitsPattern  = regexp.MustCompile(`\d{3,}`)
	longNumber     = regexp.MustCompile(`\d{10,}`)
	uuidPattern    = regexp.MustCompile(`(?i)[0-9a-f]{8}-?[0-9a-f]{4}-?[0-9a-f]{4}-?[0-9a-f]{4}-?[0-9a-f]{12}`)
	hexToken       = regexp.MustCompile(`(?i)^[0-9a-f]{8,}$`)
	pureNumber     = regexp.MustCompile(`^\d+$`)
	labelPrefix    = regexp.MustCompile(`(?i)^\s*(?:title|description|keywords?)\s*[:：]\s*`)
	spaceRun       = regexp.MustCompile(`\s+`)
	spaceBeforeSep = regexp.MustCompile(`\s+([,.;:!?])`)
)

// markup strips any HTML a model wraps around its answer.
var markup = bluemonday.StrictPolicy()

// Sanitizer holds the vocabulary used by the filename and banned-word helpers.
type Sanitizer struct {
	policy *policy.Policy
}

func New(p *policy.Policy) *Sanitizer {
	if p == nil {
		p = policy.Default()
	}
	return &Sanitizer{policy: p}
}

func (s *Sanitizer) Policy() *policy.Policy {
	return s.policy
}

// Words splits text into lowercased word tokens.
func Words(text string) []string {
	found := wordPattern.FindAllString(strings.ToLower(text), -1)
	return found
}

// FilenameStem is the lowercased base name without its extension.
func FilenameStem(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "." || base == "/" {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// FilenameTokens extracts up to 12 meaningful tokens from a filename.
func (s *Sanitizer) FilenameTokens(filename string) []string {
	stem := FilenameStem(filename)
	if stem == "" {
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range filenameSplit.Split(stem, -1) {
		tok = strings.TrimSpace(tok)
		if tok == "" || pureNumber.MatchString(tok) {
			continue
		}
		if s.policy.IsFilenameJunk(tok) || s.policy.IsBanned(tok) || s.policy.IsStopword(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) == maxFilenameTokens {
			break
		}
	}
	return out
}

// LooksFilenameDerived reports whether a model title echoes the uploaded filename
// rather than describing the picture.
func (s *Sanitizer) LooksFilenameDerived(title, filename string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return false
	}
	stem := FilenameStem(filename)
	if stem != "" && collapse(t) == collapse(stem) {
		return true
	}
	if s.policy.MentionsProvider(t) {
		return true
	}
	if sharesNumber(t, stem) || hasOpaqueID(t) {
		return true
	}

	tokens := s.FilenameTokens(filename)
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		tokenSet[tok] = struct{}{}
		if len(tok) > 3 && t == tok {
			return true
		}
	}
	if len(tokenSet) == 0 {
		return false
	}

	var considered, overlap int
	for _, w := range Words(t) {
		if len(w) < 3 {
			continue
		}
		considered++
		if _, ok := tokenSet[w]; ok {
			overlap++
		}
	}
	if considered > 0 && overlap*2 > considered {
		return true
	}

	if len([]rune(t)) < 20 {
		for tok := range tokenSet {
			if len(tok) > 4 && strings.Contains(t, tok) {
				return true
			}
		}
	}
	return false
}

// KeywordLooksFilenameDerived is the single-keyword form of LooksFilenameDerived.
// Words confirmed by the image-driven title are never treated as filename echoes.
func (s *Sanitizer) KeywordLooksFilenameDerived(keyword, filename string, titleWords map[string]struct{}) bool {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return false
	}
	stem := FilenameStem(filename)
	if stem != "" && collapse(kw) == collapse(stem) {
		return true
	}
	if s.policy.MentionsProvider(kw) || sharesNumber(kw, stem) || hasOpaqueID(kw) {
		return true
	}

	words := Words(kw)
	if len(words) == 0 {
		return false
	}
	tokens := s.FilenameTokens(filename)
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if len(tok) > 3 {
			tokenSet[tok] = struct{}{}
		}
	}
	for _, w := range words {
		if _, ok := tokenSet[w]; !ok {
			return false
		}
		if _, confirmed := titleWords[w]; confirmed {
			return false
		}
	}
	return true
}

// StripBannedWords removes banned vocabulary from a title word by word.
func (s *Sanitizer) StripBannedWords(title string) string {
	out := title
	for _, phrase := range s.policy.BannedPhrases() {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
		out = re.ReplaceAllString(out, " ")
	}
	fields := strings.Fields(out)
	kept := fields[:0]
	for _, f := range fields {
		core := strings.ToLower(strings.Trim(f, `.,;:!?"'()[]`))
		if core != "" && s.policy.IsBanned(core) {
			continue
		}
		kept = append(kept, f)
	}
	return tidy(strings.Join(kept, " "))
}

// NegativeTermPattern builds a case-insensitive whole-word alternation of the
// given user terms. It returns nil when no usable term is supplied.
func NegativeTermPattern(terms []string) *regexp.Regexp {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(t))
	}
	if len(parts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(parts, "|") + `)\b`)
}

// RemoveNegativeTerms drops whole-word matches of terms from title. If nothing
// would remain the title is returned untouched.
func RemoveNegativeTerms(title string, terms []string) string {
	re := NegativeTermPattern(terms)
	if re == nil {
		return title
	}
	out := tidy(re.ReplaceAllString(title, " "))
	if out == "" {
		return title
	}
	return out
}

// NormalizeModelText canonicalises raw model text: NFKC, no markup or code
// fences, no field labels, no wrapping quotes, single spaces.
func NormalizeModelText(text string) string {
	t := norm.NFKC.String(text)
	if strings.ContainsRune(t, '<') {
		t = html.UnescapeString(markup.Sanitize(t))
	}
	t = strings.TrimSpace(t)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```")
		if i := strings.LastIndex(t, "```"); i >= 0 {
			t = t[:i]
		}
	}
	t = labelPrefix.ReplaceAllString(strings.TrimSpace(t), "")
	t = strings.Trim(t, "\"'`“”")
	return tidy(t)
}

// tidy collapses whitespace and removes separators left dangling at either edge.
func tidy(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	s = spaceBeforeSep.ReplaceAllString(s, "$1")
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, ",;:-–— ")
	s = strings.TrimRight(s, ",;:-–— ")
	for strings.Contains(s, ",,") {
		s = strings.ReplaceAll(s, ",,", ",")
	}
	return strings.TrimSpace(s)
}

// Tidy is exported for pipeline stages that edit titles in place.
func Tidy(s string) string {
	return tidy(s)
}

func collapse(s string) string {
	return strings.Join(filenameSplit.Split(strings.ToLower(strings.TrimSpace(s)), -1), " ")
}

func sharesNumber(text, stem string) bool {
	if stem == "" {
		return false
	}
	for _, n := range digitsPattern.FindAllString(text, -1) {
		if strings.Contains(stem, n) {
			return true
		}
	}
	return false
}

func hasOpaqueID(text string) bool {
	if longNumber.MatchString(text) || uuidPattern.MatchString(text) {
		return true
	}
	for _, w := range Words(text) {
		if hexToken.MatchString(w) && strings.ContainsAny(w, "0123456789") && strings.ContainsAny(w, "abcdef") {
			return true
		}
	}
	return false
}
