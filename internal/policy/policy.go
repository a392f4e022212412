package policy

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultTables []byte

// Tables is the on-disk shape of the policy document.
type Tables struct {
	BannedWords       []string            `yaml:"bannedWords"`
	ProviderNames     []string            `yaml:"providerNames"`
	FilenameJunk      []string            `yaml:"filenameJunk"`
	Stopwords         []string            `yaml:"stopwords"`
	Brands            []string            `yaml:"brands"`
	StyleReferences   []string            `yaml:"styleReferences"`
	GenericTerms      []string            `yaml:"genericTerms"`
	Synonyms          map[string][]string `yaml:"synonyms"`
	ScientificNames   map[string]string   `yaml:"scientificNames"`
	TechnicalTerms    map[string][]string `yaml:"technicalTerms"`
	LongTailTemplates []string            `yaml:"longTailTemplates"`
	FillerTerms       []string            `yaml:"fillerTerms"`
	BackgroundColors  []string            `yaml:"backgroundColors"`
}

// Policy is the compiled, read-only form of Tables.
type Policy struct {
	banned       map[string]struct{}
	bannedMulti  []string
	junk         map[string]struct{}
	stopwords    map[string]struct{}
	generic      map[string]struct{}
	brandPattern *regexp.Regexp
	providers    *regexp.Regexp
	stylePattern *regexp.Regexp

	synonyms        map[string][]string
	scientific      map[string]string
	scientificOrder []string
	technical       map[string][]string
	longTail        []string
	filler          []string

	backgroundPattern *regexp.Regexp
}

var (
	defaultOnce   sync.Once
	defaultPolicy *Policy
)

// Default returns the embedded policy. It panics if the embedded document is invalid.
func Default() *Policy {
	defaultOnce.Do(func() {
		p, err := Parse(defaultTables)
		if err != nil {
			panic(fmt.Sprintf("policy: embedded tables: %v", err))
		}
		defaultPolicy = p
	})
	return defaultPolicy
}

// LoadFile reads an override document. An empty path yields the default policy.
func LoadFile(path string) (*Policy, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Policy, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return Compile(t)
}

func Compile(t Tables) (*Policy, error) {
	p := &Policy{
		banned:     make(map[string]struct{}),
		junk:       toSet(t.FilenameJunk),
		stopwords:  toSet(t.Stopwords),
		generic:    toSet(t.GenericTerms),
		synonyms:   make(map[string][]string, len(t.Synonyms)),
		scientific: make(map[string]string, len(t.ScientificNames)),
		technical:  make(map[string][]string, len(t.TechnicalTerms)),
		longTail:   append([]string(nil), t.LongTailTemplates...),
		filler:     lowerAll(t.FillerTerms),
	}

	for _, w := range t.BannedWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		p.banned[w] = struct{}{}
		if strings.Contains(w, " ") {
			p.bannedMulti = append(p.bannedMulti, w)
		}
	}

	if len(t.ProviderNames) > 0 {
		re, err := alternation(t.ProviderNames, true)
		if err != nil {
			return nil, fmt.Errorf("compile provider names: %w", err)
		}
		p.providers = re
	}
	if len(t.Brands) > 0 {
		re, err := alternation(t.Brands, true)
		if err != nil {
			return nil, fmt.Errorf("compile brands: %w", err)
		}
		p.brandPattern = re
	}
	if len(t.StyleReferences) > 0 {
		re, err := alternation(t.StyleReferences, false)
		if err != nil {
			return nil, fmt.Errorf("compile style references: %w", err)
		}
		p.stylePattern = re
	}

	if len(t.BackgroundColors) > 0 {
		re, err := backgroundPhrase(t.BackgroundColors)
		if err != nil {
			return nil, fmt.Errorf("compile background colors: %w", err)
		}
		p.backgroundPattern = re
	}

	for k, v := range t.Synonyms {
		p.synonyms[strings.ToLower(strings.TrimSpace(k))] = lowerAll(v)
	}
	for k, v := range t.ScientificNames {
		k = strings.ToLower(strings.TrimSpace(k))
		p.scientific[k] = strings.ToLower(strings.TrimSpace(v))
		p.scientificOrder = append(p.scientificOrder, k)
	}
	// Longer common names first so "red fox" wins over "fox".
	sort.Slice(p.scientificOrder, func(i, j int) bool {
		a, b := p.scientificOrder[i], p.scientificOrder[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	for k, v := range t.TechnicalTerms {
		p.technical[strings.ToLower(strings.TrimSpace(k))] = lowerAll(v)
	}
	return p, nil
}

// IsBanned reports whether a single lowercased token or phrase is banned vocabulary.
func (p *Policy) IsBanned(word string) bool {
	_, ok := p.banned[strings.ToLower(strings.TrimSpace(word))]
	return ok
}

// BannedWords lists the banned vocabulary, multi-word phrases included.
func (p *Policy) BannedWords() []string {
	out := make([]string, 0, len(p.banned))
	for w := range p.banned {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// BannedPhrases are the multi-word banned entries, matched as substrings.
func (p *Policy) BannedPhrases() []string {
	return p.bannedMulti
}

func (p *Policy) IsStopword(word string) bool {
	_, ok := p.stopwords[strings.ToLower(word)]
	return ok
}

func (p *Policy) IsFilenameJunk(word string) bool {
	_, ok := p.junk[strings.ToLower(word)]
	return ok
}

func (p *Policy) IsGeneric(word string) bool {
	_, ok := p.generic[strings.ToLower(strings.TrimSpace(word))]
	return ok
}

// MentionsProvider reports whether text names an image generator or AI provider.
func (p *Policy) MentionsProvider(text string) bool {
	return p.providers != nil && p.providers.MatchString(text)
}

// FindBrand returns the first brand mentioned in text, or "".
func (p *Policy) FindBrand(text string) string {
	if p.brandPattern == nil {
		return ""
	}
	return strings.ToLower(p.brandPattern.FindString(text))
}

// StyleReference returns the location of the first style-reference phrase, or nil.
func (p *Policy) StyleReference(text string) []int {
	if p.stylePattern == nil {
		return nil
	}
	return p.stylePattern.FindStringIndex(text)
}

func (p *Policy) Synonyms(word string) []string {
	return p.synonyms[strings.ToLower(word)]
}

// ScientificName finds the most specific recognized organism in text.
func (p *Policy) ScientificName(text string) (common, scientific string) {
	lower := " " + strings.ToLower(text) + " "
	for _, name := range p.scientificOrder {
		if strings.Contains(lower, " "+name+" ") {
			return name, p.scientific[name]
		}
	}
	return "", ""
}

func (p *Policy) TechnicalTerms(trigger string) []string {
	return p.technical[strings.ToLower(trigger)]
}

func (p *Policy) LongTailTemplates() []string {
	return p.longTail
}

// FillerTerms backfill fixed keyword counts when nothing better is left.
func (p *Policy) FillerTerms() []string {
	return p.filler
}

// RemoveBackground drops stated background phrases such as "on green background"
// or "isolated on a light blue backdrop".
func (p *Policy) RemoveBackground(text string) string {
	if p.backgroundPattern == nil {
		return text
	}
	return p.backgroundPattern.ReplaceAllString(text, " ")
}

func toSet(words []string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out[w] = struct{}{}
		}
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// alternation builds one case-insensitive word-bounded pattern. Literal entries
// are quoted; pattern entries are used as written.
func alternation(entries []string, literal bool) (*regexp.Regexp, error) {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if literal {
			e = regexp.QuoteMeta(e)
		}
		parts = append(parts, e)
	}
	// Longest alternatives first so multi-word names are preferred.
	sort.SliceStable(parts, func(i, j int) bool { return len(parts[i]) > len(parts[j]) })
	return regexp.Compile(`(?i)\b(?:` + strings.Join(parts, "|") + `)\b`)
}

func backgroundPhrase(colors []string) (*regexp.Regexp, error) {
	quoted := make([]string, 0, len(colors))
	for _, c := range lowerAll(colors) {
		quoted = append(quoted, regexp.QuoteMeta(c))
	}
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	color := `(?:` + strings.Join(quoted, "|") + `)`
	shades := `(?:(?:light|dark|pale|bright|deep|soft|solid|plain|pastel|` + color + `)[\s-]+)*`
	return regexp.Compile(`(?i)(?:\bisolated\s+)?(?:\b(?:on|against|over|with)\s+(?:an?\s+|the\s+)?)?\b` + shades + color + `[\s-]+(?:background|backdrop)\b`)
}
