package compliance

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"stockmeta/internal/models"
	"stockmeta/internal/policy"
	"stockmeta/internal/textclean"
)

const (
	titleWarnLength   = 70
	maxTitleCommas    = 3
	maxTitleSemicolon = 1
	nameLikeThreshold = 3
	genericTopWindow  = 10
	maxGenericInTop   = 3
)

var (
	nameLikeWord = regexp.MustCompile(`^[A-Z][a-z]{1,}$`)
	personName   = regexp.MustCompile(`^[A-Z][a-z]+ [A-Z][a-z]+$`)
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Finding struct {
	Rule     string   `json:"rule"`
	Field    string   `json:"field"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Report classifies metadata. It is advisory: nothing in the pipeline rejects a
// row because of it.
type Report struct {
	Warnings []Finding `json:"warnings,omitempty"`
	Errors   []Finding `json:"errors,omitempty"`
}

func (r Report) Blocking() bool { return len(r.Errors) > 0 }

func (r Report) Empty() bool { return len(r.Warnings) == 0 && len(r.Errors) == 0 }

// Validator runs per-platform rule checks. Only Adobe has rules today.
type Validator struct {
	policy *policy.Policy
	// Strict promotes stylistic warnings (comma density, generic density) to errors.
	Strict bool
}

func NewValidator(p *policy.Policy) *Validator {
	if p == nil {
		p = policy.Default()
	}
	return &Validator{policy: p}
}

func (v *Validator) Validate(platform models.Platform, title string, keywords []string) Report {
	var r Report
	if platform != models.PlatformAdobe {
		return r
	}
	v.checkTitle(&r, title)
	v.checkKeywords(&r, keywords)
	return r
}

func (v *Validator) checkTitle(r *Report, title string) {
	title = strings.TrimSpace(title)
	n := len([]rune(title))
	switch {
	case n == 0:
		r.add(SeverityError, "title_empty", "title", "title is empty")
		return
	case n > textclean.HardCap:
		r.add(SeverityError, "title_oversize", "title", fmt.Sprintf("title has %d characters, limit is %d", n, textclean.HardCap))
	case n > titleWarnLength:
		r.add(SeverityWarning, "title_length", "title", fmt.Sprintf("title has %d characters, %d or fewer recommended", n, titleWarnLength))
	}

	if strings.Count(title, ",") > maxTitleCommas || strings.Count(title, ";") > maxTitleSemicolon {
		r.add(v.stylistic(), "title_keyword_dump", "title", "title looks like a keyword list")
	}
	if loc := v.policy.StyleReference(title); loc != nil {
		r.add(SeverityError, "title_style_reference", "title", fmt.Sprintf("style reference %q", title[loc[0]:loc[1]]))
	}
	if brand := v.policy.FindBrand(title); brand != "" {
		r.add(SeverityError, "title_brand", "title", fmt.Sprintf("brand or protected name %q", brand))
	}
	if w := v.bannedIn(title); w != "" {
		r.add(SeverityError, "title_banned_word", "title", fmt.Sprintf("banned word %q", w))
	}

	words := strings.Fields(title)
	capitalized := 0
	for i, w := range words {
		if i == 0 {
			continue
		}
		w = strings.Trim(w, ".,;:!?\"'")
		if nameLikeWord.MatchString(w) && !v.policy.IsStopword(strings.ToLower(w)) {
			capitalized++
		}
	}
	if capitalized >= nameLikeThreshold {
		r.add(SeverityWarning, "title_person_name", "title", "title may contain a person name")
	}
}

func (v *Validator) checkKeywords(r *Report, keywords []string) {
	if len(keywords) == 0 {
		r.add(SeverityError, "keywords_empty", "keywords", "no keywords")
		return
	}

	generic := 0
	nonASCII := 0
	for i, kw := range keywords {
		trimmed := strings.TrimSpace(kw)
		if len(strings.Fields(trimmed)) >= 3 {
			r.add(SeverityWarning, "keyword_combined_phrase", "keywords", fmt.Sprintf("%q should be split into single terms", trimmed))
		}
		if brand := v.policy.FindBrand(trimmed); brand != "" {
			r.add(SeverityError, "keyword_brand", "keywords", fmt.Sprintf("brand or protected name %q", brand))
		}
		if personName.MatchString(trimmed) {
			r.add(SeverityError, "keyword_person_name", "keywords", fmt.Sprintf("%q looks like a person name", trimmed))
		}
		if v.policy.IsBanned(trimmed) {
			r.add(SeverityError, "keyword_banned_word", "keywords", fmt.Sprintf("banned word %q", trimmed))
		}
		if i < genericTopWindow && v.policy.IsGeneric(trimmed) {
			generic++
		}
		if !isASCII(trimmed) {
			nonASCII++
		}
	}
	if generic > maxGenericInTop {
		r.add(v.stylistic(), "keywords_generic_top", "keywords", fmt.Sprintf("%d of the first %d keywords are generic", generic, genericTopWindow))
	}
	if nonASCII > 0 && nonASCII < len(keywords) {
		r.add(SeverityWarning, "keywords_mixed_language", "keywords", "keywords mix scripts or languages")
	}
}

func (v *Validator) bannedIn(title string) string {
	lower := strings.ToLower(title)
	for _, phrase := range v.policy.BannedPhrases() {
		if strings.Contains(lower, phrase) {
			return phrase
		}
	}
	for _, w := range textclean.Words(title) {
		if v.policy.IsBanned(w) {
			return w
		}
	}
	return ""
}

func (v *Validator) stylistic() Severity {
	if v.Strict {
		return SeverityError
	}
	return SeverityWarning
}

func (r *Report) add(sev Severity, rule, field, msg string) {
	f := Finding{Rule: rule, Field: field, Severity: sev, Message: msg}
	if sev == SeverityError {
		r.Errors = append(r.Errors, f)
		return
	}
	r.Warnings = append(r.Warnings, f)
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
