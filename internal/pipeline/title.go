package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"stockmeta/internal/models"
	"stockmeta/internal/textclean"
	"stockmeta/internal/vision"
)

const maxStyleStrips = 3

var (
	whiteBackground  = regexp.MustCompile(`(?i)\bisolated on (?:a )?white background\b`)
	danglingIsolated = regexp.MustCompile(`(?i)\s*\bisolated\s*$`)

	transparentPhrases = []string{"isolated on transparent background", "transparent background", "isolated"}
	whitePhrases       = []string{"isolated on white background", "white background", "isolated"}
)

func (p *Pipeline) invoke(ctx context.Context, s State) (State, error) {
	out, err := p.caller.Describe(ctx, vision.Request{
		Generation:   s.Request,
		AssetType:    s.AssetType,
		ImageDataURL: s.Image,
		Credential:   s.Credential,
	})
	if err != nil {
		return s, err
	}
	if out.Error != "" {
		return s, fmt.Errorf("model error: %s", out.Error)
	}

	s.Title = textclean.Truncate(textclean.NormalizeModelText(out.Title), textclean.HardCap)
	s.Description = textclean.NormalizeModelText(out.Description)
	s.RawKeywords = out.Keywords

	if s.Title == "" {
		if s.HasImage() {
			return s, ErrEmptyResult
		}
		s.Title = p.filenameTitle(s)
	}
	return s, nil
}

func (p *Pipeline) validate(_ context.Context, s State) (State, error) {
	if s.HasImage() && p.sanitizer.LooksFilenameDerived(s.Title, s.Request.Filename) {
		return s, ErrFilenameDerived
	}
	return s, nil
}

func (p *Pipeline) clean(_ context.Context, s State) (State, error) {
	title := p.sanitizer.StripBannedWords(s.Title)
	if s.Request.Platform == models.PlatformAdobe {
		title = p.stripStyleReferences(title)
	}
	if title == "" {
		if s.HasImage() {
			return s, ErrEmptyResult
		}
		title = p.filenameTitle(s)
	}
	s.Title = title
	s.Description = p.sanitizer.StripBannedWords(s.Description)
	return s, nil
}

// stripStyleReferences cuts "in the style of ..." style tails. A reference at
// the very start is removed on its own.
func (p *Pipeline) stripStyleReferences(title string) string {
	for i := 0; i < maxStyleStrips; i++ {
		loc := p.policy.StyleReference(title)
		if loc == nil {
			break
		}
		if loc[0] > 0 {
			title = title[:loc[0]]
		} else {
			title = title[loc[1]:]
		}
		title = textclean.Tidy(title)
	}
	return title
}

func (p *Pipeline) appendAttributes(_ context.Context, s State) (State, error) {
	req := s.Request
	base := s.Title
	var phrases []string

	switch {
	case req.IsolatedOnTransparentBackground:
		base = p.withoutBackground(base)
		phrases = transparentPhrases
	case req.IsolatedOnWhiteBackground:
		if !whiteBackground.MatchString(base) {
			base = p.withoutBackground(base)
			phrases = whitePhrases
		}
	}

	title, background := base, ""
	if len(phrases) > 0 {
		title, background = fitBackground(base, phrases, req.TitleLen)
	}

	// Cosmetic type words only go in when they fit the budget.
	if (req.IsVector || s.AssetType == models.AssetVector) && !hasWord(title, "vector") {
		title = insertBefore(title, background, "vector", req.TitleLen)
	}
	if (req.IsIllustration || s.AssetType == models.AssetIllustration) && !hasWord(title, "illustration") {
		title = insertBefore(title, background, "illustration", req.TitleLen)
	}
	s.Title = title
	return s, nil
}

func (p *Pipeline) withoutBackground(title string) string {
	out := textclean.Tidy(p.policy.RemoveBackground(title))
	return textclean.Tidy(danglingIsolated.ReplaceAllString(out, ""))
}

// fitBackground appends the longest background phrase that leaves at least half
// of the budget for the subject, trimming the subject when needed.
func fitBackground(base string, phrases []string, budget int) (title, phrase string) {
	for i, ph := range phrases {
		room := budget - runeLen(ph) - 1
		last := i == len(phrases)-1
		if room < budget/2 && !last {
			continue
		}
		if base == "" {
			return ph, ph
		}
		if room <= 0 {
			return textclean.StrictTrimTitleToMax(ph, budget), ph
		}
		trimmed := base
		if runeLen(trimmed) > room {
			trimmed = textclean.StrictTrimTitleToMax(trimmed, room)
		}
		return trimmed + " " + ph, ph
	}
	return base, ""
}

// insertBefore places word in front of the trailing background phrase, or at
// the end, if the result stays within budget.
func insertBefore(title, background, word string, budget int) string {
	var candidate string
	if background != "" && strings.HasSuffix(title, background) {
		head := strings.TrimSpace(strings.TrimSuffix(title, background))
		candidate = strings.TrimSpace(head + " " + word + " " + background)
	} else {
		candidate = strings.TrimSpace(title + " " + word)
	}
	if runeLen(candidate) > budget {
		return title
	}
	return candidate
}

func (p *Pipeline) applyOverrides(_ context.Context, s State) (State, error) {
	title := s.Title
	if prefix := s.Request.Prefix; prefix != "" && !strings.HasPrefix(strings.ToLower(title), strings.ToLower(prefix)) {
		title = prefix + " " + title
	}
	if suffix := s.Request.Suffix; suffix != "" && !strings.HasSuffix(strings.ToLower(title), strings.ToLower(suffix)) {
		title = title + " " + suffix
	}
	s.Title = textclean.Tidy(title)
	return s, nil
}

func (p *Pipeline) enforceLength(_ context.Context, s State) (State, error) {
	if runeLen(s.Title) > s.Request.TitleLen {
		s.Title = textclean.StrictTrimTitleToMax(s.Title, s.Request.TitleLen)
	}
	return s, nil
}

// filterNegativeTitle removes the user's negative title terms. A title made only
// of negative terms is left as it was.
func (p *Pipeline) filterNegativeTitle(_ context.Context, s State) (State, error) {
	re := textclean.NegativeTermPattern(s.Request.NegativeTitle)
	if re == nil || !re.MatchString(s.Title) {
		return s, nil
	}
	if out := textclean.Tidy(re.ReplaceAllString(s.Title, " ")); out != "" {
		s.Title = textclean.StrictTrimTitleToMax(out, s.Request.TitleLen)
	}
	return s, nil
}

// filenameTitle is the fallback title built from filename tokens.
func (p *Pipeline) filenameTitle(s State) string {
	tokens := p.sanitizer.FilenameTokens(s.Request.Filename)
	if len(tokens) == 0 {
		return assetLabel(s.AssetType)
	}
	r := []rune(strings.Join(tokens, " "))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func assetLabel(t models.AssetType) string {
	switch t {
	case models.AssetVideo:
		return "Stock video footage"
	case models.AssetVector:
		return "Vector graphic"
	case models.AssetIllustration:
		return "Digital illustration"
	case models.Asset3D:
		return "3D render"
	case models.AssetIcon:
		return "Icon design"
	default:
		return "Stock photo"
	}
}

func hasWord(text, word string) bool {
	for _, w := range textclean.Words(text) {
		if w == word {
			return true
		}
	}
	return false
}

func runeLen(s string) int {
	return len([]rune(s))
}
