package vision

import (
	"encoding/json"
	"fmt"
	"strings"

	"stockmeta/internal/models"
)

// BuildPrompt renders the instruction text sent alongside the image.
func BuildPrompt(req Request) string {
	g := req.Generation
	var b strings.Builder

	fmt.Fprintf(&b, "You write metadata for a %s submitted to %s.\n", assetNoun(req.AssetType), g.Platform.Label())
	if req.HasImage() {
		b.WriteString("Describe only what is visible in the attached media. Do not reuse the file name.\n")
	} else {
		fmt.Fprintf(&b, "No preview is available. The file is named %q.\n", g.Filename)
	}

	fmt.Fprintf(&b, "Title: a natural descriptive sentence of at most %d characters, no trailing period.\n", g.TitleLen)
	fmt.Fprintf(&b, "Description: at most %d characters.\n", g.DescriptionLen)
	if g.Fixed() {
		fmt.Fprintf(&b, "Keywords: exactly %d single-word or two-word keywords, most important first.\n", g.KeywordCount)
	} else {
		fmt.Fprintf(&b, "Keywords: up to %d relevant keywords, most important first. Do not pad the list.\n", g.TargetKeywordCount())
	}

	switch {
	case g.IsolatedOnTransparentBackground:
		b.WriteString("The subject is isolated on a transparent background; mention it and no background color.\n")
	case g.IsolatedOnWhiteBackground:
		b.WriteString("The subject is isolated on a white background; say so in the title.\n")
	}
	if g.IsVector || req.AssetType == models.AssetVector {
		b.WriteString("This is a vector graphic.\n")
	}
	if g.IsIllustration || req.AssetType == models.AssetIllustration {
		b.WriteString("This is an illustration.\n")
	}

	if g.Platform == models.PlatformAdobe {
		b.WriteString("Never name brands, trademarks, real people, artists or other works. ")
		b.WriteString("Never write phrases like \"in the style of\" or \"inspired by\". ")
		b.WriteString("Keywords must be atomic terms, not phrases of three or more words.\n")
	}
	if len(g.NegativeTitle) > 0 {
		fmt.Fprintf(&b, "Never use these words in the title: %s.\n", strings.Join(g.NegativeTitle, ", "))
	}
	if len(g.NegativeKeywords) > 0 {
		fmt.Fprintf(&b, "Never use these keywords: %s.\n", strings.Join(g.NegativeKeywords, ", "))
	}
	b.WriteString("Never mention AI, generators or model names.\n")
	b.WriteString(`Answer with JSON only: {"title": "...", "description": "...", "keywords": ["..."]}`)
	return b.String()
}

func assetNoun(t models.AssetType) string {
	switch t {
	case models.AssetVideo:
		return "stock video"
	case models.AssetVector:
		return "vector graphic"
	case models.AssetIllustration:
		return "illustration"
	case models.Asset3D:
		return "3D render"
	case models.AssetIcon:
		return "icon"
	default:
		return "stock photo"
	}
}

type outputPayload struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Keywords    json.RawMessage `json:"keywords"`
}

// ParseOutput decodes the model's JSON answer. Fenced or prefixed JSON is
// tolerated, and keywords may be an array or a comma-separated string.
func ParseOutput(text string) (models.RawModelOutput, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.RawModelOutput{}, nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return models.RawModelOutput{}, fmt.Errorf("decode model output: no json object in %q", clip(text, 120))
	}

	var p outputPayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &p); err != nil {
		return models.RawModelOutput{}, fmt.Errorf("decode model output: %w", err)
	}

	out := models.RawModelOutput{Title: p.Title, Description: p.Description}
	if len(p.Keywords) > 0 {
		var list []string
		if err := json.Unmarshal(p.Keywords, &list); err == nil {
			out.Keywords = list
		} else {
			var joined string
			if err := json.Unmarshal(p.Keywords, &joined); err != nil {
				return models.RawModelOutput{}, fmt.Errorf("decode model keywords: %w", err)
			}
			for _, kw := range strings.Split(joined, ",") {
				if kw = strings.TrimSpace(kw); kw != "" {
					out.Keywords = append(out.Keywords, kw)
				}
			}
		}
	}
	return out, nil
}

// ParseDataURL splits data:<mime>;base64,<payload>.
func ParseDataURL(s string) (mime, payload string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return "", "", ErrBadImageData
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok || data == "" {
		return "", "", ErrBadImageData
	}
	mime, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" || mime == "" {
		return "", "", ErrBadImageData
	}
	return mime, data, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
