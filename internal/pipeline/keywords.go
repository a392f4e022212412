package pipeline

import (
	"context"

	"stockmeta/internal/keywords"
	"stockmeta/internal/models"
	"stockmeta/internal/textclean"
)

const titleWordWindow = 10

func (p *Pipeline) seedKeywords(_ context.Context, s State) (State, error) {
	s.TitleSeeds = p.titleWords(s.Title)
	s.FilenameSeeds = p.sanitizer.FilenameTokens(s.Request.Filename)
	return s, nil
}

// titleWords are the meaningful lowercased title words in order of appearance.
func (p *Pipeline) titleWords(title string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, w := range textclean.Words(title) {
		if len(w) < keywords.MinLength || p.policy.IsBanned(w) || p.policy.IsStopword(w) {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func (p *Pipeline) mergeKeywords(_ context.Context, s State) (State, error) {
	raw := make([]string, 0, len(s.RawKeywords))
	for _, kw := range s.RawKeywords {
		if kw = textclean.NormalizeModelText(kw); kw != "" {
			raw = append(raw, kw)
		}
	}
	if s.Request.Platform == models.PlatformAdobe {
		raw = keywords.SplitCombined(raw)
	}
	seeds := append(append([]string(nil), s.TitleSeeds...), s.FilenameSeeds...)
	s.Keywords = p.normalizer.Normalize(raw, s.Request.TargetKeywordCount(), seeds, s.Request.NegativeKeywords)
	return s, nil
}

func (p *Pipeline) enrichKeywords(_ context.Context, s State) (State, error) {
	if len(s.Keywords) == 0 {
		return s, nil
	}
	s.Keywords = p.enricher.Enrich(s.Keywords, s.Title, s.Request.Platform, s.Request.TargetKeywordCount(), s.Request.NegativeKeywords)
	return s, nil
}

func (p *Pipeline) filterKeywords(_ context.Context, s State) (State, error) {
	req := s.Request
	target := req.TargetKeywordCount()
	list := s.Keywords

	if req.Platform == models.PlatformAdobe {
		list = p.normalizer.Normalize(keywords.SplitCombined(list), target, nil, req.NegativeKeywords)
	}

	if s.HasImage() {
		confirmed := make(map[string]struct{}, len(s.TitleSeeds))
		for _, w := range s.TitleSeeds {
			confirmed[w] = struct{}{}
		}
		kept := list[:0:0]
		for _, kw := range list {
			if !p.sanitizer.KeywordLooksFilenameDerived(kw, req.Filename, confirmed) {
				kept = append(kept, kw)
			}
		}
		if len(kept) < len(list) && len(kept) < target {
			kept = p.normalizer.Normalize(kept, target, s.TitleSeeds, req.NegativeKeywords)
		}
		list = kept
	}

	list = withoutNegatives(list, req.NegativeKeywords)
	list = p.ensureTitleWords(list, s, target)
	s.Keywords = list
	return s, nil
}

// ensureTitleWords makes every meaningful title word a keyword: inside the top
// ten for Adobe, at the front elsewhere. The list never grows past target.
func (p *Pipeline) ensureTitleWords(list []string, s State, target int) []string {
	stems := make(map[string]struct{}, len(list))
	for _, kw := range list {
		stems[keywords.Stem(kw)] = struct{}{}
	}
	var missing []string
	for _, w := range s.TitleSeeds {
		if keywords.Contains(s.Request.NegativeKeywords, w) {
			continue
		}
		stem := keywords.Stem(w)
		if _, ok := stems[stem]; ok {
			continue
		}
		stems[stem] = struct{}{}
		missing = append(missing, w)
		if len(missing) == titleWordWindow {
			break
		}
	}
	if len(missing) == 0 {
		return list
	}

	if target > 0 && len(missing) > target {
		missing = missing[:target]
	}
	pos := 0
	if s.Request.Platform == models.PlatformAdobe {
		pos = min(len(list), titleWordWindow-len(missing))
		if target > 0 && pos+len(missing) > target {
			pos = target - len(missing)
		}
	}
	out := make([]string, 0, len(list)+len(missing))
	out = append(out, list[:pos]...)
	out = append(out, missing...)
	out = append(out, list[pos:]...)
	if target > 0 && len(out) > target {
		out = out[:target]
	}
	return out
}

func (p *Pipeline) finalize(_ context.Context, s State) (State, error) {
	req := s.Request
	list := withoutNegatives(s.Keywords, req.NegativeKeywords)

	if req.Fixed() {
		target := req.KeywordCount
		if len(list) < target {
			list = p.normalizer.Normalize(list, target, p.padding(s), req.NegativeKeywords)
		}
		if len(list) > target {
			list = list[:target]
		}
		if len(list) != target {
			p.log.Warn().Str("filename", req.Filename).Int("want", target).Int("got", len(list)).Msg("keyword count short after padding")
		}
	}
	s.Keywords = list

	desc := s.Description
	if desc == "" {
		desc = s.Title
	}
	s.Description = textclean.StrictTrimTitleToMax(desc, req.DescriptionLen)

	report := p.validator.Validate(req.Platform, s.Title, s.Keywords)
	if !report.Empty() {
		ev := p.log.Debug()
		if report.Blocking() {
			ev = p.log.Warn()
		}
		ev.Str("filename", req.Filename).
			Interface("errors", report.Errors).
			Interface("warnings", report.Warnings).
			Msg("compliance findings")
	}
	return s, nil
}

// padding is the fixed-mode backfill ladder: title words, filename tokens when
// no image vouches against them, then the policy filler terms.
func (p *Pipeline) padding(s State) []string {
	out := append([]string(nil), s.TitleSeeds...)
	if !s.HasImage() {
		out = append(out, s.FilenameSeeds...)
	}
	return append(out, p.policy.FillerTerms()...)
}

func withoutNegatives(list, negatives []string) []string {
	if len(negatives) == 0 {
		return list
	}
	out := make([]string, 0, len(list))
	for _, kw := range list {
		if keywords.Contains(negatives, kw) {
			continue
		}
		out = append(out, kw)
	}
	return out
}
