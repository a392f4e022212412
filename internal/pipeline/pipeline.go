package pipeline

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/rs/zerolog"

	"stockmeta/internal/compliance"
	"stockmeta/internal/keywords"
	"stockmeta/internal/models"
	"stockmeta/internal/policy"
	"stockmeta/internal/textclean"
	"stockmeta/internal/vision"
)

type Stage string

const (
	StageInvoking               Stage = "invoking"
	StageValidating             Stage = "validating"
	StageCleaning               Stage = "cleaning"
	StageAttributeAppending     Stage = "attribute_appending"
	StageUserOverrideApplying   Stage = "user_override_applying"
	StageLengthEnforcing        Stage = "length_enforcing"
	StageNegativeTitleFiltering Stage = "negative_title_filtering"
	StageKeywordSeeding         Stage = "keyword_seeding"
	StageKeywordMerging         Stage = "keyword_merging"
	StageKeywordEnriching       Stage = "keyword_enriching"
	StageKeywordFiltering       Stage = "keyword_filtering"
	StageFinalizing             Stage = "finalizing"
)

var (
	ErrEmptyResult     = errors.New("model returned no title for the supplied image")
	ErrFilenameDerived = errors.New("model title repeats the filename instead of describing the image")
)

// State is the value threaded through the stages. Each stage receives the
// previous stage's output and returns a new State.
type State struct {
	Request    models.GenerationRequest
	AssetType  models.AssetType
	Image      string
	Credential string

	Title         string
	Description   string
	RawKeywords   []string
	Keywords      []string
	TitleSeeds    []string
	FilenameSeeds []string

	Stage Stage
}

func (s State) HasImage() bool {
	return strings.TrimSpace(s.Image) != ""
}

type step struct {
	stage Stage
	run   func(ctx context.Context, s State) (State, error)
}

// Pipeline turns untrusted model output into a platform-ready Row.
type Pipeline struct {
	caller     vision.Caller
	policy     *policy.Policy
	sanitizer  *textclean.Sanitizer
	normalizer *keywords.Normalizer
	enricher   *keywords.Enricher
	validator  *compliance.Validator
	log        zerolog.Logger
	steps      []step
}

func New(caller vision.Caller, p *policy.Policy, validator *compliance.Validator, logger zerolog.Logger) *Pipeline {
	if p == nil {
		p = policy.Default()
	}
	if validator == nil {
		validator = compliance.NewValidator(p)
	}
	n := keywords.NewNormalizer(p)
	pl := &Pipeline{
		caller:     caller,
		policy:     p,
		sanitizer:  textclean.New(p),
		normalizer: n,
		enricher:   keywords.NewEnricher(p, n),
		validator:  validator,
		log:        logger,
	}
	pl.steps = []step{
		{StageInvoking, pl.invoke},
		{StageValidating, pl.validate},
		{StageCleaning, pl.clean},
		{StageAttributeAppending, pl.appendAttributes},
		{StageUserOverrideApplying, pl.applyOverrides},
		{StageLengthEnforcing, pl.enforceLength},
		{StageNegativeTitleFiltering, pl.filterNegativeTitle},
		{StageKeywordSeeding, pl.seedKeywords},
		{StageKeywordMerging, pl.mergeKeywords},
		{StageKeywordEnriching, pl.enrichKeywords},
		{StageKeywordFiltering, pl.filterKeywords},
		{StageFinalizing, pl.finalize},
	}
	return pl
}

// WithCaller returns a copy of the pipeline that uses c for model calls.
func (p *Pipeline) WithCaller(c vision.Caller) *Pipeline {
	return New(c, p.policy, p.validator, p.log)
}

// Process runs every stage for one file. The returned Row is always well
// formed; err is the failure behind an error Row.
func (p *Pipeline) Process(ctx context.Context, req models.GenerationRequest, imageDataURL, credential string) (row models.Row, err error) {
	req = req.Normalize()
	s := State{
		Request:    req,
		AssetType:  resolveAssetType(req, imageDataURL),
		Image:      imageDataURL,
		Credential: credential,
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s: internal error: %v", s.Stage, rec)
			p.log.Error().Str("filename", req.Filename).Str("stage", string(s.Stage)).Interface("panic", rec).Msg("pipeline panic")
			row = models.ErrorRow(req, s.AssetType, err.Error())
		}
	}()

	if err = p.run(ctx, &s); err != nil {
		p.log.Warn().Err(err).Str("filename", req.Filename).Str("stage", string(s.Stage)).Msg("file failed")
		return models.ErrorRow(req, s.AssetType, err.Error()), err
	}
	return models.SuccessRow(req, s.Title, s.Description, s.Keywords, s.AssetType), nil
}

// Run executes the stages strictly in order and stops at the first error. The
// returned State's Stage names the last stage entered.
func (p *Pipeline) Run(ctx context.Context, s State) (State, error) {
	err := p.run(ctx, &s)
	return s, err
}

func (p *Pipeline) run(ctx context.Context, s *State) error {
	for _, st := range p.steps {
		s.Stage = st.stage
		next, err := st.run(ctx, *s)
		if err != nil {
			return err
		}
		next.Stage = st.stage
		*s = next
	}
	return nil
}

var videoExtensions = map[string]struct{}{"mp4": {}, "mov": {}, "webm": {}, "m4v": {}, "avi": {}, "mkv": {}}

func resolveAssetType(req models.GenerationRequest, imageDataURL string) models.AssetType {
	var mt string
	if imageDataURL != "" {
		mt, _, _ = vision.ParseDataURL(imageDataURL)
	}
	if mt == "" && req.Extension != "" {
		mt = mime.TypeByExtension("." + req.Extension)
		if _, ok := videoExtensions[req.Extension]; ok && mt == "" {
			mt = "video/" + req.Extension
		}
	}
	t := models.ResolveAssetType(req.AssetType, mt)
	if t == models.AssetAuto {
		return models.AssetPhoto
	}
	return t
}
