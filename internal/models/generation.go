package models

import (
	"path/filepath"
	"strings"
)

type Platform string

const (
	PlatformGeneral      Platform = "general"
	PlatformAdobe        Platform = "adobe"
	PlatformShutterstock Platform = "shutterstock"
)

// ParsePlatform falls back to general for unknown values.
func ParsePlatform(s string) Platform {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformAdobe:
		return PlatformAdobe
	case PlatformShutterstock:
		return PlatformShutterstock
	default:
		return PlatformGeneral
	}
}

func (p Platform) Label() string {
	switch p {
	case PlatformAdobe:
		return "Adobe Stock"
	case PlatformShutterstock:
		return "Shutterstock"
	default:
		return "General"
	}
}

type AssetType string

const (
	AssetAuto         AssetType = "auto"
	AssetPhoto        AssetType = "photo"
	AssetIllustration AssetType = "illustration"
	AssetVector       AssetType = "vector"
	Asset3D           AssetType = "3d"
	AssetIcon         AssetType = "icon"
	AssetVideo        AssetType = "video"
)

func ParseAssetType(s string) AssetType {
	switch t := AssetType(strings.ToLower(strings.TrimSpace(s))); t {
	case AssetPhoto, AssetIllustration, AssetVector, Asset3D, AssetIcon, AssetVideo:
		return t
	default:
		return AssetAuto
	}
}

// ResolveAssetType turns auto into a concrete type using the upload's MIME type.
func ResolveAssetType(t AssetType, mime string) AssetType {
	if t != AssetAuto {
		return t
	}
	mime = strings.ToLower(mime)
	switch {
	case strings.HasPrefix(mime, "video/"):
		return AssetVideo
	case mime == "image/svg+xml":
		return AssetVector
	case strings.HasPrefix(mime, "image/"):
		return AssetPhoto
	default:
		return AssetAuto
	}
}

type KeywordMode string

const (
	KeywordModeAuto  KeywordMode = "auto"
	KeywordModeFixed KeywordMode = "fixed"
)

const (
	MinTitleLen       = 20
	MaxTitleLen       = 200
	DefaultTitleLen   = 70
	DescriptionLen    = 150
	MinKeywordCount   = 5
	MaxKeywordCount   = 49
	DefaultKeywordCap = 35
)

// GenerationRequest is the immutable per-file input to the metadata pipeline.
type GenerationRequest struct {
	Platform       Platform    `json:"platform"`
	TitleLen       int         `json:"titleLen"`
	DescriptionLen int         `json:"descriptionLen"`
	KeywordMode    KeywordMode `json:"keywordMode"`
	KeywordCount   int         `json:"keywordCount"`
	// AutoKeywordCap bounds auto mode. 35 is the current contract; older
	// releases used 41 and 49.
	AutoKeywordCap int       `json:"autoKeywordCap"`
	AssetType      AssetType `json:"assetType"`
	Prefix         string    `json:"prefix,omitempty"`
	Suffix         string    `json:"suffix,omitempty"`

	NegativeTitle    []string `json:"negativeTitle,omitempty"`
	NegativeKeywords []string `json:"negativeKeywords,omitempty"`

	IsolatedOnTransparentBackground bool `json:"isolatedOnTransparentBackground"`
	IsolatedOnWhiteBackground       bool `json:"isolatedOnWhiteBackground"`
	IsVector                        bool `json:"isVector"`
	IsIllustration                  bool `json:"isIllustration"`

	Filename  string `json:"filename"`
	Extension string `json:"extension"`
}

// Normalize clamps every numeric option into range and resolves conflicting
// toggles. Transparent wins over white.
func (r GenerationRequest) Normalize() GenerationRequest {
	r.Platform = ParsePlatform(string(r.Platform))
	r.AssetType = ParseAssetType(string(r.AssetType))

	if r.TitleLen == 0 {
		r.TitleLen = DefaultTitleLen
	}
	r.TitleLen = clamp(r.TitleLen, MinTitleLen, MaxTitleLen)
	r.DescriptionLen = DescriptionLen

	if r.KeywordMode != KeywordModeFixed {
		r.KeywordMode = KeywordModeAuto
	}
	if r.AutoKeywordCap <= 0 {
		r.AutoKeywordCap = DefaultKeywordCap
	}
	if r.KeywordCount == 0 {
		r.KeywordCount = r.AutoKeywordCap
	}
	r.KeywordCount = clamp(r.KeywordCount, MinKeywordCount, MaxKeywordCount)

	if r.IsolatedOnTransparentBackground {
		r.IsolatedOnWhiteBackground = false
	}

	r.Prefix = strings.TrimSpace(r.Prefix)
	r.Suffix = strings.TrimSpace(r.Suffix)
	r.NegativeTitle = compactTerms(r.NegativeTitle)
	r.NegativeKeywords = compactTerms(r.NegativeKeywords)

	if r.Extension == "" && r.Filename != "" {
		r.Extension = strings.TrimPrefix(strings.ToLower(filepath.Ext(r.Filename)), ".")
	}
	return r
}

// ForFile copies the batch-wide options onto a single file.
func (r GenerationRequest) ForFile(filename string) GenerationRequest {
	r.Filename = filename
	r.Extension = ""
	r.NegativeTitle = append([]string(nil), r.NegativeTitle...)
	r.NegativeKeywords = append([]string(nil), r.NegativeKeywords...)
	return r.Normalize()
}

// TargetKeywordCount is the exact count in fixed mode and the ceiling in auto mode.
func (r GenerationRequest) TargetKeywordCount() int {
	if r.KeywordMode == KeywordModeFixed {
		return r.KeywordCount
	}
	if r.AutoKeywordCap > 0 {
		return r.AutoKeywordCap
	}
	return DefaultKeywordCap
}

func (r GenerationRequest) Fixed() bool {
	return r.KeywordMode == KeywordModeFixed
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func compactTerms(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
