package handlers

import (
	"strings"

	"stockmeta/internal/models"
)

// generationOptions is bound from multipart form fields or a JSON body.
type generationOptions struct {
	Platform     string `form:"platform" json:"platform"`
	TitleLen     int    `form:"titleLen" json:"titleLen"`
	KeywordMode  string `form:"keywordMode" json:"keywordMode"`
	KeywordCount int    `form:"keywordCount" json:"keywordCount"`
	AssetType    string `form:"assetType" json:"assetType"`
	Prefix       string `form:"prefix" json:"prefix"`
	Suffix       string `form:"suffix" json:"suffix"`

	NegativeTitle    []string `form:"negativeTitle" json:"negativeTitle"`
	NegativeKeywords []string `form:"negativeKeywords" json:"negativeKeywords"`

	IsolatedOnTransparentBackground bool `form:"isolatedOnTransparentBackground" json:"isolatedOnTransparentBackground"`
	IsolatedOnWhiteBackground       bool `form:"isolatedOnWhiteBackground" json:"isolatedOnWhiteBackground"`
	IsVector                        bool `form:"isVector" json:"isVector"`
	IsIllustration                  bool `form:"isIllustration" json:"isIllustration"`
}

type generateJSON struct {
	generationOptions
	Filename     string `json:"filename"`
	ImageDataURL string `json:"imageDataUrl"`
}

func (o generationOptions) request() models.GenerationRequest {
	return models.GenerationRequest{
		Platform:                        models.Platform(o.Platform),
		TitleLen:                        o.TitleLen,
		KeywordMode:                     models.KeywordMode(strings.ToLower(strings.TrimSpace(o.KeywordMode))),
		KeywordCount:                    o.KeywordCount,
		AssetType:                       models.AssetType(o.AssetType),
		Prefix:                          o.Prefix,
		Suffix:                          o.Suffix,
		NegativeTitle:                   splitTerms(o.NegativeTitle),
		NegativeKeywords:                splitTerms(o.NegativeKeywords),
		IsolatedOnTransparentBackground: o.IsolatedOnTransparentBackground,
		IsolatedOnWhiteBackground:       o.IsolatedOnWhiteBackground,
		IsVector:                        o.IsVector,
		IsIllustration:                  o.IsIllustration,
	}
}

// splitTerms accepts repeated fields, comma separated values, or both.
func splitTerms(values []string) []string {
	var out []string
	for _, v := range values {
		for _, term := range strings.Split(v, ",") {
			if term = strings.TrimSpace(term); term != "" {
				out = append(out, term)
			}
		}
	}
	return out
}
