package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockmeta/internal/models"
	"stockmeta/internal/textclean"
	"stockmeta/internal/vision"
)

const (
	testImage = "data:image/png;base64,iVBORw0KGgo="
	testFile  = "IMG_4821.png"
)

func stub(out models.RawModelOutput) vision.Caller {
	return vision.CallerFunc(func(context.Context, vision.Request) (models.RawModelOutput, error) {
		return out, nil
	})
}

func newTestPipeline(c vision.Caller) *Pipeline {
	return New(c, nil, nil, zerolog.Nop())
}

func process(t *testing.T, out models.RawModelOutput, req models.GenerationRequest, image string) (models.Row, error) {
	t.Helper()
	if req.Filename == "" {
		req.Filename = testFile
	}
	return newTestPipeline(stub(out)).Process(context.Background(), req, image, "key")
}

func TestFilenamePurity(t *testing.T) {
	out := models.RawModelOutput{Title: "sunset beach waves", Keywords: []string{"sunset", "beach"}}
	req := models.GenerationRequest{Filename: "sunset_beach_waves.jpg"}

	row, err := process(t, out, req, testImage)
	require.ErrorIs(t, err, ErrFilenameDerived)
	assert.True(t, row.Failed())
	assert.Empty(t, row.Title)
	assert.Empty(t, row.Keywords)
	assert.Equal(t, "sunset_beach_waves.jpg", row.Filename)

	row, err = process(t, out, req, "")
	require.NoError(t, err)
	assert.False(t, row.Failed())
}

func TestEmptyTitle(t *testing.T) {
	out := models.RawModelOutput{Keywords: []string{"dog"}}

	t.Run("with image fails", func(t *testing.T) {
		row, err := process(t, out, models.GenerationRequest{}, testImage)
		require.ErrorIs(t, err, ErrEmptyResult)
		assert.True(t, row.Failed())
	})
	t.Run("without image falls back to filename", func(t *testing.T) {
		row, err := process(t, out, models.GenerationRequest{Filename: "golden_retriever_puppy.jpg"}, "")
		require.NoError(t, err)
		assert.Equal(t, "Golden retriever puppy", row.Title)
		assert.Contains(t, row.Keywords, "retriever")
	})
}

func TestUpstreamErrorBecomesErrorRow(t *testing.T) {
	upstream := &vision.HTTPError{Provider: "test", StatusCode: http.StatusServiceUnavailable, Body: "overloaded"}
	c := vision.CallerFunc(func(context.Context, vision.Request) (models.RawModelOutput, error) {
		return models.RawModelOutput{}, upstream
	})

	row, err := newTestPipeline(c).Process(context.Background(), models.GenerationRequest{Filename: testFile}, testImage, "key")
	var httpErr *vision.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.True(t, row.Failed())
	assert.Contains(t, row.Error, "503")
	assert.Equal(t, []string{}, row.Keywords)
}

func TestModelReportedError(t *testing.T) {
	row, err := process(t, models.RawModelOutput{Error: "content policy"}, models.GenerationRequest{}, testImage)
	require.Error(t, err)
	assert.Contains(t, row.Error, "content policy")
}

func TestPanicIsContainedToTheFile(t *testing.T) {
	c := vision.CallerFunc(func(context.Context, vision.Request) (models.RawModelOutput, error) {
		panic("boom")
	})
	row, err := newTestPipeline(c).Process(context.Background(), models.GenerationRequest{Filename: testFile}, testImage, "key")
	require.Error(t, err)
	assert.True(t, row.Failed())
	assert.Contains(t, row.Error, "internal error")
	assert.Contains(t, row.Error, string(StageInvoking))
}

func TestRunStopsAtFailingStage(t *testing.T) {
	p := newTestPipeline(stub(models.RawModelOutput{Title: "img 4821"}))
	s, err := p.Run(context.Background(), State{
		Request: models.GenerationRequest{Filename: testFile}.Normalize(),
		Image:   testImage,
	})
	require.ErrorIs(t, err, ErrFilenameDerived)
	assert.Equal(t, StageValidating, s.Stage)

	p = newTestPipeline(stub(models.RawModelOutput{Title: "Red fox resting in snowy forest"}))
	s, err = p.Run(context.Background(), State{
		Request:   models.GenerationRequest{Filename: testFile}.Normalize(),
		AssetType: models.AssetPhoto,
		Image:     testImage,
	})
	require.NoError(t, err)
	assert.Equal(t, StageFinalizing, s.Stage)
}

func TestCleaningKeepsGenericWords(t *testing.T) {
	out := models.RawModelOutput{Title: "My Photo Final Export 2024", Keywords: []string{"export"}}
	req := models.GenerationRequest{Platform: models.PlatformGeneral, TitleLen: 60}

	row, err := process(t, out, req, testImage)
	require.NoError(t, err)
	assert.Equal(t, "My Photo Final Export 2024", row.Title)
}

func TestOrdinaryWordsAreNotProviderNames(t *testing.T) {
	for _, title := range []string{"Robot hand with AI chip", "Firefly glowing on a leaf"} {
		t.Run(title, func(t *testing.T) {
			out := models.RawModelOutput{Title: title, Keywords: []string{"macro", "night"}}
			row, err := process(t, out, models.GenerationRequest{Filename: "DSC_0001.jpg"}, testImage)
			require.NoError(t, err)
			assert.False(t, row.Failed(), row.Error)
			assert.NotEmpty(t, row.Title)
		})
	}

	row, err := process(t, models.RawModelOutput{Title: "Firefly glowing on a leaf"}, models.GenerationRequest{Filename: "DSC_0001.jpg"}, testImage)
	require.NoError(t, err)
	assert.Equal(t, "Firefly glowing on a leaf", row.Title)
}

func TestProviderTitleWithImageFails(t *testing.T) {
	out := models.RawModelOutput{Title: "Midjourney fox in snow", Keywords: []string{"fox"}}
	row, err := process(t, out, models.GenerationRequest{Filename: "DSC_0001.jpg"}, testImage)
	require.ErrorIs(t, err, ErrFilenameDerived)
	assert.True(t, row.Failed())
}

func TestCleaningStripsBannedWords(t *testing.T) {
	out := models.RawModelOutput{Title: "Midjourney fox in snow", Keywords: []string{"fox"}}
	row, err := process(t, out, models.GenerationRequest{}, "")
	require.NoError(t, err)
	assert.Equal(t, "fox in snow", row.Title)
}

func TestCleaningNeverSubstitutesFilenameForImageTitle(t *testing.T) {
	out := models.RawModelOutput{Title: "AI", Keywords: []string{"fox"}}
	row, err := process(t, out, models.GenerationRequest{Filename: "red_fox.jpg"}, testImage)
	require.ErrorIs(t, err, ErrEmptyResult)
	assert.True(t, row.Failed())

	row, err = process(t, out, models.GenerationRequest{Filename: "red_fox.jpg"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Red fox", row.Title)
}

func TestAdobeStyleReferenceRemoved(t *testing.T) {
	out := models.RawModelOutput{Title: "Fox portrait in the style of Van Gogh", Keywords: []string{"fox"}}
	row, err := process(t, out, models.GenerationRequest{Platform: models.PlatformAdobe}, testImage)
	require.NoError(t, err)
	assert.Equal(t, "Fox portrait", row.Title)

	row, err = process(t, out, models.GenerationRequest{Platform: models.PlatformGeneral}, testImage)
	require.NoError(t, err)
	assert.Equal(t, out.Title, row.Title)
}

func TestWhiteBackgroundAlreadyPresent(t *testing.T) {
	out := models.RawModelOutput{Title: "Red apple isolated on white background", Keywords: []string{"apple"}}
	req := models.GenerationRequest{IsolatedOnWhiteBackground: true}

	row, err := process(t, out, req, testImage)
	require.NoError(t, err)
	assert.Equal(t, "Red apple isolated on white background", row.Title)
	assert.Equal(t, 1, strings.Count(strings.ToLower(row.Title), "white background"))
}

func TestWhiteBackgroundAdded(t *testing.T) {
	out := models.RawModelOutput{Title: "Red apple on a wooden table", Keywords: []string{"apple"}}
	row, err := process(t, out, models.GenerationRequest{IsolatedOnWhiteBackground: true}, testImage)
	require.NoError(t, err)
	assert.Equal(t, "Red apple on a wooden table isolated on white background", row.Title)
}

func TestTransparentBackgroundReplacesColor(t *testing.T) {
	out := models.RawModelOutput{Title: "Cute cartoon fox on green background", Keywords: []string{"fox"}}
	req := models.GenerationRequest{IsolatedOnTransparentBackground: true}

	row, err := process(t, out, req, testImage)
	require.NoError(t, err)
	lower := strings.ToLower(row.Title)
	assert.NotContains(t, lower, "green")
	assert.True(t, strings.Contains(lower, "isolated") || strings.Contains(lower, "transparent background"), row.Title)
	assert.LessOrEqual(t, len([]rune(row.Title)), 70)
}

func TestTransparentBackgroundShortBudget(t *testing.T) {
	out := models.RawModelOutput{Title: "Cute cartoon fox on green background", Keywords: []string{"fox"}}
	req := models.GenerationRequest{IsolatedOnTransparentBackground: true, TitleLen: 20}

	row, err := process(t, out, req, testImage)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(row.Title)), 20)
	assert.NotContains(t, strings.ToLower(row.Title), "green")
	assert.Contains(t, strings.ToLower(row.Title), "isolated")
}

func TestVectorWordOnlyWhenItFits(t *testing.T) {
	out := models.RawModelOutput{Title: "Fox icon set", Keywords: []string{"fox"}}
	row, err := process(t, out, models.GenerationRequest{IsVector: true}, testImage)
	require.NoError(t, err)
	assert.Equal(t, "Fox icon set vector", row.Title)

	out.Title = "Cute red fox in snow"
	row, err = process(t, out, models.GenerationRequest{IsVector: true, TitleLen: 20}, testImage)
	require.NoError(t, err)
	assert.Equal(t, "Cute red fox in snow", row.Title)
}

func TestPrefixAndSuffix(t *testing.T) {
	out := models.RawModelOutput{Title: "Red fox in the snow", Keywords: []string{"fox"}}
	row, err := process(t, out, models.GenerationRequest{Prefix: "Wild", Suffix: "at dawn"}, testImage)
	require.NoError(t, err)
	assert.Equal(t, "Wild Red fox in the snow at dawn", row.Title)

	out.Title = "wild red fox in the snow at dawn"
	row, err = process(t, out, models.GenerationRequest{Prefix: "Wild", Suffix: "At Dawn"}, testImage)
	require.NoError(t, err)
	assert.Equal(t, "wild red fox in the snow at dawn", row.Title)
}

func TestTitleLengthEnforced(t *testing.T) {
	out := models.RawModelOutput{
		Title:    "Majestic red fox walking through deep fresh snow in a quiet winter forest at sunrise",
		Keywords: []string{"fox"},
	}
	for _, n := range []int{20, 45, 70} {
		row, err := process(t, out, models.GenerationRequest{TitleLen: n}, testImage)
		require.NoError(t, err)
		assert.LessOrEqual(t, len([]rune(row.Title)), n)
		assert.NotEmpty(t, row.Title)
	}

	out.Title = strings.Repeat("Red fox walking through deep snow ", 10)
	row, err := process(t, out, models.GenerationRequest{TitleLen: models.MaxTitleLen}, testImage)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(row.Title)), textclean.HardCap)
}

func TestNegativeTermEnforcement(t *testing.T) {
	out := models.RawModelOutput{
		Title:    "Cute red fox in the snow",
		Keywords: []string{"Fox", "wildlife", "snow", "winter", "cute"},
	}
	for _, mode := range []models.KeywordMode{models.KeywordModeAuto, models.KeywordModeFixed} {
		t.Run(string(mode), func(t *testing.T) {
			req := models.GenerationRequest{
				KeywordMode:      mode,
				KeywordCount:     20,
				NegativeTitle:    []string{"CUTE"},
				NegativeKeywords: []string{"fox", "Wildlife"},
			}
			row, err := process(t, out, req, testImage)
			require.NoError(t, err)

			assert.False(t, regexp.MustCompile(`(?i)\bcute\b`).MatchString(row.Title), row.Title)
			for _, kw := range row.Keywords {
				assert.NotEqual(t, "fox", strings.ToLower(kw))
				assert.NotEqual(t, "wildlife", strings.ToLower(kw))
			}
		})
	}
}

func TestNegativeTitleNeverEmptiesTitle(t *testing.T) {
	out := models.RawModelOutput{Title: "Snow", Keywords: []string{"snow"}}
	for name, image := range map[string]string{"with image": testImage, "without image": ""} {
		t.Run(name, func(t *testing.T) {
			row, err := process(t, out, models.GenerationRequest{Filename: "mountain_cabin.jpg", NegativeTitle: []string{"snow"}}, image)
			require.NoError(t, err)
			assert.Equal(t, "Snow", row.Title)
		})
	}
}

func TestFixedCountContract(t *testing.T) {
	many := make([]string, 80)
	for i := range many {
		many[i] = fmt.Sprintf("keyword%c%c", 'a'+i/26, 'a'+i%26)
	}
	inputs := map[string][]string{
		"few":  {"fox", "snow"},
		"none": nil,
		"many": many,
	}
	for _, platform := range []models.Platform{models.PlatformGeneral, models.PlatformAdobe, models.PlatformShutterstock} {
		for _, count := range []int{5, 25, 49} {
			for name, kws := range inputs {
				t.Run(fmt.Sprintf("%s/%d/%s", platform, count, name), func(t *testing.T) {
					out := models.RawModelOutput{Title: "Red fox resting in snowy forest", Keywords: kws}
					req := models.GenerationRequest{Platform: platform, KeywordMode: models.KeywordModeFixed, KeywordCount: count}
					row, err := process(t, out, req, testImage)
					require.NoError(t, err)
					assert.Len(t, row.Keywords, count)
				})
			}
		}
	}
}

func TestAutoModeIsNotPadded(t *testing.T) {
	out := models.RawModelOutput{Title: "Red fox", Keywords: []string{"fox", "snow"}}
	row, err := process(t, out, models.GenerationRequest{KeywordMode: models.KeywordModeAuto}, "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(row.Keywords), models.DefaultKeywordCap)
	assert.NotContains(t, row.Keywords, "decoration")
	assert.NotContains(t, row.Keywords, "horizontal")
}

func TestAdobeSplitsCombinedPhrases(t *testing.T) {
	out := models.RawModelOutput{
		Title:    "Modern home office desk with laptop",
		Keywords: []string{"modern minimalist home office desk setup"},
	}
	row, err := process(t, out, models.GenerationRequest{Platform: models.PlatformAdobe}, testImage)
	require.NoError(t, err)

	assert.NotContains(t, row.Keywords, "modern minimalist home office desk setup")
	assert.Contains(t, row.Keywords, "minimalist")
	assert.Contains(t, row.Keywords, "setup")
	for _, kw := range row.Keywords {
		assert.Less(t, len(strings.Fields(kw)), 3, kw)
	}
}

func TestAdobeSplitsCombinedPhrasesInFixedMode(t *testing.T) {
	out := models.RawModelOutput{
		Title:    "Minimalist home office desk",
		Keywords: []string{"modern minimalist home office desk setup"},
	}
	for _, count := range []int{5, 8} {
		t.Run(fmt.Sprint(count), func(t *testing.T) {
			req := models.GenerationRequest{Platform: models.PlatformAdobe, KeywordMode: models.KeywordModeFixed, KeywordCount: count}
			row, err := process(t, out, req, testImage)
			require.NoError(t, err)

			assert.Len(t, row.Keywords, count)
			assert.NotContains(t, row.Keywords, "modern minimalist home office desk setup")
			for _, kw := range []string{"minimalist", "office", "desk"} {
				assert.Contains(t, row.Keywords, kw)
			}
			for _, kw := range row.Keywords {
				assert.Less(t, len(strings.Fields(kw)), 3, kw)
			}
		})
	}
}

func TestTitleWordsPlacement(t *testing.T) {
	out := models.RawModelOutput{
		Title:    "Golden retriever puppy",
		Keywords: []string{"dog", "pet", "animal", "canine", "cute", "fluffy"},
	}
	req := models.GenerationRequest{KeywordMode: models.KeywordModeFixed, KeywordCount: 5}

	row, err := process(t, out, req, testImage)
	require.NoError(t, err)
	require.Len(t, row.Keywords, 5)
	assert.Equal(t, []string{"golden", "retriever", "puppy"}, row.Keywords[:3])

	req.Platform = models.PlatformAdobe
	row, err = process(t, out, req, testImage)
	require.NoError(t, err)
	require.Len(t, row.Keywords, 5)
	assert.Equal(t, []string{"golden", "retriever", "puppy"}, row.Keywords[2:])
}

func TestFilenameKeywordsPurgedWhenImageSupplied(t *testing.T) {
	out := models.RawModelOutput{
		Title:    "Happy dog running on the sand",
		Keywords: []string{"golden", "retriever", "dog", "sand", "beach"},
	}
	row, err := process(t, out, models.GenerationRequest{Filename: "golden_retriever_beach.jpg"}, testImage)
	require.NoError(t, err)
	for _, kw := range []string{"golden", "retriever", "beach"} {
		assert.NotContains(t, row.Keywords, kw)
	}
	assert.Contains(t, row.Keywords, "dog")
	assert.Contains(t, row.Keywords, "sand")
}

func TestDescription(t *testing.T) {
	long := strings.Repeat("A fox walks through the snow. ", 20)
	row, err := process(t, models.RawModelOutput{Title: "Red fox in the snow", Description: long, Keywords: []string{"fox"}}, models.GenerationRequest{}, testImage)
	require.NoError(t, err)
	assert.NotEmpty(t, row.Description)
	assert.LessOrEqual(t, len([]rune(row.Description)), models.DescriptionLen)
	assert.True(t, strings.HasSuffix(row.Description, "."), row.Description)

	unbroken := strings.Repeat("Red fox walks slowly through deep fresh snow ", 6)
	row, err = process(t, models.RawModelOutput{Title: "Red fox in the snow", Description: unbroken, Keywords: []string{"fox"}}, models.GenerationRequest{}, testImage)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(row.Description)), models.DescriptionLen)
	assert.NotEqual(t, ' ', []rune(row.Description)[len([]rune(row.Description))-1])

	row, err = process(t, models.RawModelOutput{Title: "Red fox in the snow", Keywords: []string{"fox"}}, models.GenerationRequest{}, testImage)
	require.NoError(t, err)
	assert.Equal(t, "Red fox in the snow", row.Description)
}

func TestRowCarriesRequestFields(t *testing.T) {
	row, err := process(t, models.RawModelOutput{Title: "Red fox in the snow", Keywords: []string{"fox"}},
		models.GenerationRequest{Platform: models.PlatformShutterstock, Filename: "fox.svg"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Shutterstock", row.Platform)
	assert.Equal(t, "svg", row.Extension)
	assert.Equal(t, models.AssetVector, row.AssetType)
}

func TestImagePartReachesCaller(t *testing.T) {
	var got vision.Request
	c := vision.CallerFunc(func(_ context.Context, req vision.Request) (models.RawModelOutput, error) {
		got = req
		return models.RawModelOutput{Title: "Red fox in the snow"}, nil
	})
	_, err := newTestPipeline(c).Process(context.Background(), models.GenerationRequest{Filename: testFile}, testImage, "secret")
	require.NoError(t, err)
	assert.Equal(t, testImage, got.ImageDataURL)
	assert.Equal(t, "secret", got.Credential)
	assert.Equal(t, models.AssetPhoto, got.AssetType)
}
