package thumb

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFitShrinksLargePNG(t *testing.T) {
	data := encodePNG(t, 400, 100)

	out, mime, err := Fit(data, "image/png", 200)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestFitReencodesJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 90, 300)), nil))

	out, mime, err := Fit(buf.Bytes(), "image/jpeg", 100)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Width)
	assert.Equal(t, 100, cfg.Height)
}

func TestFitLeavesSmallAndUnknownAlone(t *testing.T) {
	data := encodePNG(t, 50, 50)
	out, mime, err := Fit(data, "image/png", 200)
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, "image/png", mime)

	svg := []byte("<svg/>")
	out, mime, err = Fit(svg, "image/svg+xml", 10)
	require.NoError(t, err)
	assert.Equal(t, svg, out)
	assert.Equal(t, "image/svg+xml", mime)

	out, _, err = Fit(data, "image/png", 0)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestFitRejectsCorruptData(t *testing.T) {
	_, _, err := Fit([]byte{0x89, 'P', 'N', 'G'}, "image/png", 10)
	assert.Error(t, err)
}

func TestScaled(t *testing.T) {
	w, h := scaled(3000, 2, 100)
	assert.Equal(t, 100, w)
	assert.Equal(t, 1, h)
}
