package thumb

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// DefaultMaxSide keeps uploads within what vision models resample to anyway.
const DefaultMaxSide = 1568

const jpegQuality = 85

type decoder struct {
	decode       func([]byte) (image.Image, error)
	decodeConfig func([]byte) (image.Config, error)
}

var decoders = map[string]decoder{
	"image/jpeg": {
		decode:       func(b []byte) (image.Image, error) { return jpeg.Decode(bytes.NewReader(b)) },
		decodeConfig: func(b []byte) (image.Config, error) { return jpeg.DecodeConfig(bytes.NewReader(b)) },
	},
	"image/png": {
		decode:       func(b []byte) (image.Image, error) { return png.Decode(bytes.NewReader(b)) },
		decodeConfig: func(b []byte) (image.Config, error) { return png.DecodeConfig(bytes.NewReader(b)) },
	},
	"image/gif": {
		decode:       func(b []byte) (image.Image, error) { return gif.Decode(bytes.NewReader(b)) },
		decodeConfig: func(b []byte) (image.Config, error) { return gif.DecodeConfig(bytes.NewReader(b)) },
	},
	"image/webp": {
		decode:       func(b []byte) (image.Image, error) { return webp.Decode(bytes.NewReader(b)) },
		decodeConfig: func(b []byte) (image.Config, error) { return webp.DecodeConfig(bytes.NewReader(b)) },
	},
}

// Fit scales a raster image down so its longest side is at most maxSide.
// PNG stays PNG to keep transparency; other formats become JPEG. Formats it
// cannot decode, and images already small enough, are returned unchanged.
func Fit(data []byte, mime string, maxSide int) ([]byte, string, error) {
	dec, ok := decoders[mime]
	if !ok || maxSide <= 0 {
		return data, mime, nil
	}

	cfg, err := dec.decodeConfig(data)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s header: %w", mime, err)
	}
	if cfg.Width <= maxSide && cfg.Height <= maxSide {
		return data, mime, nil
	}

	src, err := dec.decode(data)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", mime, err)
	}

	w, h := scaled(cfg.Width, cfg.Height, maxSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var out bytes.Buffer
	if mime == "image/png" {
		if err := png.Encode(&out, dst); err != nil {
			return nil, "", fmt.Errorf("encode png: %w", err)
		}
		return out.Bytes(), "image/png", nil
	}
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), "image/jpeg", nil
}

func scaled(w, h, maxSide int) (int, int) {
	if w >= h {
		return maxSide, max(1, h*maxSide/w)
	}
	return max(1, w*maxSide/h), maxSide
}
