package sniffer

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
	TypeAVIF MediaType = "avif"
	TypeSVG  MediaType = "svg"
	TypeMP4  MediaType = "mp4"
	TypeMOV  MediaType = "mov"
	TypeWEBM MediaType = "webm"
	TypeAVI  MediaType = "avi"
)

var ErrUnknownType = errors.New("unknown media type")

type Result struct {
	Type MediaType
	MIME string
}

// IsVideo reports whether the upload is a clip. Clips are described from
// their filename only.
func (r Result) IsVideo() bool {
	return strings.HasPrefix(r.MIME, "video/")
}

func (r Result) IsSVG() bool {
	return r.Type == TypeSVG
}

func Detect(r io.Reader) (Result, []byte, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, nil, err
	}
	head = head[:n]

	result, err := DetectHead(head)
	return result, head, err
}

func DetectHead(head []byte) (Result, error) {
	if len(head) == 0 {
		return Result{}, ErrUnknownType
	}

	switch {
	case isJPEG(head):
		return Result{Type: TypeJPEG, MIME: "image/jpeg"}, nil
	case isPNG(head):
		return Result{Type: TypePNG, MIME: "image/png"}, nil
	case isGIF(head):
		return Result{Type: TypeGIF, MIME: "image/gif"}, nil
	case isRIFF(head, "WEBP"):
		return Result{Type: TypeWEBP, MIME: "image/webp"}, nil
	case isRIFF(head, "AVI "):
		return Result{Type: TypeAVI, MIME: "video/x-msvideo"}, nil
	case isWEBM(head):
		return Result{Type: TypeWEBM, MIME: "video/webm"}, nil
	case isSVG(head):
		return Result{Type: TypeSVG, MIME: "image/svg+xml"}, nil
	}

	if brand, ok := ftypBrand(head); ok {
		switch {
		case strings.HasPrefix(brand, "avi"):
			return Result{Type: TypeAVIF, MIME: "image/avif"}, nil
		case brand == "qt  ":
			return Result{Type: TypeMOV, MIME: "video/quicktime"}, nil
		default:
			return Result{Type: TypeMP4, MIME: "video/mp4"}, nil
		}
	}

	return Result{}, ErrUnknownType
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isGIF(head []byte) bool {
	return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
}

func isRIFF(head []byte, form string) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte(form))
}

func isWEBM(head []byte) bool {
	return len(head) >= 4 && bytes.Equal(head[:4], []byte{0x1a, 0x45, 0xdf, 0xa3})
}

// ftypBrand returns the major brand of an ISO base media file (MP4, MOV, AVIF).
func ftypBrand(head []byte) (string, bool) {
	if len(head) < 12 || string(head[4:8]) != "ftyp" {
		return "", false
	}
	brand := string(head[8:12])
	if brand == "mif1" && bytes.Contains(head[12:], []byte("avif")) {
		brand = "avif"
	}
	return brand, true
}

func isSVG(head []byte) bool {
	trimmed := strings.TrimSpace(string(head))
	return strings.HasPrefix(trimmed, "<svg") ||
		(strings.HasPrefix(trimmed, "<?xml") && strings.Contains(strings.ToLower(trimmed), "<svg"))
}

// DataURL encodes content as the base64 data URL handed to vision models.
func DataURL(mime string, content []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(content)
}

func MimeTypeFromHTTP(header http.Header) string {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		return ""
	}
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		return strings.TrimSpace(contentType[:idx])
	}
	return strings.TrimSpace(contentType)
}
