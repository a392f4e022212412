package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockmeta/internal/repository"
	"stockmeta/internal/service"
	"stockmeta/internal/vision"
)

func (h HandlerSet) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": code})
}

func classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "file_too_large"
	case errors.Is(err, repository.ErrBatchNotFound):
		return http.StatusNotFound, "batch_not_found"
	case errors.Is(err, service.ErrNoFiles):
		return http.StatusBadRequest, "file_required"
	case errors.Is(err, service.ErrEmptyFile):
		return http.StatusBadRequest, "empty_file"
	case errors.Is(err, service.ErrDuplicateFilename):
		return http.StatusBadRequest, "duplicate_filename"
	case errors.Is(err, service.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType, "unsupported_media_type"
	case errors.Is(err, service.ErrContentMismatch):
		return http.StatusBadRequest, "content_type_mismatch"
	case errors.Is(err, vision.ErrBadImageData):
		return http.StatusBadRequest, "invalid_image_data"
	case errors.Is(err, service.ErrInvalidScope):
		return http.StatusBadRequest, "invalid_scope"
	case errors.Is(err, service.ErrNoKeys):
		return http.StatusServiceUnavailable, "no_api_keys"
	case errors.Is(err, service.ErrKeysExhausted):
		return http.StatusTooManyRequests, "keys_exhausted"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
