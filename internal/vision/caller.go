package vision

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"stockmeta/internal/models"
)

// Caller sends one describe request to a vision model.
type Caller interface {
	Describe(ctx context.Context, req Request) (models.RawModelOutput, error)
}

type CallerFunc func(ctx context.Context, req Request) (models.RawModelOutput, error)

func (f CallerFunc) Describe(ctx context.Context, req Request) (models.RawModelOutput, error) {
	return f(ctx, req)
}

type Request struct {
	Generation models.GenerationRequest
	// AssetType is the resolved asset type; never auto.
	AssetType models.AssetType
	// ImageDataURL is data:<mime>;base64,<payload>, or empty for filename-only requests.
	ImageDataURL string
	Credential   string
}

func (r Request) HasImage() bool {
	return strings.TrimSpace(r.ImageDataURL) != ""
}

var (
	ErrStopped      = errors.New("generation stopped")
	ErrMissingKey   = errors.New("missing api key")
	ErrBadImageData = errors.New("invalid image data url")
)

// HTTPError is a non-2xx answer from a model provider.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s http %d: %s", e.Provider, e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type statusCoder interface {
	HTTPStatusCode() int
}

func statusOf(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode()
	}
	return 0
}

func messageHas(err error, needles ...string) bool {
	msg := strings.ToLower(err.Error())
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}

var invalidKeyWording = []string{
	"invalid api key", "invalid_api_key", "incorrect api key", "api key not valid",
	"api_key_invalid", "missing api key", "no api key", "unauthorized",
}

// IsFatal reports errors that no retry can fix: bad requests and bad credentials.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingKey) || errors.Is(err, ErrBadImageData) {
		return true
	}
	switch statusOf(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return messageHas(err, invalidKeyWording...)
}

func IsRetryable(err error) bool {
	if err == nil || IsFatal(err) || isHardQuota(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrStopped) {
		return false
	}
	switch statusOf(err) {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return messageHas(err, "overloaded", "rate limit", "rate-limit")
}

// IsOverload marks errors that get twice the usual backoff.
func IsOverload(err error) bool {
	if err == nil {
		return false
	}
	return statusOf(err) == http.StatusServiceUnavailable || messageHas(err, "overloaded")
}

// IsQuotaExhausted reports a 429 that should take the credential out of the pool.
func IsQuotaExhausted(err error) bool {
	if err == nil || statusOf(err) != http.StatusTooManyRequests {
		return false
	}
	return messageHas(err, "quota", "exceeded", "rate limit", "rate-limit", "resource_exhausted")
}

// isHardQuota is a quota answer that waiting will not clear.
func isHardQuota(err error) bool {
	return statusOf(err) == http.StatusTooManyRequests && messageHas(err, "quota", "exceeded", "resource_exhausted")
}

func errorType(err error) string {
	switch {
	case IsOverload(err):
		return "overloaded"
	case statusOf(err) == http.StatusTooManyRequests || messageHas(err, "rate limit", "rate-limit"):
		return "rate_limit"
	case statusOf(err) >= 500:
		return "server_error"
	default:
		return "network"
	}
}
