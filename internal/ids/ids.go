package ids

import (
	"strings"

	"github.com/segmentio/ksuid"
)

// New returns a time-ordered identifier for a batch.
func New() string {
	return ksuid.New().String()
}

// Valid reports whether s parses as an identifier produced by New.
func Valid(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	_, err := ksuid.Parse(s)
	return err == nil
}
