package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Markers classify failures from collaborators. Wrap attaches one so callers
// can test with errors.Is regardless of how deeply the error was wrapped.
var (
	ErrExternalService = errors.New("external service error")
	ErrEmptyAudio      = errors.New("empty audio buffer")
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
	ErrTransient       = errors.New("transient failure")
)

// kinds is checked in order; the first matching marker names the error.
var kinds = []struct {
	name    string
	markers []error
}{
	{"empty_audio", []error{ErrEmptyAudio}},
	{"timeout", []error{ErrTimeout, context.DeadlineExceeded}},
	{"not_found", []error{ErrNotFound}},
	{"validation", []error{ErrValidation}},
	{"configuration", []error{ErrConfiguration}},
	{"external_service", []error{ErrExternalService}},
	{"transient", []error{ErrTransient}},
}

// Wrap tags err with marker and prefixes it with "where: what: detail",
// skipping blank parts. A nil marker means ErrTransient.
func Wrap(marker error, where, what, detail string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	prefix := joinNonEmpty(": ", where, what, detail)
	if prefix == "" {
		prefix = "service failure"
	}
	if err == nil {
		return fmt.Errorf("%w: %s", marker, prefix)
	}
	return fmt.Errorf("%w: %s: %w", marker, prefix, err)
}

// Kind returns the short classification stored on failed episodes. Errors
// carrying no marker are "internal".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		for _, marker := range k.markers {
			if errors.Is(err, marker) {
				return k.name
			}
		}
	}
	return "internal"
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
