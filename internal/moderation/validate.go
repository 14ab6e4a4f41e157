package moderation

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Content limits, checked in bytes first and then in characters.
const (
	MaxContentBytes = 4096
	MaxContentChars = 2000
)

var (
	// ErrMissingFields is returned when content or userId is empty.
	ErrMissingFields = errors.New("moderation: missing required fields")

	// ErrContentTooLong is returned for messages over the size limits.
	ErrContentTooLong = errors.New("moderation: content too long")

	// ErrInvalidEncoding is returned for content that is not valid UTF-8.
	ErrInvalidEncoding = errors.New("moderation: content is not valid UTF-8")

	// ErrModerationUnavailable means no decision could be reached, for
	// example because the suspension lookup failed or the request timed out.
	// Callers must treat it as a block, never as an allow.
	ErrModerationUnavailable = errors.New("moderation: unavailable")
)

// Validate checks that a request carries the required fields and that its
// content is within limits.
func (r Request) Validate() error {
	if r.Content == "" || r.UserID == "" {
		return ErrMissingFields
	}
	if len(r.Content) > MaxContentBytes {
		return fmt.Errorf("%w: exceeds %d byte limit", ErrContentTooLong, MaxContentBytes)
	}
	if !utf8.ValidString(r.Content) {
		return ErrInvalidEncoding
	}
	if utf8.RuneCountInString(r.Content) > MaxContentChars {
		return fmt.Errorf("%w: exceeds %d character limit", ErrContentTooLong, MaxContentChars)
	}
	return nil
}
