package embed

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBatchMismatch indicates the provider returned a different number
	// of vectors than texts sent.
	ErrBatchMismatch = errors.New("embedding count does not match text count")

	// ErrDimensionMismatch indicates a returned vector has the wrong
	// dimension for the store schema.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNotAnImage indicates the caption input is not a recognizable
	// image format.
	ErrNotAnImage = errors.New("input is not an image")

	// ErrEmptyCaption indicates the model returned no text for an image.
	ErrEmptyCaption = errors.New("model returned an empty caption")
)

// Kind classifies a provider failure for retry decisions.
type Kind int

const (
	// KindTransient failures (rate limits, 5xx, network resets) may
	// succeed on retry.
	KindTransient Kind = iota

	// KindPermanent failures (bad requests, auth, schema mismatches)
	// will not.
	KindPermanent
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Error wraps a provider failure with the operation that produced it and a
// retry classification.
type Error struct {
	Op   string // "embed" or "caption"
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap supports errors.Is and errors.As on the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// transientPatterns groups error substrings by category.
// Matched case-insensitively against err.Error().
//
// String matching is used because Genkit and LLM provider SDKs do not
// expose typed errors for transient failures. Re-evaluate if Genkit adds
// structured error types in a future version.
var transientPatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// classify buckets a raw provider error into a Kind.
func classify(err error) Kind {
	if err == nil {
		return KindPermanent
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range transientPatterns {
		for _, sub := range group {
			if strings.Contains(errStr, sub) {
				return KindTransient
			}
		}
	}
	return KindPermanent
}

// IsTransient reports whether err is worth retrying. Classified *Error
// values answer from their Kind; bare errors fall back to pattern matching.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransient
	}
	return classify(err) == KindTransient
}
