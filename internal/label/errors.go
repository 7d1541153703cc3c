package label

import (
	"errors"
	"fmt"

	"labelgen/internal/gs1"
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageEncoding    Stage = "encoding"
	StageRendering   Stage = "rendering"
	StageComposition Stage = "composition"
	StageCache       Stage = "cache"
)

// ErrNoTemplate signals that neither an uploaded nor a default template exists.
var ErrNoTemplate = errors.New("no label template available")

// EncodingError reports a missing or invalid request field.
type EncodingError struct {
	Field  string
	Reason gs1.Reason
	Detail string
}

func (e *EncodingError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Reason, e.Detail)
}

func (e *EncodingError) Stage() Stage { return StageEncoding }

// RenderingError wraps a failure to build the barcode symbol.
type RenderingError struct{ Err error }

func (e *RenderingError) Error() string { return "barcode rendering failed: " + e.Err.Error() }
func (e *RenderingError) Unwrap() error { return e.Err }
func (e *RenderingError) Stage() Stage  { return StageRendering }

// CompositionError wraps a failure to place the overlay on the template.
type CompositionError struct{ Err error }

func (e *CompositionError) Error() string { return "label composition failed: " + e.Err.Error() }
func (e *CompositionError) Unwrap() error { return e.Err }
func (e *CompositionError) Stage() Stage  { return StageComposition }

// CacheError wraps a cache store failure. It never fails a request.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string { return fmt.Sprintf("label cache %s failed: %v", e.Op, e.Err) }
func (e *CacheError) Unwrap() error { return e.Err }
func (e *CacheError) Stage() Stage  { return StageCache }

// StageOf returns the stage of the first staged error in err's chain.
func StageOf(err error) (Stage, bool) {
	var s interface{ Stage() Stage }
	if errors.As(err, &s) {
		return s.Stage(), true
	}
	return "", false
}

func fieldError(field string, err error) error {
	var ve *gs1.ValueError
	if errors.As(err, &ve) {
		return &EncodingError{Field: field, Reason: ve.Reason, Detail: ve.Detail}
	}
	return &EncodingError{Field: field, Reason: gs1.ReasonInvalidValue, Detail: err.Error()}
}
