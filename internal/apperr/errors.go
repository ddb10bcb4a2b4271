// Package apperr defines the failure taxonomy shared by every pipeline stage.
//
// Each stage fails closed with an *Error that names the failure Kind and,
// where the kind has sub-cases, a Reason. Callers classify failures with
// errors.Is against the exported markers or with KindOf/ReasonOf.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the top-level failure category reported to callers.
type Kind string

const (
	KindValidation              Kind = "ValidationError"
	KindInvalidRequest          Kind = "InvalidRequest"
	KindConversion              Kind = "ConversionError"
	KindRecognition             Kind = "RecognitionError"
	KindUnsupportedLanguagePair Kind = "UnsupportedLanguagePair"
	KindTransform               Kind = "TransformError"
	KindSerialization           Kind = "SerializationError"
	KindInternal                Kind = "InternalError"
)

// Reason refines a Kind.
type Reason string

const (
	ReasonUnsupportedExtension Reason = "UnsupportedExtension"
	ReasonUnsupportedMediaType Reason = "UnsupportedMediaType"
	ReasonEmptySegments        Reason = "EmptySegments"
	ReasonEngineFailure        Reason = "EngineFailure"
	ReasonRomanizationFailure  Reason = "RomanizationFailure"
	ReasonTranslationFailure   Reason = "TranslationFailure"
)

// Markers for errors.Is. A marker without a Reason matches every error of
// its Kind.
var (
	ErrValidation              = &Error{Kind: KindValidation}
	ErrUnsupportedExtension    = &Error{Kind: KindValidation, Reason: ReasonUnsupportedExtension}
	ErrUnsupportedMediaType    = &Error{Kind: KindValidation, Reason: ReasonUnsupportedMediaType}
	ErrInvalidRequest          = &Error{Kind: KindInvalidRequest}
	ErrConversion              = &Error{Kind: KindConversion}
	ErrRecognition             = &Error{Kind: KindRecognition}
	ErrEmptySegments           = &Error{Kind: KindRecognition, Reason: ReasonEmptySegments}
	ErrEngineFailure           = &Error{Kind: KindRecognition, Reason: ReasonEngineFailure}
	ErrUnsupportedLanguagePair = &Error{Kind: KindUnsupportedLanguagePair}
	ErrTransform               = &Error{Kind: KindTransform}
	ErrRomanizationFailure     = &Error{Kind: KindTransform, Reason: ReasonRomanizationFailure}
	ErrTranslationFailure      = &Error{Kind: KindTransform, Reason: ReasonTranslationFailure}
	ErrSerialization           = &Error{Kind: KindSerialization}
)

// Error is a classified pipeline failure.
type Error struct {
	Kind   Kind
	Reason Reason
	// Op names the operation that failed, e.g. "normalize" or "recognize".
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 4)
	head := string(e.Kind)
	if e.Reason != "" {
		head += "." + string(e.Reason)
	}
	parts = append(parts, head)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if d := strings.TrimSpace(e.Detail); d != "" {
		parts = append(parts, d)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches markers by Kind and, when the target carries one, Reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// New builds an error without an underlying cause.
func New(kind Kind, reason Reason, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. An err that is already classified is returned as is so
// the innermost stage decides the kind.
func Wrap(kind Kind, reason Reason, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Reason: reason, Op: op, Err: err}
}

// KindOf reports the Kind of err, or KindInternal when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf reports the Reason of err, if any.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
