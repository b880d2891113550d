package errors

import (
	"errors"
	"fmt"
)

type Category string

const (
	CategoryInvalidInput    Category = "invalid_input"
	CategoryVerification    Category = "verification_failed"
	CategoryNotFound        Category = "not_found"
	CategoryIOFailure       Category = "io_failure"
	CategoryInternalFailure Category = "internal_failure"
)

// Transport error codes. The set is part of the envelope contract.
const (
	CodeInvalidInput                 = "INVALID_INPUT"
	CodeInternalError                = "INTERNAL_ERROR"
	CodeFileNotFound                 = "FILE_NOT_FOUND"
	CodeCaptureFailed                = "CAPTURE_FAILED"
	CodeBundleNotFound               = "BUNDLE_NOT_FOUND"
	CodeArtifactNotFound             = "ARTIFACT_NOT_FOUND"
	CodeInvalidBundle                = "INVALID_BUNDLE"
	CodeProvenanceVerificationFailed = "PROVENANCE_VERIFICATION_FAILED"
	CodeDigestMismatch               = "DIGEST_MISMATCH"
	CodeSchemaValidationFailed       = "SCHEMA_VALIDATION_FAILED"
)

var knownCodes = map[string]Category{
	CodeInvalidInput:                 CategoryInvalidInput,
	CodeInternalError:                CategoryInternalFailure,
	CodeFileNotFound:                 CategoryNotFound,
	CodeCaptureFailed:                CategoryIOFailure,
	CodeBundleNotFound:               CategoryNotFound,
	CodeArtifactNotFound:             CategoryNotFound,
	CodeInvalidBundle:                CategoryInvalidInput,
	CodeProvenanceVerificationFailed: CategoryVerification,
	CodeDigestMismatch:               CategoryVerification,
	CodeSchemaValidationFailed:       CategoryInvalidInput,
}

// KnownCode reports whether code belongs to the transport error code set.
func KnownCode(code string) bool {
	_, ok := knownCodes[code]
	return ok
}

// CategoryForCode returns the category a transport code belongs to.
func CategoryForCode(code string) Category {
	if category, ok := knownCodes[code]; ok {
		return category
	}
	return CategoryInternalFailure
}

type classifiedError struct {
	category  Category
	code      string
	hint      string
	retryable bool
	cause     error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func (e *classifiedError) Category() Category {
	return e.category
}

func (e *classifiedError) Code() string {
	return e.code
}

func (e *classifiedError) Hint() string {
	return e.hint
}

func (e *classifiedError) Retryable() bool {
	return e.retryable
}

// Wrap classifies cause. A nil cause stays nil.
func Wrap(cause error, category Category, code, hint string, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		code:      code,
		hint:      hint,
		retryable: retryable,
		cause:     cause,
	}
}

// Validation classifies malformed or missing input. Never retryable.
func Validation(code, format string, args ...any) error {
	if code == "" {
		code = CodeInvalidInput
	}
	return Wrap(fmt.Errorf(format, args...), CategoryInvalidInput, code, "fix the malformed input and retry", false)
}

// Integrity classifies a digest mismatch. The remedy is recapture, not input repair.
func Integrity(code, format string, args ...any) error {
	if code == "" {
		code = CodeDigestMismatch
	}
	return Wrap(fmt.Errorf(format, args...), CategoryVerification, code, "evidence changed after capture; recapture the source and re-emit provenance", false)
}

// NotFound reports absent evidence. code defaults to FILE_NOT_FOUND.
func NotFound(code, format string, args ...any) error {
	if code == "" {
		code = CodeFileNotFound
	}
	return Wrap(fmt.Errorf(format, args...), CategoryNotFound, code, "the referenced evidence is absent; recapture it before verifying", false)
}

// Internal classifies an unexpected failure as INTERNAL_ERROR.
func Internal(cause error) error {
	return Wrap(cause, CategoryInternalFailure, CodeInternalError, "unexpected failure; no provenance was emitted", false)
}

// CategoryOf returns the category of the first classified error in the chain.
func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

// CodeOf returns the code of the first classified error in the chain.
func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}

func RetryableOf(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}
