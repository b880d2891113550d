package main

import (
	"encoding/json"
	"fmt"
	"os"

	coreerrors "github.com/davidahmann/evidencekit/core/errors"
)

const (
	exitOK              = 0
	exitInternalFailure = 1
	exitVerifyFailed    = 2
	exitNotFound        = 3
	exitInvalidInput    = 6
)

type errorOutput struct {
	OK            bool   `json:"ok"`
	Error         string `json:"error"`
	ErrorCode     string `json:"error_code"`
	ErrorCategory string `json:"error_category"`
	Retryable     bool   `json:"retryable"`
	Hint          string `json:"hint,omitempty"`
}

func exitCodeForError(err error) int {
	if err == nil {
		return exitOK
	}
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryInvalidInput:
		return exitInvalidInput
	case coreerrors.CategoryVerification:
		return exitVerifyFailed
	case coreerrors.CategoryNotFound:
		return exitNotFound
	default:
		return exitInternalFailure
	}
}

func newErrorOutput(err error) errorOutput {
	category := coreerrors.CategoryOf(err)
	if category == "" {
		category = coreerrors.CategoryInternalFailure
	}
	code := coreerrors.CodeOf(err)
	if !coreerrors.KnownCode(code) {
		code = defaultErrorCode(category)
	}
	hint := coreerrors.HintOf(err)
	if hint == "" {
		hint = defaultHint(category)
	}
	return errorOutput{
		OK:            false,
		Error:         err.Error(),
		ErrorCode:     code,
		ErrorCategory: string(category),
		Retryable:     coreerrors.RetryableOf(err),
		Hint:          hint,
	}
}

func defaultErrorCode(category coreerrors.Category) string {
	switch category {
	case coreerrors.CategoryInvalidInput:
		return coreerrors.CodeInvalidInput
	case coreerrors.CategoryVerification:
		return coreerrors.CodeProvenanceVerificationFailed
	case coreerrors.CategoryNotFound:
		return coreerrors.CodeFileNotFound
	case coreerrors.CategoryIOFailure:
		return coreerrors.CodeCaptureFailed
	default:
		return coreerrors.CodeInternalError
	}
}

func defaultHint(category coreerrors.Category) string {
	switch category {
	case coreerrors.CategoryInvalidInput:
		return "check command usage and input files"
	case coreerrors.CategoryVerification:
		return "evidence changed after capture; re-run scan to recapture"
	case coreerrors.CategoryNotFound:
		return "check the output directory and re-run scan"
	default:
		return "retry after checking local environment and logs"
	}
}

// writeFailure reports err and returns the matching exit code.
func writeFailure(jsonOutput bool, err error) int {
	exitCode := exitCodeForError(err)
	output := newErrorOutput(err)
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	fmt.Fprintf(os.Stderr, "evidencekit error [%s]: %s\n", output.ErrorCode, output.Error)
	if output.Hint != "" {
		fmt.Fprintf(os.Stderr, "hint: %s\n", output.Hint)
	}
	return exitCode
}

func writeJSONOutput(output any, exitCode int) int {
	encoded, err := json.Marshal(output)
	if err != nil {
		fmt.Println(`{"ok":false,"error":"failed to encode output","error_code":"INTERNAL_ERROR","error_category":"internal_failure","retryable":false}`)
		return exitInternalFailure
	}
	fmt.Println(string(encoded))
	return exitCode
}
