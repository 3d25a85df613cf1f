// internal/cli/output.go
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/primer-cli/primerbatch/internal/batch"
	"github.com/primer-cli/primerbatch/internal/browser"
	"github.com/primer-cli/primerbatch/internal/coords"
	"github.com/primer-cli/primerbatch/internal/liftover"
	"github.com/primer-cli/primerbatch/internal/params"
)

// Exit codes
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1 // General errors
	ExitCodeUsage   = 2 // Usage errors (invalid command, missing args, etc.)
)

var lastOutputError error

// UsageError represents a usage/input error (exit code 2)
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// NewUsageError creates a new usage error
func NewUsageError(msg string) error {
	return &UsageError{Message: msg}
}

// OutputResult outputs the result as JSON or formatted text
func OutputResult(data interface{}) error {
	if flagJSON {
		return OutputJSON(data)
	}
	return OutputText(data)
}

// OutputJSON outputs data as JSON
func OutputJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// OutputText outputs data as human-readable text. Types implement
// TextOutput() string; anything else falls back to JSON.
func OutputText(data interface{}) error {
	if t, ok := data.(interface{ TextOutput() string }); ok {
		fmt.Println(t.TextOutput())
		return nil
	}
	return OutputJSON(data)
}

// OutputError outputs an error once, as JSON on stdout or text on stderr
func OutputError(err error) {
	var silent *silentError
	if err == nil || errors.As(err, &silent) {
		return
	}
	if lastOutputError != nil && lastOutputError.Error() == err.Error() {
		return
	}
	lastOutputError = err

	if flagJSON {
		OutputJSON(ErrorResponse{
			Error: ErrorDetail{
				Code:    getErrorCode(err),
				Message: err.Error(),
			},
		})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
	}
}

// ResetErrorOutput resets the error output guard (for testing)
func ResetErrorOutput() {
	lastOutputError = nil
}

// GetExitCode returns the appropriate exit code for an error
func GetExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	if isUsageError(err) {
		return ExitCodeUsage
	}
	return ExitCodeError
}

func isUsageError(err error) bool {
	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return true
	}
	// cobra reports these as plain errors
	msg := err.Error()
	return strings.Contains(msg, "unknown command") ||
		strings.Contains(msg, "unknown flag") ||
		strings.Contains(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "requires at least") ||
		strings.Contains(msg, "accepts at most") ||
		strings.Contains(msg, "accepts ") ||
		strings.Contains(msg, "invalid argument")
}

// ErrorResponse is the standard error format
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeInvalidParameters    = "INVALID_PARAMETERS"
	ErrCodeUsage                = "USAGE_ERROR"
	ErrCodeConverterUnavailable = "CONVERTER_UNAVAILABLE"
	ErrCodeNoMapping            = "NO_MAPPING"
	ErrCodeBrowser              = "BROWSER_ERROR"
	ErrCodeBusy                 = "BUSY"
	ErrCodeBatchFailed          = "BATCH_FAILED"
	ErrCodeTimeout              = "TIMEOUT"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

func getErrorCode(err error) string {
	var paramErr *params.ValidationError
	switch {
	case isUsageError(err):
		return ErrCodeUsage
	case errors.As(err, &paramErr):
		return ErrCodeInvalidParameters
	case errors.Is(err, coords.ErrFormat), errors.Is(err, coords.ErrChromosome), errors.Is(err, coords.ErrPosition):
		return ErrCodeInvalidInput
	case errors.Is(err, coords.ErrConverterUnavailable):
		return ErrCodeConverterUnavailable
	case errors.Is(err, liftover.ErrNoMapping):
		return ErrCodeNoMapping
	case errors.Is(err, batch.ErrBusy):
		return ErrCodeBusy
	case errors.Is(err, batch.ErrEmptyBatch), errors.Is(err, batch.ErrSessionLost):
		return ErrCodeBatchFailed
	case errors.Is(err, browser.ErrNoSession), errors.Is(err, browser.ErrElementNotFound):
		return ErrCodeBrowser
	case errors.Is(err, browser.ErrNewTabTimeout):
		return ErrCodeTimeout
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "invalid") {
		return ErrCodeInvalidInput
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return ErrCodeTimeout
	}
	return ErrCodeInternal
}
