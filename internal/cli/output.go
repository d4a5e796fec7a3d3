// internal/cli/output.go
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/your-org/vineyard-shop/internal/cartsession"
	"github.com/your-org/vineyard-shop/internal/domain/vat"
	"github.com/your-org/vineyard-shop/internal/pkg/money"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The cart API or VAT engine rejected the request
	ExitCommandError = 2 // Bad flags or arguments
)

// Error codes reported in JSON output.
const (
	CodeValidation = "E001"
	CodeNotFound   = "E002"
	CodeNetwork    = "E003"
	CodeUsage      = "E004"
	CodeInternal   = "E005"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error

	// Reported is set once the error was written through an OutputFormatter
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// usageError reports bad flags or arguments
func usageError(format string, args ...interface{}) *ExitError {
	return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf(format, args...)}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; keeps JSON on Writer clean
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Success outputs data as JSON, or through text for human-readable output.
func (f *OutputFormatter) Success(data interface{}, text func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	if text != nil {
		text(f.Writer)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

// Notice writes a diagnostic line regardless of verbosity
func (f *OutputFormatter) Notice(format string, args ...interface{}) {
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Fail reports err in the configured format and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(err error) error {
	code, exit := classify(err)
	if outErr := f.Error(code, err.Error(), nil); outErr != nil {
		return outErr
	}
	return &ExitError{Code: exit, Message: "command failed", Err: err, Reported: true}
}

func classify(err error) (string, int) {
	var (
		validation *cartsession.ValidationError
		notFound   *cartsession.NotFoundError
		network    *cartsession.NetworkError
		exitErr    *ExitError
	)
	switch {
	case errors.As(err, &exitErr):
		return CodeUsage, exitErr.Code
	case errors.As(err, &validation), errors.Is(err, vat.ErrInvalidAmount), errors.Is(err, money.ErrInvalidAmount):
		return CodeValidation, ExitFailure
	case errors.As(err, &notFound):
		return CodeNotFound, ExitFailure
	case errors.As(err, &network):
		return CodeNetwork, ExitFailure
	}
	return CodeInternal, ExitFailure
}
