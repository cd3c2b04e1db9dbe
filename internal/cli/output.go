package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failure (ingestion error, record not found, etc.)
	ExitCommandError = 2 // Command error (invalid arguments, database not found, etc.)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
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
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // error code constant
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// JSON encodes a successful result as an indented CLIResponse.
func (f *OutputFormatter) JSON(data interface{}) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(CLIResponse{Status: "ok", Data: data})
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
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
