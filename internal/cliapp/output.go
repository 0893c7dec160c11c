// Package cliapp is Forkline's cobra-based command-line surface
// (spec §6): thin wiring over internal/eventstore, internal/divergence
// and internal/replay.
//
// Grounded on github.com/roach88/nysm's internal/cli package:
// RootOptions/OutputFormatter/ExitError are adapted near-verbatim from
// internal/cli/output.go and internal/cli/root.go; the diff command's
// dual JSON/text rendering follows internal/cli/trace.go's
// buildTimeline/truncateID style, re-targeted at
// original_source/forkline/cli.py's exact text template (value
// truncation at 40 chars, a 10-op cap per diff section with an
// overflow counter).
package cliapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes, matching spec §6: 0 for exact_match, 1 for any other
// status or operational error.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 1
)

// ExitError carries a specific process exit code alongside an error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError builds an ExitError with no wrapped cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError builds an ExitError wrapping an existing error.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code carried by err, or ExitFailure if
// err is not (or does not wrap) an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// RootOptions holds global flags shared by every subcommand.
type RootOptions struct {
	Verbose bool
	Format  string
	DBPath  string
}

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{"text", "json"}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// OutputFormatter renders command results as JSON or text.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// CLIResponse is the stable JSON envelope for command output.
type CLIResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error payload nested in a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PrintJSON writes data as a CLIResponse envelope.
func (f *OutputFormatter) PrintJSON(data any) error {
	return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
}

// PrintText writes a pre-rendered text body followed by a newline.
func (f *OutputFormatter) PrintText(body string) error {
	_, err := fmt.Fprintln(f.Writer, body)
	return err
}

// PrintError writes an error in the configured format.
func (f *OutputFormatter) PrintError(code, message string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.errWriter()).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message},
		})
	}
	_, err := fmt.Fprintf(f.errWriter(), "Error [%s]: %s\n", code, message)
	return err
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
