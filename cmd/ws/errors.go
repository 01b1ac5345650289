package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/source"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
)

// Exit codes.
const (
	exitOK         = 0
	exitNoWork     = 1 // no eligible work, unresolved blockers, escalations, runtime failures
	exitStructural = 2 // rejected input: parse errors, unknown ids, cycles, invalid values
)

// exitError carries an explicit exit code. A nil err exits quietly; the
// command has already printed what the user needs.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// silentExit ends the command with code and no further output.
func silentExit(code int) error {
	return &exitError{code: code}
}

// usageError marks argument mistakes as structural.
func usageError(err error) error {
	return &exitError{code: exitStructural, err: err}
}

// exactArgs is cobra.ExactArgs with a structural exit code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// exitCode classifies err in one place.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if storage.IsStructural(err) || errors.Is(err, source.ErrParse) {
		return exitStructural
	}
	return exitNoWork
}

// reportError prints err (unless it is a silent exit) and returns the exit code.
func reportError(w io.Writer, err error) int {
	var ee *exitError
	if !errors.As(err, &ee) || ee.err != nil {
		fmt.Fprintf(w, "%s %v\n", color.New(color.FgRed).Sprint("Error:"), err)
	}
	return exitCode(err)
}
