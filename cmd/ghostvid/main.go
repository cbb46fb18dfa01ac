// Command ghostvid turns a text file into a montage of YouTube clips whose
// captions speak each sentence.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/config"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/montage"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/runner"
)

// Process exit codes.
const (
	exitOK           = 0
	exitFailure      = 1
	exitUsage        = 2
	exitMissingInput = 3
	exitMissingKey   = 4
	exitEmptyPlan    = 5
	exitMissingAudio = 6
)

// usageError marks errors caused by how the command was invoked.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute())
}

func execute() int {
	cmd := newRootCmd()
	err := cmd.Execute()
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	code := exitCode(err)
	if code == exitUsage {
		fmt.Fprintln(os.Stderr, cmd.UsageString())
	}
	return code
}

func exitCode(err error) int {
	var uerr *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &uerr), errors.Is(err, runner.ErrInvalidOutput):
		return exitUsage
	case errors.Is(err, runner.ErrMissingInputFile):
		return exitMissingInput
	case errors.Is(err, config.ErrMissingAPIKey):
		return exitMissingKey
	case errors.Is(err, montage.ErrEmptyPlan):
		return exitEmptyPlan
	case errors.Is(err, runner.ErrMissingAudioFile):
		return exitMissingAudio
	}
	return exitFailure
}
