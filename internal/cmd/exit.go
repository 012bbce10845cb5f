package cmd

import (
	"errors"

	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/3leaps/protsearch/pkg/jobid"
	"github.com/3leaps/protsearch/pkg/jobregistry"
)

// exitFailure is the generic failure code for errors without a more
// specific foundry code.
const exitFailure = 1

// ExitError is a command failure with a foundry process exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, jobregistry.ErrInvalidSequence):
		return int(foundry.ExitInvalidArgument)
	case jobregistry.IsNotFound(err), errors.Is(err, jobid.ErrInvalidFormat):
		return int(foundry.ExitFileNotFound)
	case jobregistry.IsResultParseError(err):
		return int(foundry.ExitFileReadError)
	default:
		return exitFailure
	}
}
