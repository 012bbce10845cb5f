package jobregistry

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSequence indicates the submitted sequence contains characters
	// outside the 20 standard amino acid letters, or is empty.
	ErrInvalidSequence = errors.New("invalid protein sequence")

	// ErrJobNotFound indicates no query file exists for the job id.
	ErrJobNotFound = errors.New("job not found")
)

// ResultParseError reports a result file that does not match the expected
// tabular layout.
type ResultParseError struct {
	// Path is the result file.
	Path string

	// Line is the 1-based line number.
	Line int

	// Column is the 0-based column index, or -1 when the row is too short.
	Column int

	Err error
}

func (e *ResultParseError) Error() string {
	if e.Column < 0 {
		return fmt.Sprintf("parse %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s line %d column %d: %v", e.Path, e.Line, e.Column, e.Err)
}

func (e *ResultParseError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if err means the job does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

// IsResultParseError returns true if err wraps a *ResultParseError.
func IsResultParseError(err error) bool {
	var pe *ResultParseError
	return errors.As(err, &pe)
}
