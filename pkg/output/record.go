// Package output writes job listings as newline-delimited JSON.
//
// Every line is a Record envelope whose Data payload depends on Type, so
// consumers can stream the output and dispatch on the type field.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record types. Versioned so payloads can evolve without breaking parsers.
const (
	TypeJob     = "protsearch.job.v1"
	TypeError   = "protsearch.error.v1"
	TypeSummary = "protsearch.summary.v1"
)

// Record is the envelope for every JSONL line.
type Record struct {
	Type string          `json:"type"`
	TS   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// JobRecord describes one job.
type JobRecord struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ErrorRecord reports a job that could not be inspected. Listing continues
// after an error record.
type ErrorRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	JobID   string `json:"job_id,omitempty"`
}

const (
	ErrCodeNotFound = "NOT_FOUND"
	ErrCodeInternal = "INTERNAL"
)

// SummaryRecord closes a listing.
type SummaryRecord struct {
	Jobs          int            `json:"jobs"`
	ByStatus      map[string]int `json:"by_status"`
	Errors        int            `json:"errors"`
	Duration      time.Duration  `json:"duration_ns"`
	DurationHuman string         `json:"duration"`
}

var ErrWriterClosed = errors.New("writer is closed")

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // marshal_data, marshal_record or write
	Err error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
