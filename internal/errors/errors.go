// Package errors maps domain errors to gofulmen error envelopes and renders
// them in the shape returned by the HTTP API:
//
//	{"error": {"code": "NOT_FOUND", "message": "...", "details": {...}, "request_id": "..."}}
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/3leaps/protsearch/pkg/jobid"
	"github.com/3leaps/protsearch/pkg/jobregistry"
)

// Error codes. These strings are part of the API contract.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInvalidSequence  = "INVALID_SEQUENCE"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeTooManyRequests  = "TOO_MANY_REQUESTS"
	CodeTimeout          = "TIMEOUT"
	CodeResultParse      = "RESULT_PARSE_ERROR"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

const jobNotFoundMessage = "Invalid job_id. It may have expired or is not in the system."

// ErrorBody is the payload of an error response.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// HTTPErrorResponse is the envelope written for every API error.
type HTTPErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// HTTPError is an error that already knows its HTTP rendering.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func New(status int, code, message string) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message}
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of e carrying details.
func (e *HTTPError) WithDetails(details map[string]any) *HTTPError {
	c := *e
	c.Details = details
	return &c
}

// Envelope converts e into a gofulmen error envelope. The request id, when
// known, becomes the correlation id and details become envelope context.
func (e *HTTPError) Envelope(requestID string) *gferrors.ErrorEnvelope {
	envelope := gferrors.NewErrorEnvelope(e.Code, e.Message)
	if requestID != "" {
		envelope = envelope.WithCorrelationID(requestID)
	}
	if len(e.Details) > 0 {
		if withContext, err := envelope.WithContext(e.Details); err == nil {
			envelope = withContext
		}
	}
	return envelope
}

// FromError classifies err. Unknown errors become a 500 with a generic
// message so internals do not leak to clients.
func FromError(err error) *HTTPError {
	var httpErr *HTTPError
	if stderrors.As(err, &httpErr) {
		return httpErr
	}

	var parseErr *jobregistry.ResultParseError
	switch {
	case stderrors.Is(err, jobregistry.ErrInvalidSequence):
		return &HTTPError{
			Status:  http.StatusBadRequest,
			Code:    CodeInvalidSequence,
			Message: "Protein sequence queried found to be invalid. Enter only valid amino acid letters.",
			Err:     err,
		}
	case stderrors.Is(err, jobid.ErrInvalidFormat), stderrors.Is(err, jobregistry.ErrJobNotFound):
		return &HTTPError{Status: http.StatusNotFound, Code: CodeNotFound, Message: jobNotFoundMessage, Err: err}
	case stderrors.As(err, &parseErr):
		return &HTTPError{
			Status:  http.StatusInternalServerError,
			Code:    CodeResultParse,
			Message: "Search result file could not be parsed",
			Details: map[string]any{"line": parseErr.Line, "column": parseErr.Column},
			Err:     err,
		}
	case stderrors.Is(err, context.DeadlineExceeded):
		return &HTTPError{Status: http.StatusGatewayTimeout, Code: CodeTimeout, Message: "Timed out waiting for the search to finish", Err: err}
	default:
		return &HTTPError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "Internal server error", Err: err}
	}
}

// RespondWithError writes err as a JSON error envelope.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErr := FromError(err)
	WriteEnvelope(w, httpErr.Envelope(RequestID(r)), httpErr.Status)
}

// WriteEnvelope renders envelope with the given status.
func WriteEnvelope(w http.ResponseWriter, envelope *gferrors.ErrorEnvelope, status int) {
	WriteJSON(w, status, HTTPErrorResponse{Error: ErrorBody{
		Code:      envelope.Code,
		Message:   envelope.Message,
		Details:   envelope.Context,
		RequestID: envelope.CorrelationID,
	}})
}

// RequestID returns the chi request id carried by r, or "".
func RequestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	return chimw.GetReqID(r.Context())
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NotFoundHandler renders unknown routes in the error envelope.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	RespondWithError(w, r, New(http.StatusNotFound, CodeNotFound, "Resource not found"))
}

// MethodNotAllowedHandler renders wrong-method requests in the error envelope.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	RespondWithError(w, r, New(http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed"))
}
