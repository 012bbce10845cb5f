package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/protsearch/internal/errors"
)

// ErrorResponse is the JSON envelope written on errors.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery converts panics in downstream handlers into a 500 error envelope
// and logs them to logger.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := apperrors.RequestID(r)
				logger.Error("Handler panicked",
					zap.String("request_id", requestID),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))

				envelope := errors.NewErrorEnvelope(apperrors.CodeInternal, fmt.Sprintf("panic: %v", rec))
				if requestID != "" {
					envelope = envelope.WithCorrelationID(requestID)
				}
				writeErrorResponse(w, envelope, http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func writeErrorResponse(w http.ResponseWriter, envelope *errors.ErrorEnvelope, statusCode int) {
	apperrors.WriteEnvelope(w, envelope, statusCode)
}
