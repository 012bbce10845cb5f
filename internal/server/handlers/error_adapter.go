package handlers

import (
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/protsearch/internal/errors"
)

// HTTPErrorResponder renders err onto w.
type HTTPErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

var httpErrorResponder HTTPErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder replaces the responder used by all handlers. Nil
// restores the default envelope writer.
func SetHTTPErrorResponder(fn HTTPErrorResponder) {
	if fn == nil {
		ResetHTTPErrorResponder()
		return
	}
	httpErrorResponder = fn
}

func ResetHTTPErrorResponder() {
	httpErrorResponder = apperrors.RespondWithError
}

// LoggingErrorResponder writes the default envelope and logs server-side
// failures with their underlying cause, which the envelope hides from
// clients. Client errors are not logged.
func LoggingErrorResponder(logger *zap.Logger) HTTPErrorResponder {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		httpErr := apperrors.FromError(err)
		if httpErr.Status >= http.StatusInternalServerError {
			logger.Error("Request failed",
				zap.String("request_id", apperrors.RequestID(r)),
				zap.String("path", r.URL.Path),
				zap.String("code", httpErr.Code),
				zap.Error(err))
		}
		apperrors.WriteEnvelope(w, httpErr.Envelope(apperrors.RequestID(r)), httpErr.Status)
	}
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}
