package middleware

import (
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	apperrors "github.com/3leaps/protsearch/internal/errors"
)

// RateLimit rejects requests with 429 once limiter runs out of tokens. A nil
// limiter disables the check.
func RateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiter.Reserve()
			if !res.OK() {
				writeTooManyRequests(w, r, 1)
				return
			}
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				writeTooManyRequests(w, r, int(math.Ceil(delay.Seconds())))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfter int) {
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	httpErr := apperrors.New(http.StatusTooManyRequests, apperrors.CodeTooManyRequests, "Too many submissions, retry later")
	writeErrorResponse(w, httpErr.Envelope(apperrors.RequestID(r)), httpErr.Status)
}
