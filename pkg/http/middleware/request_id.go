package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/yurykabanov/sitebackuper/pkg/appcontext"
)

const RequestIdHeader = "X-Request-Id"

// WithRequestId reuses the caller's request id when it sends one.
func WithRequestId(next http.Handler, nextRequestId func() string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestId := r.Header.Get(RequestIdHeader)

		if requestId == "" {
			requestId = nextRequestId()
		}

		ctx := appcontext.WithRequestId(r.Context(), requestId)

		w.Header().Set(RequestIdHeader, requestId)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func DefaultRequestIdProvider() string {
	return uuid.NewString()
}
