package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/appcontext"
)

const ApiTokenHeader = "X-Api-Token"

// WithApiToken rejects requests that do not carry the configured token.
// Paths listed in public are served without a token.
func WithApiToken(next http.Handler, logger logrus.FieldLogger, token string, public ...string) http.Handler {
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := open[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		given := r.Header.Get(ApiTokenHeader)

		if token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			appcontext.LoggerFromContext(logger, r.Context()).
				WithField("request_uri", r.RequestURI).
				Warn("Request with invalid api token rejected")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"no","msg":"Invalid api token"}` + "\n"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
