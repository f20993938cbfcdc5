package logging

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestLogger returns chi middleware that logs one structured line per
// request.
func RequestLogger(component string) func(http.Handler) http.Handler {
	logger := GetLogger(component)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status_code", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
