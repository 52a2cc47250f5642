package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per request at info (warn for 4xx, error
// for 5xx) with the chi request id.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := log.Info()
			switch {
			case status >= 500:
				ev = log.Error()
			case status >= 400:
				ev = log.Warn()
			}
			ev.Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// requestLogger returns log tagged with the request id and, once
// authenticated, the acting user.
func requestLogger(r *http.Request, log zerolog.Logger) *zerolog.Logger {
	ctx := log.With().Str("request_id", middleware.GetReqID(r.Context()))
	if p, ok := PrincipalFrom(r.Context()); ok {
		ctx = ctx.Str("user", p.User)
	}
	l := ctx.Logger()
	return &l
}
