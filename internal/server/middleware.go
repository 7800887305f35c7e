package server

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mkarimof/filedepot/internal/appctx"
)

// RequestLoggerMiddleware enriches the request context with a logger carrying
// the chi request ID, so downstream code logging via appctx gets correlated
// lines for free.
func RequestLoggerMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := base
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				log = log.With("request_id", reqID)
			}
			next.ServeHTTP(w, r.WithContext(appctx.WithLogger(r.Context(), log)))
		})
	}
}

// AccessLogMiddleware writes one structured line per request once the
// response has been sent.
func AccessLogMiddleware(proxies *TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			appctx.GetLogger(r.Context()).Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", proxies.ClientIPString(r),
			)
		})
	}
}
