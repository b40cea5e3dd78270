package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mycotrack/wallet-ledger/pkg/logger"
)

// NewStructuredLogger logs one line per request and puts the request id on the request context so
// every log line written while serving it carries the id.
func NewStructuredLogger(logg *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestID := middleware.GetReqID(ctx); requestID != "" {
				ctx = logg.WithRequestID(ctx, requestID)
				r = r.WithContext(ctx)
			}
			tww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			start := time.Now()
			defer func() {
				status := tww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				logCtx := logg.WithFields(ctx, map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"remote_addr": r.RemoteAddr,
					"status":      status,
					"bytes":       tww.BytesWritten(),
					"latency_ms":  time.Since(start).Milliseconds(),
				})

				if status >= 500 {
					logg.Error(logCtx, "server error", fmt.Errorf("%s %s returned %d", r.Method, r.URL.Path, status))
				} else {
					logg.Info(logCtx, "request completed")
				}
			}()

			next.ServeHTTP(tww, r)
		}
		return http.HandlerFunc(fn)
	}
}
