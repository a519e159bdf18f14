package accesslog

import (
	"net/http"
	"time"

	"github.com/KretovDmitry/nairabulk-orders/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID between client, proxy and server.
const RequestIDHeader = "X-Request-ID"

// Handler returns a middleware that records an access log message for every HTTP request being processed.
// Requests without an X-Request-ID header get a fresh one, echoed in the response.
func Handler(l logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		f := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := logger.WithRequestID(r.Context(), id)
			r = r.WithContext(ctx)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				l.With(ctx,
					"duration", time.Since(start).Milliseconds(),
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
				).Infof("%s %s %s", r.Method, r.URL.Path, r.Proto)
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(f)
	}
}
