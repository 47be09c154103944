package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ayo6706/crossborder-liquidity/internal/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// TraceMiddleware ensures each request has a trace identifier propagated via
// context and headers, and wraps the request in an OpenTelemetry span.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx, span := observability.StartSpan(r.Context(), fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
			attribute.String("request.trace_id", traceID),
		)
		ctx = contextWithTraceID(ctx, traceID)
		w.Header().Set("X-Trace-ID", traceID)

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rw.status))
		var err error
		if rw.status >= http.StatusInternalServerError {
			err = fmt.Errorf("http status %d", rw.status)
		}
		observability.EndSpan(span, err)
	})
}

func contextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceContextKey, traceID)
}
