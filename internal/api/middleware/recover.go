package middleware

import (
	"fmt"
	"net/http"

	"github.com/ayo6706/crossborder-liquidity/internal/api/problem"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RecoverMiddleware turns a panic into a 500 problem response, logs the stack
// and marks the request span as failed.
func RecoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("trace_id", TraceIDFromContext(r.Context())),
					zap.Stack("stack"),
				)
				span := trace.SpanFromContext(r.Context())
				span.SetStatus(codes.Error, fmt.Sprintf("panic: %v", rec))

				problem.Write(w, r, http.StatusInternalServerError,
					problem.Type("internal-server-error"), "", "unexpected server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
