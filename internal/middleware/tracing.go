package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// Tracing assigns every request an id, taken from X-Request-ID, else the
// active OpenTelemetry trace id, else a fresh UUID, and echoes it back.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())

		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			if sc := span.SpanContext(); sc.HasTraceID() {
				requestID = sc.TraceID().String()
			} else {
				requestID = uuid.New().String()
			}
		}
		span.SetAttributes(attribute.String("http.request_id", requestID))

		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
