package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const TraceIDKey contextKey = "trace_id"

const TraceIDHeader = "X-Trace-ID"

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// TraceID stamps every outgoing request with the trace ID carried by its
// context, generating one when absent.
func TraceID(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		traceID := GetTraceID(r.Context())
		if traceID == "" {
			traceID = uuid.New().String()
		}

		r = r.Clone(WithTraceID(r.Context(), traceID))
		r.Header.Set(TraceIDHeader, traceID)

		return next.RoundTrip(r)
	})
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}
