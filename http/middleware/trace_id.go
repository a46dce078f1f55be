// Package middleware holds the request middleware mounted in front of
// plugin endpoints.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	// TraceIDKey is the context key of the request trace id.
	TraceIDKey contextKey = "trace_id"
	// TraceIDHeader carries the trace id in and out.
	TraceIDHeader = "X-Trace-ID"
)

// TraceIDMiddleware reuses the caller's X-Trace-ID or mints a time-ordered
// one, echoes it on the response and stores it on the context.
func TraceIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(TraceIDHeader)
			if traceID == "" {
				traceID = newTraceID()
			}
			w.Header().Set(TraceIDHeader, traceID)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), TraceIDKey, traceID)))
		})
	}
}

func newTraceID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// GetTraceID returns the trace id stored on ctx, or "".
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func GetTraceIDFromRequest(r *http.Request) string {
	return GetTraceID(r.Context())
}
