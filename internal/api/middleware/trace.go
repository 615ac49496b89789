package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const traceHeader = "X-Trace-ID"

// TraceMiddleware assigns every request a trace id and echoes it back in
// the response. Gateway webhook redeliveries keep their caller-supplied id,
// so retries of the same notify correlate in the logs.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set(traceHeader, traceID)
		ctx := context.WithValue(r.Context(), traceContextKey, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
