package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// TraceName renames the active server span to "METHOD /route/{template}" once
// routing is done.
func TraceName(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		trace.SpanFromContext(r.Context()).SetName(r.Method + " " + RoutePattern(r))
	})
}
