package httpmiddleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// print stack trace for debug
func stack(message string) string {
	var pcs [32]uintptr
	n := runtime.Callers(4, pcs[:]) // skip runtime frames and the deferred func

	var str strings.Builder
	str.WriteString(message + "\nTraceback:")
	for _, pc := range pcs[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line := fn.FileLine(pc)
		str.WriteString(fmt.Sprintf("\n\t%s:%d", file, line))
	}
	return str.String()
}

// Recovery turns a handler panic into a logged 500. If the handler already
// started the response only the log is written.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}
			slog.Error("panic recovered",
				"request_id", RequestID(r),
				"method", r.Method,
				"path", r.URL.Path,
				"panic", err,
				"stack", stack(fmt.Sprintf("%v", err)),
			)
			if ww.Status() != 0 {
				return
			}
			WriteError(ww, r, http.StatusInternalServerError, "internal", "Internal Server Error")
		}()
		next.ServeHTTP(ww, r)
	})
}
