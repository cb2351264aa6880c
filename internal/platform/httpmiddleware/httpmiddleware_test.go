package httpmiddleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func TestRequestID_PreservesIncoming(t *testing.T) {
	r := chi.NewRouter()
	r.Use(ReqID)
	r.Get("/id", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(RequestID(r)))
	})

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "abc" {
		t.Fatalf("response X-Request-ID: got %q, want %q", got, "abc")
	}
	if got := rec.Body.String(); got != "abc" {
		t.Fatalf("body: got %q, want %q", got, "abc")
	}
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	r := chi.NewRouter()
	r.Use(ReqID)
	r.Get("/id", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(RequestID(r)))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/id", nil))

	got := rec.Header().Get(RequestIDHeader)
	if len(got) != 32 {
		t.Fatalf("response X-Request-ID: got %q, want 32 hex chars", got)
	}
	if rec.Body.String() != got {
		t.Fatalf("handler saw %q, response carries %q", rec.Body.String(), got)
	}
}

func TestAccessLog_EmitsJSONFields(t *testing.T) {
	buf := captureLogs(t)

	r := chi.NewRouter()
	r.Use(Recovery, ReqID, AccessLog)
	r.Get("/get", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/get", nil)
	req.Header.Set(RequestIDHeader, "abc")
	r.ServeHTTP(httptest.NewRecorder(), req)

	dec := json.NewDecoder(buf)
	for {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			break
		}
		if m["msg"] != "access" {
			continue
		}
		if m["request_id"] != "abc" {
			t.Fatalf("request_id: got %v, want %q", m["request_id"], "abc")
		}
		if m["method"] != http.MethodGet || m["path"] != "/get" {
			t.Fatalf("method/path: got %v %v", m["method"], m["path"])
		}
		if m["status"] != float64(http.StatusTeapot) || m["bytes"] != float64(2) {
			t.Fatalf("status/bytes: got %v %v", m["status"], m["bytes"])
		}
		return
	}
	t.Fatalf("did not find access log entry\nraw=%q", buf.String())
}

func TestRecovery_Returns500AndLogs(t *testing.T) {
	buf := captureLogs(t)

	r := chi.NewRouter()
	r.Use(ReqID, Recovery)
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("Content-Type: got %q, want contains %q", ct, "application/json")
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.RequestID != "abc" || body.Code != "internal" {
		t.Fatalf("body: got %+v", body)
	}
	if !strings.Contains(buf.String(), `"request_id":"abc"`) {
		t.Fatalf("log does not contain request_id: raw=%q", buf.String())
	}
}

func TestRoutePattern(t *testing.T) {
	var pattern string
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			pattern = RoutePattern(req)
		})
	})
	r.Get("/api/v1/links/{id}", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/links/abcd1234", nil))
	if pattern != "/api/v1/links/{id}" {
		t.Fatalf("RoutePattern: got %q", pattern)
	}

	if got := RoutePattern(httptest.NewRequest(http.MethodGet, "/", nil)); got != "UNMATCHED" {
		t.Fatalf("RoutePattern without chi: got %q", got)
	}
}

func TestTraceName_UsesRouteTemplate(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	old := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(old)
		_ = tp.Shutdown(context.Background())
	})

	spanValid := make(chan bool, 1)
	r := chi.NewRouter()
	r.Use(TraceName)
	r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
		spanValid <- oteltrace.SpanFromContext(r.Context()).SpanContext().IsValid()
	})
	h := otelhttp.NewHandler(r, "http")

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://example.com/abcd1234", nil))

	if ok := <-spanValid; !ok {
		t.Fatal("span context is not valid in request context")
	}
	ended := sr.Ended()
	if len(ended) == 0 {
		t.Fatal("no spans recorded")
	}
	if got := ended[0].Name(); got != "GET /{id}" {
		t.Fatalf("span name: got %q, want %q", got, "GET /{id}")
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name   string
		remote string
		header map[string]string
		want   string
	}{
		{"direct", "203.0.113.7:5555", nil, "203.0.113.7"},
		{"untrusted forwarder ignored", "203.0.113.7:5555", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.7"},
		{"trusted xff", "127.0.0.1:5555", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "1.2.3.4"},
		{"trusted cf first", "10.0.0.2:80", map[string]string{"CF-Connecting-IP": "5.6.7.8", "X-Forwarded-For": "1.2.3.4"}, "5.6.7.8"},
		{"trusted real ip", "192.168.1.9:80", map[string]string{"X-Real-IP": "9.9.9.9"}, "9.9.9.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tc.want {
				t.Fatalf("ClientIP: got %q, want %q", got, tc.want)
			}
		})
	}
}
