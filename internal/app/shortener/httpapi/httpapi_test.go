package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hexlink.local/internal/app/shortener"
	"hexlink.local/internal/app/shortener/repo"
	"hexlink.local/internal/app/shortener/stats"
	"hexlink.local/internal/platform/httpmiddleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
)

const prefix = "https://shortlinkdomain.com/"

func setupTestServer(t *testing.T, store shortener.LinkStore, reader shortener.LinkReader) (http.Handler, *stats.ChannelCollector) {
	t.Helper()
	svc := shortener.NewService(store, reader, shortener.Options{DomainPrefix: prefix, Mode: shortener.ModeInsertRetry})
	collector := stats.NewChannelCollector(16)
	t.Cleanup(collector.Close)

	r := chi.NewRouter()
	r.Use(httpmiddleware.Recovery, httpmiddleware.ReqID)
	r.Get("/healthz", Healthz)
	r.Route("/api/v1", func(api chi.Router) {
		RegisterAPIRoutes(api, svc)
	})
	RegisterPublicRoutes(r, svc, collector)
	return r, collector
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpmiddleware.ErrorResponse {
	t.Helper()
	var body httpmiddleware.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestCreateFindAndRedirect(t *testing.T) {
	store := repo.NewMemoryStore()
	h, collector := setupTestServer(t, store, store)

	rec := do(t, h, http.MethodPost, "/api/v1/links", `{"url":"example.com/page-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var created CreateLinkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if !shortener.ValidID(created.ID) {
		t.Fatalf("id %q is not 8 hex chars", created.ID)
	}
	want := CreateLinkResponse{ID: created.ID, ShortURL: prefix + created.ID, URL: "https://example.com/page-1"}
	if diff := cmp.Diff(want, created); diff != "" {
		t.Fatalf("create response mismatch (-want +got):\n%s", diff)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/links/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("find status: got %d", rec.Code)
	}
	var found LinkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &found); err != nil {
		t.Fatalf("decode find: %v", err)
	}
	if found.ID != created.ID || found.URL != created.URL || found.CreatedAt.IsZero() {
		t.Fatalf("find response: %+v", found)
	}

	rec = do(t, h, http.MethodGet, "/"+created.ID, "")
	if rec.Code != http.StatusFound {
		t.Fatalf("redirect status: got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != created.URL {
		t.Fatalf("Location: got %q, want %q", loc, created.URL)
	}

	select {
	case ev := <-collector.Events():
		if ev.ID != created.ID {
			t.Fatalf("click event id: got %q", ev.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no click event collected")
	}
}

func TestCreate_InvalidInput(t *testing.T) {
	store := repo.NewMemoryStore()
	h, _ := setupTestServer(t, store, store)

	cases := []struct {
		name string
		body string
		code string
	}{
		{"not json", `{"url":`, "invalid_json"},
		{"invalid url", `{"url":"abcdefg"}`, "invalid_url"},
		{"illegal host char", `{"url":"https://exa+mple.com"}`, "invalid_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/links", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400", rec.Code)
			}
			body := decodeError(t, rec)
			if body.Code != tc.code || body.RequestID != "req-1" {
				t.Fatalf("error body: %+v", body)
			}
		})
	}

	ids, _ := store.ListIdentifiers(context.Background())
	if len(ids) != 0 {
		t.Fatalf("store changed by rejected input: %v", ids)
	}
}

type brokenStore struct{}

func (brokenStore) ListIdentifiers(context.Context) (map[string]struct{}, error) {
	return nil, shortener.ErrStoreUnavailable
}

func (brokenStore) Insert(context.Context, string, string) error {
	return errors.Join(shortener.ErrStoreUnavailable, errors.New("dial tcp 10.0.0.5:5432: connection refused"))
}

func (brokenStore) Lookup(context.Context, string) (shortener.Link, error) {
	return shortener.Link{}, shortener.ErrStoreUnavailable
}

func TestStorageFailureIs500WithoutCause(t *testing.T) {
	h, _ := setupTestServer(t, brokenStore{}, brokenStore{})

	rec := do(t, h, http.MethodPost, "/api/v1/links", `{"url":"example.com"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("create status: got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Code != "storage_failure" || body.Message != "Shortened link couldn't be generated." {
		t.Fatalf("error body: %+v", body)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Fatalf("response leaks the cause: %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/abcdabcd", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("redirect status: got %d", rec.Code)
	}
}

func TestNotFound(t *testing.T) {
	store := repo.NewMemoryStore()
	h, collector := setupTestServer(t, store, store)

	for _, path := range []string{"/api/v1/links/ffffffff", "/ffffffff", "/not-an-id"} {
		rec := do(t, h, http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("GET %s: got %d, want 404", path, rec.Code)
		}
		if body := decodeError(t, rec); body.Code != "not_found" {
			t.Fatalf("GET %s: error body %+v", path, body)
		}
	}
	select {
	case ev := <-collector.Events():
		t.Fatalf("click recorded for a miss: %+v", ev)
	default:
	}
}

func TestHealthzBeatsWildcard(t *testing.T) {
	store := repo.NewMemoryStore()
	h, _ := setupTestServer(t, store, store)

	rec := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: got %d %q", rec.Code, rec.Body.String())
	}
}
