package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"hexlink.local/internal/app/shortener"
	"hexlink.local/internal/app/shortener/stats"
	"hexlink.local/internal/platform/httpmiddleware"
	"hexlink.local/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 64 << 10

type CreateLinkRequest struct {
	URL string `json:"url"`
}

type CreateLinkResponse struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	URL      string `json:"url"`
}

type LinkResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewCreateHandler(svc *shortener.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateLinkRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid_json", "request body must be a JSON object with a url field")
			return
		}

		link, err := svc.Shorten(r.Context(), req.URL)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		httpmiddleware.WriteJSON(w, http.StatusCreated, CreateLinkResponse{
			ID:       link.ID,
			ShortURL: link.ShortURL,
			URL:      link.URL,
		})
	}
}

func NewFindHandler(svc *shortener.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		link, err := svc.Resolve(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		httpmiddleware.WriteJSON(w, http.StatusOK, LinkResponse{
			ID:        link.ID,
			URL:       link.URL,
			CreatedAt: link.CreatedAt,
			UpdatedAt: link.UpdatedAt,
		})
	}
}

func NewRedirectHandler(svc *shortener.Service, collector stats.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		link, err := svc.Resolve(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		metrics.Redirects.Inc()

		// 异步记录点击，不阻塞跳转
		if collector != nil {
			collector.Collect(stats.ClickEvent{
				ID:        id,
				ClickedAt: time.Now(),
				IP:        httpmiddleware.ClientIP(r),
				UserAgent: r.UserAgent(),
				Referer:   r.Referer(),
			})
		}
		http.Redirect(w, r, link.URL, http.StatusFound)
	}
}

// writeServiceError maps Service outcomes onto status codes. Only the
// user-facing message leaves the process; the cause is logged.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var se *shortener.Error
	switch {
	case errors.Is(err, shortener.ErrNotFound):
		httpmiddleware.WriteError(w, r, http.StatusNotFound, "not_found", "link not found")
	case errors.As(err, &se) && se.Kind == shortener.KindInvalidURL:
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, se.Kind.String(), se.Message)
	case errors.As(err, &se):
		slog.Error("request failed", "request_id", httpmiddleware.RequestID(r), "path", r.URL.Path, "err", se.Err)
		httpmiddleware.WriteError(w, r, http.StatusInternalServerError, se.Kind.String(), se.Message)
	default:
		slog.Error("request failed", "request_id", httpmiddleware.RequestID(r), "path", r.URL.Path, "err", err)
		httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}
