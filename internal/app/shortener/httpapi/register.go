package httpapi

import (
	"net/http"

	"hexlink.local/internal/app/shortener"
	"hexlink.local/internal/app/shortener/stats"

	"github.com/go-chi/chi/v5"
)

// RegisterAPIRoutes 在给定路由（通常是 /api/v1 子路由）下挂载 JSON API。
//
// 本包只做传输层的翻译：HTTP <-> Service，领域逻辑在 internal/app/shortener。
func RegisterAPIRoutes(r chi.Router, svc *shortener.Service) {
	r.Post("/links", NewCreateHandler(svc))
	r.Get("/links/{id}", NewFindHandler(svc))
}

// RegisterPublicRoutes 在根路由上挂载跳转入口 GET /{id}，方便直接在浏览器里打开短链。
func RegisterPublicRoutes(r chi.Router, svc *shortener.Service, collector stats.Collector) {
	r.Get("/{id}", NewRedirectHandler(svc, collector))
}

// Healthz is the liveness probe of the public server.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
