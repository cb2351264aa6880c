package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"hexlink.local/internal/platform/config"
)

func New(cfg config.Config, handler http.Handler) *http.Server {
	return NewWithAddr(cfg, cfg.Addr, handler)
}

// NewWithAddr is New with the listen address overridden (admin server).
func NewWithAddr(cfg config.Config, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		Addr:              addr,
	}
}

// Run serves until stopCtx is done, then shuts down within shutdownTimeout.
func Run(stopCtx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stopCtx.Done():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}
