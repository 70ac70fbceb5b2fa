package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Run starts the dev server on addr and blocks until ctx is cancelled, then
// shuts down gracefully.
func Run(ctx context.Context, addr, secret string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	tokens, err := NewTokenService(secret, nil)
	if err != nil {
		return err
	}
	server := NewServer(NewState(nil), tokens, log)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("dev server listening", slog.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info("dev server stopped")
		return nil
	}
}
