package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Serve 监听 srv.Addr 直到 ctx 结束，然后在 grace 时间内优雅关闭；
// cleanup 按顺序在服务器关闭后执行，监听失败时同样执行。
func Serve(ctx context.Context, srv *http.Server, grace time.Duration, logger *slog.Logger, cleanup ...func(context.Context) error) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		runCleanup(context.Background(), logger, cleanup)
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	return serveListener(ctx, srv, ln, grace, logger, cleanup)
}

func serveListener(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration, logger *slog.Logger, cleanup []func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
	case serveErr = <-errCh:
		logger.Error("api server stopped", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown", "error", err)
	}
	runCleanup(shutdownCtx, logger, cleanup)
	return serveErr
}

func runCleanup(ctx context.Context, logger *slog.Logger, cleanup []func(context.Context) error) {
	for _, fn := range cleanup {
		if err := fn(ctx); err != nil {
			logger.Warn("shutdown step failed", "error", err)
		}
	}
}
