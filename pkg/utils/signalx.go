package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 5 * time.Second

// WatchSignal blocks until SIGTERM or SIGINT arrives, or ctx is done.
func WatchSignal(ctx context.Context) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signalCh)
	select {
	case sig := <-signalCh:
		GetLogger().Infof("received %s", sig)
	case <-ctx.Done():
	}
}

// Serve runs an http.Server on port until ctx is done, then shuts it down
// gracefully. It returns once the listener is bound or has failed.
func Serve(ctx context.Context, name string, h http.Handler, port int) error {
	logger := GetLogger()
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: h,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("shutdown %s server err: %s", name, err)
			return
		}
		logger.Infof("%s server shutdown", name)
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		logger.Infof("%s server listening on :%d", name, port)
		return nil
	}
}

// ListenAndServe serves h on port until a termination signal arrives.
func ListenAndServe(h http.Handler, port int) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := Serve(ctx, "http", h, port); err != nil {
		return err
	}
	WatchSignal(ctx)

	return nil
}
