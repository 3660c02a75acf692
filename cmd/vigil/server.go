package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"vigil/internal/logging"
)

const httpServerShutdownTimeout = 5 * time.Second

func listenOn(address string) (net.Listener, int, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, 0, err
	}
	tcpAddress, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		_ = listener.Close()
		return nil, 0, fmt.Errorf("unexpected listener address: %T", listener.Addr())
	}
	return listener, tcpAddress.Port, nil
}

// runServer serves until the context is cancelled, then drains in-flight
// requests within the shutdown timeout. Live websockets are closed by the
// http.Server once the timeout expires.
func runServer(ctx context.Context, address string, handler http.Handler, logger *logging.Logger) error {
	listener, port, err := listenOn(address)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	if logger != nil {
		logger.Info("vigil listening", map[string]string{
			"addr": listener.Addr().String(),
			"port": fmt.Sprintf("%d", port),
		})
	}

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpServerShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		if logger != nil {
			logger.Warn("graceful shutdown incomplete; closing", map[string]string{
				"error": err.Error(),
			})
		}
		_ = server.Close()
	}
	<-serveErr
	if logger != nil {
		logger.Info("vigil stopped", nil)
	}
	return nil
}
