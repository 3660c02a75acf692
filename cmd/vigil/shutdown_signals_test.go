package main

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"vigil/internal/logging"
)

func TestWatchShutdownSignalsCancelsOnce(t *testing.T) {
	logger := logging.NewLoggerWithOutput(logging.NewBuffer(10), logging.LevelError, nil)

	ctx, cancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 2)
	stop := watchShutdownSignals(logger, cancel, signalCh)
	defer stop()

	signalCh <- syscall.SIGINT
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("context never cancelled after signal")
	}

	// A second signal is absorbed without panicking on the spent cancel.
	signalCh <- syscall.SIGTERM
	time.Sleep(50 * time.Millisecond)
}

func TestWatchShutdownSignalsNilChannel(t *testing.T) {
	stop := watchShutdownSignals(nil, nil, nil)
	stop()
}
