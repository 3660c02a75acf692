package main

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"vigil/internal/logging"
)

func TestRunServerServesAndShutsDown(t *testing.T) {
	logger := logging.NewLoggerWithOutput(logging.NewBuffer(10), logging.LevelError, nil)

	listener, port, err := listenOn("127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping server test (listener unavailable): %v", err)
	}
	listener.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	go func() {
		serverDone <- runServer(ctx, addr, mux, logger)
	}()

	url := "http://" + addr + "/healthz"
	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("server never came up: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		cancel()
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-serverDone:
		if err != nil {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server never shut down")
	}
}

func TestListenOnRejectsBusyPort(t *testing.T) {
	listener, port, err := listenOn("127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping listener test: %v", err)
	}
	defer listener.Close()

	if _, _, err := listenOn(fmt.Sprintf("127.0.0.1:%d", port)); err == nil {
		t.Fatalf("expected error binding a busy port")
	}
}
