// ABOUTME: Fake agent server for E2E testing — serves the WebSocket agent
// ABOUTME: stream with scripted replies loaded from a TOML file.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	addr := flag.String("addr", "localhost:2718", "Listen address")
	scriptPath := flag.String("script", "", "TOML reply script (optional, echoes without one)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(*addr, *scriptPath, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, scriptPath string, logger *slog.Logger) error {
	script := DefaultScript()
	if scriptPath != "" {
		loaded, err := LoadScript(scriptPath)
		if err != nil {
			return fmt.Errorf("loading script: %w", err)
		}
		script = loaded
		logger.Info("loaded reply script", "path", scriptPath, "replies", len(script.Replies))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("/api/agent/stream", &StreamHandler{Script: script, Logger: logger})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake agent server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
