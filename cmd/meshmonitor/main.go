// Command meshmonitor runs the headless mesh-monitoring daemon: it
// connects to a Meshtastic device, keeps node/chat/traceroute state in
// memory and in SQLite, runs the automation engine and optional virtual
// node server, and exposes the contract-subset HTTP surface for a UI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skobkin/meshgo/internal/app"
	"github.com/skobkin/meshgo/internal/httpapi"
)

func main() {
	if err := run(); err != nil {
		slog.Error("meshmonitor exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Error("close runtime", "error", err)
		}
	}()

	logger := rt.Core.LogManager.Logger("httpapi")

	core := httpapi.NewCore(
		rt.Domain.NodeStore,
		rt.Domain.ChatStore,
		rt.Connectivity.Traceroute,
		rt.Connectivity.Radio,
		rt.Connectivity.Radio,
		rt.Connectivity.Radio,
		rt.Connectivity.Radio,
		rt.Persistence.NodeRepo,
		rt.Persistence.MessageRepo,
		rt.Persistence.WriterQueue,
		rt.Connectivity.Snapshot,
	)
	server := httpapi.NewServer(core, logger)

	mux := http.NewServeMux()
	server.Routes(mux)

	addr := httpListenAddr()
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpSrv.Shutdown(shutdownCtx)
}

func httpListenAddr() string {
	if addr := os.Getenv("MESHMONITOR_HTTP_ADDR"); addr != "" {
		return addr
	}

	return ":8043"
}
