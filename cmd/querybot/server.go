package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/querybot/internal/api"
	"github.com/kalambet/querybot/internal/conversation"
	"github.com/kalambet/querybot/internal/dbtool"
	"github.com/kalambet/querybot/internal/metrics"
	"github.com/kalambet/querybot/internal/queryservice"
	"github.com/kalambet/querybot/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference Query Service (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the conversation over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "querybot version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			printWarning("closing storage: %v", err)
		}
	}()
	slog.Info("storage ready", "data_dir", cfg.Storage.DataDir)

	m := metrics.New()
	handler := api.NewQueryServiceHandler(api.Deps{
		Store:    store,
		Answerer: dbtool.New(store, slog.Default()),
		Metrics:  m,
		Logger:   slog.Default(),
	})

	if cfg.Metrics.Addr != "" {
		stopMetrics := startMetricsServer(cfg.Metrics.Addr, m)
		defer stopMetrics()
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "querybot listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runMCP serves one conversation session over stdin/stdout. Logs go to
// stderr so they never corrupt the protocol stream.
func runMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		m = metrics.New()
		stopMetrics := startMetricsServer(cfg.Metrics.Addr, m)
		defer stopMetrics()
	}

	c := conversation.New(
		queryservice.NewClient(cfg.API.BaseURL, cfg.API.TimeoutDuration()),
		conversation.Options{
			UserID:      cfg.API.UserID,
			MaxInFlight: int64(cfg.Session.MaxInFlight),
			Metrics:     m,
		},
	)
	defer c.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{Conversation: c})
	slog.Info("MCP server started (stdio transport)", "session", c.Session(), "query_service", cfg.API.BaseURL)

	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

// startMetricsServer serves m on addr in the background and returns a func
// that shuts the listener down.
func startMetricsServer(addr string, m *metrics.Metrics) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics listener", "addr", addr, "error", err)
		}
	}()
	slog.Debug("metrics listening", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
