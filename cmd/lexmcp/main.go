// Command lexmcp runs the lexsearch legal-research MCP server, either as a streamable
// HTTP service or over stdio.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/lexsearch/lexmcp"
	"github.com/lexsearch/lexmcp/tools"
)

const version = "0.3.0"

var serverInfo = lexmcp.Info{
	Name:    "lexsearch",
	Version: version,
}

var (
	flagLogLevel string
	flagLogJSON  bool

	flagAddr           string
	flagEndpoint       string
	flagSessionTimeout time.Duration
	flagCaseLawURL     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "lexmcp",
		Short:        "Legal-research MCP server",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit logs as JSON")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the streamable HTTP transport",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&flagAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&flagEndpoint, "endpoint", "/mcp", "MCP endpoint path")
	serveCmd.Flags().DurationVar(&flagSessionTimeout, "session-timeout", 5*time.Minute, "idle session eviction window")
	serveCmd.Flags().StringVar(&flagCaseLawURL, "case-law-url", "https://www.courtlistener.com/api/rest/v4", "base URL of the case-law API")

	stdioCmd := &cobra.Command{
		Use:   "stdio",
		Short: "Serve the persistent stdio transport",
		RunE:  runStdIO,
	}
	stdioCmd.Flags().StringVar(&flagCaseLawURL, "case-law-url", "https://www.courtlistener.com/api/rest/v4", "base URL of the case-law API")

	rootCmd.AddCommand(serveCmd, stdioCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	registry := tools.NewRegistry(
		tools.WithLogger(logger),
		tools.WithCaseLawURL(flagCaseLawURL),
	)
	store := lexmcp.NewSessionStore(flagSessionTimeout,
		lexmcp.WithSessionStoreLogger(logger),
	)
	store.Start()

	dispatcher := lexmcp.NewDispatcher(serverInfo, registry, store,
		lexmcp.WithDispatcherLogger(logger),
	)
	transport := lexmcp.NewStreamableServer(dispatcher, store,
		lexmcp.WithStreamableServerLogger(logger),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Method(http.MethodPost, flagEndpoint, transport.HandlePost())
	r.Method(http.MethodGet, flagEndpoint, transport.HandleGet())
	r.Method(http.MethodDelete, flagEndpoint, transport.HandleDelete())
	r.Method(http.MethodGet, "/healthz", transport.HandleHealth())
	r.Method(http.MethodGet, "/metadata", transport.HandleMetadata())

	srv := &http.Server{
		Addr:              flagAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("serving streamable HTTP transport",
			slog.String("addr", flagAddr),
			slog.String("endpoint", flagEndpoint),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errs:
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	if err := store.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown session store: %w", err)
	}
	return nil
}

func runStdIO(_ *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	registry := tools.NewRegistry(
		tools.WithLogger(logger),
		tools.WithCaseLawURL(flagCaseLawURL),
	)
	// The stdio connection carries a single session for its whole lifetime, so idle
	// eviction never applies; the sweep is left unstarted.
	store := lexmcp.NewSessionStore(0,
		lexmcp.WithSessionStoreLogger(logger),
	)
	dispatcher := lexmcp.NewDispatcher(serverInfo, registry, store,
		lexmcp.WithDispatcherLogger(logger),
	)
	transport := lexmcp.NewStdIOServer(dispatcher, os.Stdin, os.Stdout,
		lexmcp.WithStdIOServerLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := transport.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio transport: %w", err)
	}
	return nil
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	switch flagLogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", flagLogLevel)
	}

	opts := &slog.HandlerOptions{Level: level}
	if flagLogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}
