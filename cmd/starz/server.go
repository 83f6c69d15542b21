package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/starz/internal/api"
	"github.com/kalambet/starz/internal/chat"
	"github.com/kalambet/starz/internal/config"
	"github.com/kalambet/starz/internal/favorites"
	"github.com/kalambet/starz/internal/metrics"
	"github.com/kalambet/starz/internal/persist"
	"github.com/kalambet/starz/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the starz daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		stdio, _ := cmd.Flags().GetBool("mcp-stdio")
		return runServer(stdio)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running starz daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show starz status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp-stdio", true, "serve MCP tools over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "starz.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// daemon is the wired set of components behind `starz start`.
type daemon struct {
	service *chat.Service
	flusher *persist.Flusher
	handler http.Handler
	mcp     *server.MCPServer
}

func newDaemon(cfg config.Config, store *storage.Store, logger *slog.Logger) *daemon {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	flusher := persist.NewFlusher(store, cfg.Persist.Debounce,
		persist.WithMetrics(m),
		persist.WithLogger(logger),
	)
	hub := api.NewHub()
	svc := chat.NewService(store, flusher, hub, chat.Options{
		Addressing:    favorites.ParseAddressing(cfg.Favorites.Addressing),
		PageSize:      cfg.Favorites.PageSize,
		SnippetLength: cfg.Favorites.SnippetLength,
		Metrics:       m,
		Logger:        logger,
	})
	return &daemon{
		service: svc,
		flusher: flusher,
		handler: api.NewHandler(api.Deps{
			Service: svc,
			Hub:     hub,
			Metrics: m,
			Token:   cfg.API.Token,
			Logger:  logger,
		}),
		mcp: api.NewMCPServer(api.MCPDeps{Service: svc}),
	}
}

// evictIdle drops sessions unused for idle, checking at half that period.
func (d *daemon) evictIdle(ctx context.Context, idle time.Duration) {
	t := time.NewTicker(max(idle/2, time.Second))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.service.EvictIdle(idle)
		}
	}
}

func runServer(stdioMCP bool) error {
	fmt.Fprintf(os.Stderr, "starz version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	if err := config.EnsureAPIToken(&cfg, config.NewTokenStore()); err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available", "location", config.SecretLocation())

	// Refuse to start twice. The health endpoint is the source of truth; the
	// PID file only improves the message.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("starz is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("starz is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	d := newDaemon(cfg, store, logger)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           d.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// The flusher writes whatever is still pending once gctx is done.
	g.Go(func() error {
		d.flusher.Run(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("starz listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if idle := cfg.Sessions.IdleTimeout; idle > 0 {
		g.Go(func() error {
			d.evictIdle(gctx, idle)
			return nil
		})
	}

	// Closing stdin ends the MCP session but not the daemon, so the stdio
	// server stays outside the group.
	if stdioMCP {
		stdioSrv := server.NewStdioServer(d.mcp)
		go func() {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("starz is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop starz (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to starz (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Addressing", "%s", cfg.Favorites.Addressing)
	printStatus("Page size", "%d", cfg.Favorites.PageSize)
	printStatus("Debounce", "%s", cfg.Persist.Debounce)
	printStatus("Session idle", "%s", cfg.Sessions.IdleTimeout)

	if running && cfg.API.Token != "" {
		c := &apiClient{baseURL: serverURL, token: cfg.API.Token, httpClient: client}
		if n, err := countConversations(ctx, c, 100); err == nil {
			printStatus("Conversations", "%s", countLabel(n, 100))
		}
	}

	if cfg.API.Token == "" {
		printStatus("API token", "not created yet")
	} else {
		printStatus("API token", "%s", config.SecretLocation())
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countConversations(ctx context.Context, c *apiClient, limit int) (int, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/conversations?limit=%d", limit))
	if err != nil {
		return 0, err
	}
	var convs []conversation
	if err := decodeJSON(resp, &convs); err != nil {
		return 0, err
	}
	return len(convs), nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
