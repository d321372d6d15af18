package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sensebridge/sensebridge/internal/config"
	"github.com/sensebridge/sensebridge/internal/dependency"
)

var serveVerbose bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Verbose logging")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// stdout belongs to the stdio transport; all logging goes to stderr.
	setupLogging(cfg, serveVerbose)

	c, err := dependency.New(cfg)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c.Janitor().Start()
	defer c.Janitor().Stop()

	slog.Info("serve: starting MCP server",
		"host", cfg.Server.Host,
		"engine_port", cfg.Server.EnginePort,
		"repository_port", cfg.Server.RepositoryPort)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Server().Run(gctx, &mcp.StdioTransport{})
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	slog.Info("serve: shutdown complete")
	return nil
}

func setupLogging(cfg *config.Config, verbose bool) {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
