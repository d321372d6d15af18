package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensebridge/sensebridge/internal/config"
	"github.com/sensebridge/sensebridge/internal/repository"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and server reachability",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	fmt.Println("sensebridge status")
	fmt.Println()

	_, statErr := os.Stat(cfgPath)
	cfgMark := "✗"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:     %s %s\n", cfgPath, cfgMark)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	fmt.Printf("Server:     %s (engine :%d, repository :%d)\n",
		cfg.Server.Host, cfg.Server.EnginePort, cfg.Server.RepositoryPort)
	fmt.Printf("Identity:   %s\\%s\n", cfg.Server.UserDirectory, cfg.Server.UserID)

	for _, f := range []struct{ label, path string }{
		{"Client cert", cfg.TLS.CertFile},
		{"Client key", cfg.TLS.KeyFile},
		{"CA bundle", cfg.TLS.CAFile},
	} {
		if f.path == "" {
			fmt.Printf("%-11s (not set)\n", f.label+":")
			continue
		}
		mark := "✗"
		if _, err := os.Stat(f.path); err == nil {
			mark = "✓"
		}
		fmt.Printf("%-11s %s %s\n", f.label+":", f.path, mark)
	}

	// One cheap repository call tells us whether the server answers at all.
	repo, err := repository.New(cfg.RepositoryOptions())
	if err != nil {
		fmt.Printf("Repository: ✗ (%v)\n", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := repo.Streams(ctx); err != nil {
		fmt.Printf("Repository: ✗ (%v)\n", err)
	} else {
		fmt.Println("Repository: ✓ reachable")
	}
	return nil
}
