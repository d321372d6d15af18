package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensebridge/sensebridge/internal/config"
	"github.com/sensebridge/sensebridge/internal/repository"
)

var appsFilter string

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List applications from the repository",
	RunE:  runApps,
}

func init() {
	appsCmd.Flags().StringVarP(&appsFilter, "filter", "f", "", "Repository filter expression, e.g. \"name eq 'Sales'\"")
}

func runApps(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	repo, err := repository.New(cfg.RepositoryOptions())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	apps, err := repo.Apps(ctx, appsFilter)
	if err != nil {
		return err
	}

	if len(apps) == 0 {
		fmt.Println("No applications found.")
		return nil
	}
	fmt.Printf("%-38s %-30s %-20s %s\n", "ID", "NAME", "STREAM", "LAST RELOAD")
	for _, a := range apps {
		stream := "-"
		if a.Stream != nil {
			stream = a.Stream.Name
		}
		reload := "-"
		if !a.LastReload.IsZero() {
			reload = a.LastReload.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-38s %-30s %-20s %s\n", a.ID, truncate(a.Name, 30), truncate(stream, 20), reload)
	}
	fmt.Printf("\n%d application(s)\n", len(apps))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
