package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"learntrail.dev/internal/aggregate"
	"learntrail.dev/internal/config"
	"learntrail.dev/internal/database"
	"learntrail.dev/internal/learntrail"
	learntrailhttp "learntrail.dev/internal/learntrail/http"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

var (
	rootCmd = &cobra.Command{
		Use:   "learntrail",
		Short: "Learning resource aggregation server and utilities",
	}
	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Run the API server",
		RunE:  runServer,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}
	upCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	}
	downCmd = &cobra.Command{
		Use:   "down",
		Short: "Revert all applied migrations",
		RunE:  runMigrateDown,
	}
	aggregateCmd = &cobra.Command{
		Use:   "aggregate <topic>",
		Short: "Discover, classify and store resources for a topic",
		Args:  cobra.ExactArgs(1),
		RunE:  runAggregate,
	}

	// Flags
	addr           string
	maxPerSource   int
	minQuality     int
	noYouTube      bool
	noGitHub       bool
	includeCurated bool
)

func init() {
	serverCmd.Flags().StringVar(&addr, "addr", "", "Address to run the server on (host:port). If empty, uses HOST and PORT environment variables")
	aggregateCmd.Flags().IntVar(&maxPerSource, "max-per-source", 0, "Maximum candidates fetched per source")
	aggregateCmd.Flags().IntVar(&minQuality, "min-quality", -1, "Minimum quality score a resource must reach to be kept")
	aggregateCmd.Flags().BoolVar(&noYouTube, "no-youtube", false, "Skip the YouTube source")
	aggregateCmd.Flags().BoolVar(&noGitHub, "no-github", false, "Skip the GitHub source")
	aggregateCmd.Flags().BoolVar(&includeCurated, "curated", false, "Also search curated awesome lists")
	migrateCmd.AddCommand(upCmd, downCmd)
	rootCmd.AddCommand(serverCmd, migrateCmd, aggregateCmd)
}

func setup(ctx context.Context) (*config.Config, func()) {
	cfg := config.New()
	config.SetupLog(cfg)
	shutdown, err := config.SetupTelemetry(ctx, cfg)
	if err != nil {
		log.Printf("Telemetry disabled: %v", err)
	}
	cfg.Watch(ctx)
	return cfg, shutdown
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, shutdown := setup(ctx)
	defer shutdown()

	srv, err := learntrailhttp.NewServerForConfig(cfg)
	if err != nil {
		return err
	}

	finalAddr := addr
	if finalAddr == "" {
		finalAddr = cfg.GetAddr()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(finalAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Printf("Server failed: %v", err)
		}
		if cerr := srv.Close(); cerr != nil {
			log.Printf("Error during shutdown: %v", cerr)
		}
	case sig := <-quit:
		log.Printf("Received signal %s. Shutting down server...", sig)
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
		log.Println("Server stopped")
	}
	return nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, shutdown := setup(ctx)
	defer shutdown()

	mg, err := database.NewMigratorForConfig(cfg)
	if err != nil {
		return err
	}
	return mg.Up()
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, shutdown := setup(ctx)
	defer shutdown()

	mg, err := database.NewMigratorForConfig(cfg)
	if err != nil {
		return err
	}
	return mg.Down()
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, shutdown := setup(ctx)
	defer shutdown()

	clients, err := learntrail.NewForConfig(cfg)
	if err != nil {
		return err
	}
	defer clients.Close()

	opts := aggregate.DefaultOptions()
	if maxPerSource > 0 {
		opts.MaxResourcesPerSource = maxPerSource
	}
	if minQuality >= 0 {
		opts.MinQualityScore = minQuality
	}
	opts.IncludeYouTube = !noYouTube
	opts.IncludeGitHub = !noGitHub
	opts.IncludeCurated = includeCurated

	result, err := clients.Aggregator().AggregateResources(ctx, args[0], opts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
