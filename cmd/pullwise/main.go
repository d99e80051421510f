// Package main is the entry point for the Pullwise application.
// Pullwise is an AI-powered pull request review webhook service.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/config"
	"github.com/pullwise/pullwise/internal/database"
	"github.com/pullwise/pullwise/internal/engine"
	"github.com/pullwise/pullwise/internal/feedback"
	"github.com/pullwise/pullwise/internal/git"
	"github.com/pullwise/pullwise/internal/llm"
	"github.com/pullwise/pullwise/internal/output"
	"github.com/pullwise/pullwise/internal/reliability"
	"github.com/pullwise/pullwise/internal/server"
	"github.com/pullwise/pullwise/internal/store"
	"github.com/pullwise/pullwise/pkg/errors"
	"github.com/pullwise/pullwise/pkg/logger"
	"github.com/pullwise/pullwise/pkg/telemetry"
)

// Build information - set via ldflags during build
// These variables are linked to consts package for global access
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// init synchronizes build info to consts package for global access
func init() {
	consts.Version = Version
	consts.BuildTime = BuildTime
	consts.GitCommit = GitCommit
}

// defaultConfigPath is used when --config is not provided
const defaultConfigPath = "config/config.yaml"

// configPath holds the path to the configuration file
var configPath string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pullwise",
	Short: "Pullwise - AI-Powered Pull Request Review Webhook Service",
	Long: `Pullwise is a pull request review webhook service that analyzes diffs
with an LLM backend and posts structured findings back to the PR.`,
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Pullwise server",
	Long: `Start the HTTP server to handle webhook triggers and API requests.

Configuration is read from config/config.yaml by default:
  pullwise serve --config /etc/pullwise/config.yaml`,
	Run: runServe,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Pullwise %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
	},
}

func init() {
	// Disable auto-generated completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: config/config.yaml)")

	// Add commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	// Serve command flags
	serveCmd.Flags().String("host", "", "server host (overrides config)")
	serveCmd.Flags().Int("port", 0, "server port (overrides config)")
	serveCmd.Flags().Bool("debug", false, "enable debug mode")
	serveCmd.Flags().Bool("dry-run", false, "log review output instead of posting to the PR")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runServe starts the Pullwise server
func runServe(cmd *cobra.Command, args []string) {
	// Record server start time
	consts.SetStartedAt(time.Now())

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override config with command line flags
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		cfg.Review.DryRun = true
	}

	// Validate configuration before anything touches the network
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "\n[ERROR] Configuration validation failed\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		os.Exit(errors.ExitCodeConfigValidation)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Pullwise",
		zap.String("version", Version),
	)

	// Initialize telemetry (OpenTelemetry metrics)
	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown telemetry", zap.Error(err))
		}
	}()

	// Initialize database
	if err := database.InitWithPath(cfg.Database.Path); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	// Create store instance for dependency injection
	dataStore := store.NewStore(database.Get())

	// Reliability substrate shared by the git client and the engine
	breakers := reliability.NewBreakerManager(
		cfg.Review.BreakerFailureThreshold,
		time.Duration(cfg.Review.BreakerOpenSeconds)*time.Second,
	)
	limiter := reliability.NewRateLimiter(cfg.Server.RateLimitPerMinute, 0)

	// Platform and AI clients
	gitClient := git.NewClient(git.Config{
		BaseURL: cfg.Git.BaseURL,
		Project: cfg.Git.Project,
		Token:   cfg.Git.Token,
	}, breakers)

	llmClient := llm.NewClient(llm.Config{
		APIKey:    cfg.AI.APIKey,
		BaseURL:   cfg.AI.BaseURL,
		Model:     cfg.AI.Model,
		Family:    llm.ModelFamily(cfg.AI.Family),
		MaxTokens: cfg.AI.MaxTokens,
		Timeout:   time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
	})

	poster := output.NewPoster(gitClient, cfg.Review.DryRun)

	// Create review engine
	reviewEngine := engine.NewEngine(engine.Config{
		Store:       dataStore,
		Git:         gitClient,
		Reviewer:    llmClient,
		Publisher:   poster,
		Cache:       reliability.NewResponseCache(dataStore.Cache(), cfg.Review.CacheTTLDays),
		Dedup:       reliability.NewDeduplicator(dataStore.Idempotency()),
		Breakers:    breakers,
		Concurrency: cfg.Review.MaxConcurrent,
	})

	// Start retention sweeper (expired cache and idempotency rows)
	sweeper := store.NewSweeperService(dataStore)
	if err := sweeper.Start(); err != nil {
		logger.Warn("Failed to start retention sweeper", zap.Error(err))
	} else {
		defer sweeper.Stop()
	}

	// Start feedback harvester (hourly thread collection)
	harvester := feedback.NewService(feedback.NewHarvester(dataStore, gitClient))
	harvester.SetRetryPolicy(cfg.Review.TimerMaxRetries,
		time.Duration(cfg.Review.TimerRetryDelaySeconds)*time.Second)
	if err := harvester.Start(); err != nil {
		logger.Warn("Failed to start feedback harvester", zap.Error(err))
	} else {
		defer harvester.Stop()
	}

	// Create and configure server
	srv := server.New(cfg, reviewEngine, breakers, limiter, dataStore)
	srv.SetupRoutes()

	// Start server
	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	logger.Info("Pullwise server is running",
		zap.String("address", cfg.Server.Address()),
	)

	// Wait for shutdown
	srv.WaitForShutdown()

	logger.Info("Pullwise stopped")
}

// loadConfig loads configuration from the config file, falling back to
// defaults when no file exists and none was requested explicitly
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = defaultConfigPath
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}
