package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/policykit/internal/catalog"
	"github.com/solatis/policykit/internal/core/api"
	"github.com/solatis/policykit/internal/core/auth"
	"github.com/solatis/policykit/internal/core/config"
	"github.com/solatis/policykit/internal/core/db"
	"github.com/solatis/policykit/internal/core/server"
)

// shutdownGrace bounds how long serve waits for in-flight requests.
const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC and HTTP policy builder APIs",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "listen host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().Int("http-port", 8080, "HTTP server port")
	serveCmd.Flags().String("backend-url", "", "REST backend base URL (empty uses the local database)")
}

// loadServeConfig applies changed flags over the loaded config.
func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("http-port") {
		cfg.Server.HTTPPort, _ = cmd.Flags().GetInt("http-port")
	}
	if cmd.Flags().Changed("backend-url") {
		cfg.Backend.BaseURL, _ = cmd.Flags().GetString("backend-url")
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}
	loc, err := cfg.Predicate.Location()
	if err != nil {
		return err
	}

	database, queries, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := requireMigrated(ctx, database); err != nil {
		return err
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set %s environment variable)", config.EnvHMACSecret)
	}
	authenticator := auth.NewAuthenticator(secrets, queries, server.PublicEndpoints...)

	if cfg.Backend.BaseURL == "" && cfg.Catalog.SeedFile != "" {
		snap, err := catalog.LoadSeed(cfg.Catalog.SeedFile)
		if err != nil {
			return err
		}
		if err := db.NewCatalogStore(queries).ImportSeed(ctx, snap); err != nil {
			return fmt.Errorf("failed to import catalog seed: %w", err)
		}
		logger.Info("imported catalog seed", "file", cfg.Catalog.SeedFile)
	}

	src, repo, err := dataSources(cfg, queries)
	if err != nil {
		return err
	}
	service, err := api.NewPolicyService(src, repo, loc, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	grpcService, err := api.NewGRPCService(service)
	if err != nil {
		return err
	}

	grpcServer, err := server.NewGRPCServer(&cfg.Server, grpcService, authenticator, logger)
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}
	httpServer, err := server.NewHTTPServer(&cfg.Server, service, authenticator, logger)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	logger.Info("starting policykit",
		"version", Version,
		"host", cfg.Server.Host,
		"grpc_port", cfg.Server.Port,
		"http_port", cfg.Server.HTTPPort,
	)
	errChan := make(chan error, 2)
	go func() { errChan <- grpcServer.Start(ctx) }()
	go func() { errChan <- httpServer.Start(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case runErr = <-errChan:
		logger.Error("server stopped", "error", runErr)
	case sig := <-sigChan:
		logger.Info("shutting down gracefully", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC shutdown failed", "error", err)
	}
	return runErr
}
