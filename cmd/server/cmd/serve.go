package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventsphere/server/internal/api"
	"github.com/eventsphere/server/internal/audit"
	"github.com/eventsphere/server/internal/config"
	"github.com/eventsphere/server/internal/domain/accounts"
	"github.com/eventsphere/server/internal/metrics"
	"github.com/eventsphere/server/internal/storage/postgres"
	"github.com/eventsphere/server/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the EventSphere HTTP server",
	Long: `Start the EventSphere HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables
- Load the governance policy (built-in defaults or --policy file)
- Bootstrap an admin account if ADMIN_* env vars are set
- Start the HTTP server and the background job workers
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with a governance policy file
  server serve --policy /etc/eventsphere/policy.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if policyPath != "" {
		cfg.RateLimit.PolicyPath = policyPath
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Msg("starting EventSphere server")

	// Malformed policy is a startup failure, never a degraded run.
	policy, err := config.LoadPolicy(cfg.RateLimit.PolicyPath)
	if err != nil {
		return fmt.Errorf("governance policy: %w", err)
	}

	metrics.Init(Version, GitCommit, BuildDate)

	tracingShutdown, err := telemetry.InitTracing(context.Background(), cfg.Tracing, Version)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize tracing")
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracingShutdown(ctx)
		}()
	}

	poolCtx, poolCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(poolCtx, cfg.Database)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := bootstrapAdminAccount(bootstrapCtx, cfg, pool, logger); err != nil {
		logger.Error().Err(err).Msg("admin bootstrap failed")
	}
	bootstrapCancel()

	router, err := api.NewRouter(cfg, policy, logger, pool, Version, GitCommit)
	if err != nil {
		return fmt.Errorf("router init: %w", err)
	}
	defer router.Limiter.Stop()

	riverCtx, riverCancel := context.WithCancel(context.Background())
	defer riverCancel()
	if err := router.RiverClient.Start(riverCtx); err != nil {
		return fmt.Errorf("job workers failed to start: %w", err)
	}
	logger.Info().Msg("background job workers started")
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := router.RiverClient.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("job workers shutdown error")
		} else {
			logger.Info().Msg("job workers stopped")
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	group, groupCtx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-stop:
			logger.Info().Msg("shutting down")
		case <-groupCtx.Done():
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	})

	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	return cfg, nil
}

// bootstrapAdminAccount creates the initial admin account from env vars.
// Idempotent: an existing account with the configured email is left alone.
func bootstrapAdminAccount(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, logger zerolog.Logger) error {
	bootstrap := cfg.AdminBootstrap
	if bootstrap.Email == "" || bootstrap.Password == "" {
		logger.Debug().Msg("admin bootstrap env vars not set; skipping")
		return nil
	}

	repo := postgres.NewAccountsRepository(pool)
	if _, err := repo.FindByEmail(ctx, bootstrap.Email); err == nil {
		return nil
	} else if !errors.Is(err, accounts.ErrNotFound) {
		return fmt.Errorf("check admin account: %w", err)
	}

	account, err := accounts.NewAdminAccount(bootstrap.Email, bootstrap.Password)
	if err != nil {
		return fmt.Errorf("build admin account: %w", err)
	}
	if err := repo.Create(ctx, account); err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}
	audit.NewRecorder(logger).Success("bootstrap.admin", "system", "account", account.ID)

	// Redact email in production to avoid PII leaks.
	if cfg.Environment == "production" {
		logger.Info().Msg("bootstrapped admin account")
	} else {
		logger.Info().Str("email", bootstrap.Email).Msg("bootstrapped admin account")
	}
	return nil
}
