// Package api assembles the HTTP surface: the governance middleware chain,
// the governed route table, and the operational endpoints.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/eventsphere/server/internal/api/handlers"
	"github.com/eventsphere/server/internal/api/middleware"
	"github.com/eventsphere/server/internal/audit"
	"github.com/eventsphere/server/internal/auth"
	"github.com/eventsphere/server/internal/config"
	"github.com/eventsphere/server/internal/domain/accounts"
	"github.com/eventsphere/server/internal/domain/events"
	"github.com/eventsphere/server/internal/governor"
	"github.com/eventsphere/server/internal/jobs"
	"github.com/eventsphere/server/internal/metrics"
	"github.com/eventsphere/server/internal/storage/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
)

// Router bundles the assembled handler with the long-lived components the
// serve command manages: the job client and the rate limiter's sweeper.
type Router struct {
	Handler     http.Handler
	RiverClient *river.Client[pgx.Tx]
	Limiter     *governor.RateLimiter
	Tracker     *jobs.StatusTracker
}

// NewRouter wires repositories, services, the governance pipeline, and the
// job scheduler into one handler. The governance policy decides which route
// class every endpoint belongs to; a route missing from the policy is a
// wiring bug and fails construction.
func NewRouter(cfg config.Config, policy *config.GovernancePolicy, logger zerolog.Logger, pool *pgxpool.Pool, version, commit string) (*Router, error) {
	accountsRepo := postgres.NewAccountsRepository(pool)
	eventsRepo := postgres.NewEventsRepository(pool)

	accountsService := accounts.NewService(accountsRepo, logger)
	eventsService := events.NewService(eventsRepo, logger)

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.RefreshGrace, cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}
	authorizer, err := auth.NewAuthorizer(policy.Rules)
	if err != nil {
		return nil, fmt.Errorf("authorizer: %w", err)
	}
	limiter := governor.NewRateLimiter(policy.Quotas)
	gov := governor.New(tokens, authorizer, limiter)

	tracker := jobs.NewStatusTracker(cfg.Jobs)
	workers := jobs.NewWorkers(cfg.Jobs, eventsRepo, accountsRepo, logger)
	// River jobs log through slog, everything else through zerolog.
	riverLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	hooks := []rivertype.Hook{tracker, metrics.NewRiverMetricsHook()}
	riverClient, err := jobs.NewClient(pool, workers, riverLogger, hooks, jobs.NewPeriodicJobs(cfg.Jobs))
	if err != nil {
		return nil, fmt.Errorf("river client: %w", err)
	}

	authHandler := handlers.NewAuthHandler(accountsService, tokens, cfg.Auth.JWTExpiry, logger, cfg.Environment)
	eventsHandler := handlers.NewEventsHandler(eventsService, audit.NewRecorder(logger), cfg.Environment)
	profileHandler := handlers.NewProfileHandler(accountsService, cfg.Environment)
	health := handlers.NewHealthChecker(pool, tracker, version, commit)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Health)
	mux.HandleFunc("GET /readyz", health.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	governed := func(method, pattern string, h http.HandlerFunc) error {
		class, err := policy.RouteClassFor(method, pattern)
		if err != nil {
			return err
		}
		mux.Handle(method+" "+pattern, middleware.WithRouteClass(class)(h))
		return nil
	}

	routes := []struct {
		method  string
		pattern string
		handler http.HandlerFunc
	}{
		{http.MethodPost, "/api/v1/auth/register", authHandler.Register},
		{http.MethodPost, "/api/v1/auth/login", authHandler.Login},
		{http.MethodPost, "/api/v1/auth/refresh", authHandler.Refresh},
		{http.MethodPost, "/api/v1/auth/logout", authHandler.Logout},
		{http.MethodGet, "/api/v1/events", eventsHandler.List},
		{http.MethodPost, "/api/v1/events", eventsHandler.Create},
		{http.MethodDelete, "/api/v1/events/{id}", eventsHandler.Delete},
		{http.MethodGet, "/api/v1/profile", profileHandler.Get},
		{http.MethodPut, "/api/v1/profile", profileHandler.Update},
	}
	for _, route := range routes {
		if err := governed(route.method, route.pattern, route.handler); err != nil {
			return nil, fmt.Errorf("route %s %s: %w", route.method, route.pattern, err)
		}
	}

	var handler http.Handler = mux
	handler = middleware.Govern(gov, cfg.RateLimit, cfg.Environment)(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CorrelationID(logger)(handler)

	return &Router{
		Handler:     handler,
		RiverClient: riverClient,
		Limiter:     limiter,
		Tracker:     tracker,
	}, nil
}
