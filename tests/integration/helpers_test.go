package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eventsphere/server/internal/api/handlers"
	"github.com/eventsphere/server/internal/api/middleware"
	"github.com/eventsphere/server/internal/audit"
	"github.com/eventsphere/server/internal/auth"
	"github.com/eventsphere/server/internal/config"
	"github.com/eventsphere/server/internal/domain/accounts"
	"github.com/eventsphere/server/internal/domain/events"
	"github.com/eventsphere/server/internal/governor"
	"github.com/eventsphere/server/internal/metrics"
)

// testEnv is a full HTTP stack over in-memory repositories: the real
// middleware chain, the real governance pipeline, and the real handlers,
// with only the storage layer faked. Each test gets its own env so rate
// limit counters never leak between tests.
type testEnv struct {
	Server   *httptest.Server
	Accounts *memAccountsRepo
	Events   *memEventsRepo
	Tokens   *auth.TokenService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	policy := config.DefaultPolicy()

	tokens, err := auth.NewTokenService("integration-test-secret-0123456789abcdef", time.Hour, 10*time.Minute, "eventsphere-test")
	require.NoError(t, err)
	authorizer, err := auth.NewAuthorizer(policy.Rules)
	require.NoError(t, err)
	limiter := governor.NewRateLimiter(policy.Quotas)
	t.Cleanup(limiter.Stop)
	gov := governor.New(tokens, authorizer, limiter)

	accountsRepo := newMemAccountsRepo()
	eventsRepo := newMemEventsRepo()
	accountsService := accounts.NewService(accountsRepo, logger)
	eventsService := events.NewService(eventsRepo, logger)

	const env = "test"
	authHandler := handlers.NewAuthHandler(accountsService, tokens, time.Hour, logger, env)
	eventsHandler := handlers.NewEventsHandler(eventsService, audit.NewRecorder(logger), env)
	profileHandler := handlers.NewProfileHandler(accountsService, env)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	governed := func(method, pattern string, h http.HandlerFunc) {
		class, err := policy.RouteClassFor(method, pattern)
		require.NoError(t, err, "route %s %s missing from policy", method, pattern)
		mux.Handle(method+" "+pattern, middleware.WithRouteClass(class)(h))
	}
	governed(http.MethodPost, "/api/v1/auth/register", authHandler.Register)
	governed(http.MethodPost, "/api/v1/auth/login", authHandler.Login)
	governed(http.MethodPost, "/api/v1/auth/refresh", authHandler.Refresh)
	governed(http.MethodPost, "/api/v1/auth/logout", authHandler.Logout)
	governed(http.MethodGet, "/api/v1/events", eventsHandler.List)
	governed(http.MethodPost, "/api/v1/events", eventsHandler.Create)
	governed(http.MethodDelete, "/api/v1/events/{id}", eventsHandler.Delete)
	governed(http.MethodGet, "/api/v1/profile", profileHandler.Get)
	governed(http.MethodPut, "/api/v1/profile", profileHandler.Update)

	var handler http.Handler = mux
	handler = middleware.Govern(gov, config.RateLimitConfig{}, env)(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.CorrelationID(logger)(handler)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testEnv{
		Server:   server,
		Accounts: accountsRepo,
		Events:   eventsRepo,
		Tokens:   tokens,
	}
}

// createAccount registers through the real service and then promotes the
// role directly in the fake repo, since the public register endpoint always
// yields a plain user.
func (e *testEnv) createAccount(t *testing.T, email, password string, role auth.Role) *accounts.Account {
	t.Helper()

	service := accounts.NewService(e.Accounts, zerolog.Nop())
	account, err := service.Register(context.Background(), email, password, "en")
	require.NoError(t, err)
	e.Accounts.setRole(account.ID, role)
	account.Role = role
	return account
}

// tokenFor mints a token directly, bypassing the login quota.
func (e *testEnv) tokenFor(t *testing.T, account *accounts.Account) string {
	t.Helper()

	token, err := e.Tokens.Issue(account.ID, account.Role)
	require.NoError(t, err)
	return token
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.Server.URL+path, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.Server.Client().Do(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, raw
}

// memAccountsRepo is an in-memory accounts.Repository.
type memAccountsRepo struct {
	mu       sync.Mutex
	accounts map[string]*accounts.Account
}

func newMemAccountsRepo() *memAccountsRepo {
	return &memAccountsRepo{accounts: make(map[string]*accounts.Account)}
}

func (r *memAccountsRepo) Create(_ context.Context, account *accounts.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Email == account.Email {
			return accounts.ErrEmailTaken
		}
	}
	clone := *account
	r.accounts[account.ID] = &clone
	return nil
}

func (r *memAccountsRepo) FindByEmail(_ context.Context, email string) (*accounts.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.Email == email {
			clone := *account
			return &clone, nil
		}
	}
	return nil, accounts.ErrNotFound
}

func (r *memAccountsRepo) FindByID(_ context.Context, id string) (*accounts.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	clone := *account
	return &clone, nil
}

func (r *memAccountsRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return accounts.ErrNotFound
	}
	account.LastLoginAt = &at
	return nil
}

func (r *memAccountsRepo) UpdateLanguage(_ context.Context, id, lang string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return accounts.ErrNotFound
	}
	account.DefaultLang = lang
	return nil
}

func (r *memAccountsRepo) PurgeUnconfirmed(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged int64
	for id, account := range r.accounts {
		if !account.IsActive && account.ConfirmationSentAt != nil && !account.ConfirmationSentAt.After(cutoff) {
			delete(r.accounts, id)
			purged++
		}
	}
	return purged, nil
}

func (r *memAccountsRepo) setRole(id string, role auth.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[id]; ok {
		account.Role = role
	}
}

// memEventsRepo is an in-memory events.Repository.
type memEventsRepo struct {
	mu     sync.Mutex
	events map[string]*events.Event
}

func newMemEventsRepo() *memEventsRepo {
	return &memEventsRepo{events: make(map[string]*events.Event)}
}

func (r *memEventsRepo) Create(_ context.Context, event *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *event
	r.events[event.ID] = &clone
	return nil
}

func (r *memEventsRepo) ListActive(_ context.Context) ([]events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var active []events.Event
	for _, event := range r.events {
		if event.IsActive {
			active = append(active, *event)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

func (r *memEventsRepo) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return events.ErrNotFound
	}
	event.IsActive = false
	return nil
}

func (r *memEventsRepo) DeactivatePast(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed int64
	for _, event := range r.events {
		if event.IsActive && event.EndTime.Before(now) {
			event.IsActive = false
			changed++
		}
	}
	return changed, nil
}
