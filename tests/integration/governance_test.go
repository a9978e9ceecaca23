package integration

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicRouteAllowsAnonymous(t *testing.T) {
	env := setupTestEnv(t)

	resp, body := env.doJSON(t, http.MethodGet, "/api/v1/events", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}

func TestProtectedRouteRejectsAnonymousWith401(t *testing.T) {
	env := setupTestEnv(t)

	resp, body := env.doJSON(t, http.MethodGet, "/api/v1/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "https://eventsphere.dev/problems/unauthenticated")
}

func TestInvalidTokenRejectedWith401(t *testing.T) {
	env := setupTestEnv(t)

	resp, _ := env.doJSON(t, http.MethodGet, "/api/v1/profile", "not-a-real-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMalformedAuthorizationHeaderRejectedWith401(t *testing.T) {
	env := setupTestEnv(t)
	account := env.createAccount(t, "malformed@example.com", "password-123", "user")

	// A present-but-malformed header must fail, not degrade to anonymous,
	// even though the target route allows anonymous access.
	req, err := http.NewRequest(http.MethodGet, env.Server.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Token "+env.tokenFor(t, account))

	resp, err := env.Server.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInsufficientRoleRejectedWith403(t *testing.T) {
	env := setupTestEnv(t)
	user := env.createAccount(t, "plain-user@example.com", "password-123", "user")
	token := env.tokenFor(t, user)

	payload := map[string]any{
		"name":       "Jazz Night",
		"start_time": time.Now().Add(time.Hour).Format(time.RFC3339),
		"end_time":   time.Now().Add(3 * time.Hour).Format(time.RFC3339),
	}
	resp, body := env.doJSON(t, http.MethodPost, "/api/v1/events", token, payload)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "https://eventsphere.dev/problems/forbidden")
}

func TestRoleHierarchyOnEventWrites(t *testing.T) {
	env := setupTestEnv(t)
	manager := env.createAccount(t, "manager@example.com", "password-123", "manager")
	admin := env.createAccount(t, "admin@example.com", "password-123", "admin")

	payload := map[string]any{
		"name":       "Launch Party",
		"start_time": time.Now().Add(time.Hour).Format(time.RFC3339),
		"end_time":   time.Now().Add(4 * time.Hour).Format(time.RFC3339),
	}

	// Managers can create but not delete.
	resp, body := env.doJSON(t, http.MethodPost, "/api/v1/events", env.tokenFor(t, manager), payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ID)

	resp, _ = env.doJSON(t, http.MethodDelete, "/api/v1/events/"+created.ID, env.tokenFor(t, manager), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Admins can delete.
	resp, _ = env.doJSON(t, http.MethodDelete, "/api/v1/events/"+created.ID, env.tokenFor(t, admin), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAuthRouteRateLimitedAfterThreePerMinute(t *testing.T) {
	env := setupTestEnv(t)

	login := map[string]string{"email": "nobody@example.com", "password": "wrong"}
	for i := 0; i < 3; i++ {
		resp, _ := env.doJSON(t, http.MethodPost, "/api/v1/auth/login", "", login)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d should pass the limiter", i+1)
	}

	resp, body := env.doJSON(t, http.MethodPost, "/api/v1/auth/login", "", login)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "https://eventsphere.dev/problems/rate-limited")

	retryAfter := resp.Header.Get("Retry-After")
	require.NotEmpty(t, retryAfter)
	seconds, err := strconv.Atoi(retryAfter)
	require.NoError(t, err, "Retry-After must be integer seconds")
	assert.GreaterOrEqual(t, seconds, 1)
	assert.LessOrEqual(t, seconds, 60)
}

func TestRateLimitKeyedPerSubject(t *testing.T) {
	env := setupTestEnv(t)
	first := env.createAccount(t, "first@example.com", "password-123", "user")
	second := env.createAccount(t, "second@example.com", "password-123", "user")
	firstToken := env.tokenFor(t, first)

	// Exhaust the first subject's user-write budget.
	for i := 0; i < 20; i++ {
		resp, _ := env.doJSON(t, http.MethodGet, "/api/v1/profile", firstToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d within quota", i+1)
	}
	resp, _ := env.doJSON(t, http.MethodGet, "/api/v1/profile", firstToken, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// A different subject still has a fresh window.
	resp, _ = env.doJSON(t, http.MethodGet, "/api/v1/profile", env.tokenFor(t, second), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthorizationCheckedBeforeRateLimit(t *testing.T) {
	env := setupTestEnv(t)
	user := env.createAccount(t, "ordering@example.com", "password-123", "user")
	token := env.tokenFor(t, user)

	// Far more forbidden requests than the admin-write quota allows. They
	// must all come back 403: a denied request never reaches the limiter.
	for i := 0; i < 70; i++ {
		resp, _ := env.doJSON(t, http.MethodDelete, "/api/v1/events/01HZZZZZZZZZZZZZZZZZZZZZZZ", token, nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode, "request %d", i+1)
	}
}

func TestOperationalEndpointsExemptFromGovernance(t *testing.T) {
	env := setupTestEnv(t)

	// Well past the public per-minute quota; exempt paths never count.
	for i := 0; i < 40; i++ {
		resp, _ := env.doJSON(t, http.MethodGet, "/healthz", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
	}
}

func TestProblemResponsesCarryRequestID(t *testing.T) {
	env := setupTestEnv(t)

	resp, _ := env.doJSON(t, http.MethodGet, "/api/v1/profile", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	requestID := resp.Header.Get("X-Request-ID")
	assert.NotEmpty(t, requestID)
	assert.False(t, strings.ContainsAny(requestID, " \t"))
}
