package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/eventsphere/server/internal/api/problem"
	"github.com/eventsphere/server/internal/auth"
	"github.com/eventsphere/server/internal/config"
	"github.com/eventsphere/server/internal/governor"
	"github.com/eventsphere/server/internal/metrics"
)

// SessionCookieName is the HttpOnly cookie the auth handlers set on login.
// The Authorization header wins when both are present.
const SessionCookieName = "eventsphere_session"

const (
	routeClassKey contextKey = "route_class"
	admissionKey  contextKey = "admission"
)

// WithRouteClass tags requests passing through with a route class so Govern
// knows which permission row and quota apply.
func WithRouteClass(class auth.RouteClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), routeClassKey, class)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RouteClassFromContext returns the tagged class, defaulting to public.
func RouteClassFromContext(ctx context.Context) auth.RouteClass {
	if class, ok := ctx.Value(routeClassKey).(auth.RouteClass); ok {
		return class
	}
	return auth.RouteClassPublic
}

// AdmissionFromContext returns the identity resolved by Govern. The zero
// Admission (anonymous) is returned for requests that bypassed governance.
func AdmissionFromContext(ctx context.Context) governor.Admission {
	if adm, ok := ctx.Value(admissionKey).(governor.Admission); ok {
		return adm
	}
	return governor.Admission{Role: auth.RoleAnonymous, Anonymous: true}
}

// Govern runs every request through the admission pipeline and maps
// rejections onto problem+json responses: 401 unauthenticated, 403
// forbidden, 429 rate limited with a Retry-After header. Health and metrics
// endpoints are exempt.
func Govern(gov *governor.Governor, rlCfg config.RateLimitConfig, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			class := RouteClassFromContext(r.Context())
			rawToken := bearerToken(r)
			fingerprint := ClientFingerprint(r, rlCfg.TrustedProxyCIDRs)

			admission, err := gov.Admit(rawToken, class, r.Method, fingerprint, time.Now())
			if err != nil {
				rejectWithProblem(w, r, class, err, env)
				return
			}

			metrics.AdmissionsTotal.WithLabelValues(string(class), string(admission.Role)).Inc()

			ctx := context.WithValue(r.Context(), admissionKey, admission)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectWithProblem(w http.ResponseWriter, r *http.Request, class auth.RouteClass, err error, env string) {
	var limited *governor.RateLimitedError

	switch {
	case errors.As(err, &limited):
		metrics.RejectionsTotal.WithLabelValues(string(class), "rate_limited").Inc()
		metrics.RateLimitRetryAfter.WithLabelValues(string(class)).Observe(limited.RetryAfter.Seconds())
		seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too many requests", err, env)

	case errors.Is(err, governor.ErrUnauthenticated):
		metrics.RejectionsTotal.WithLabelValues(string(class), "unauthenticated").Inc()
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthenticated, "Unauthenticated", err, env)

	case errors.Is(err, auth.ErrForbidden):
		metrics.RejectionsTotal.WithLabelValues(string(class), "forbidden").Inc()
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", err, env)

	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, env)
	}
}

// bearerToken pulls the raw token from the Authorization header, falling back
// to the session cookie. A present-but-malformed header is returned as-is so
// verification rejects it with 401 rather than quietly downgrading the
// request to anonymous.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		token, err := auth.TokenFromHeader(header)
		if err != nil {
			return header
		}
		return token
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
