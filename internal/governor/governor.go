// Package governor is the request-governance core: every inbound request is
// authenticated, authorized, and rate limited here before any handler runs.
package governor

import (
	"errors"
	"fmt"
	"time"

	"github.com/eventsphere/server/internal/auth"
)

// ErrUnauthenticated wraps any token failure surfaced by Admit. The transport
// layer maps it to 401 without string matching.
var ErrUnauthenticated = errors.New("unauthenticated")

// Admission is the resolved identity handed to the downstream handler.
type Admission struct {
	Role      auth.Role
	Subject   string
	Anonymous bool
}

// Governor composes the token service, the role authorizer, and the rate
// limiter into one admit-or-reject decision per request.
type Governor struct {
	tokens     *auth.TokenService
	authorizer *auth.Authorizer
	limiter    *RateLimiter
}

func New(tokens *auth.TokenService, authorizer *auth.Authorizer, limiter *RateLimiter) *Governor {
	return &Governor{
		tokens:     tokens,
		authorizer: authorizer,
		limiter:    limiter,
	}
}

// Admit runs the pipeline in order: authenticate, authorize, rate limit,
// short-circuiting on the first failure. The order is deliberate: quota is
// never consumed by a request that would be rejected for identity or
// permission reasons, and the rate-limit key comes from a verified identity,
// never a claimed one. An expired or invalid token rejects with
// ErrUnauthenticated; it is never downgraded to an anonymous admission.
func (g *Governor) Admit(rawToken string, class auth.RouteClass, method, clientFingerprint string, now time.Time) (Admission, error) {
	admission := Admission{Role: auth.RoleAnonymous, Anonymous: true}
	key := "ip:" + clientFingerprint

	if rawToken != "" {
		identity, err := g.tokens.Verify(rawToken)
		if err != nil {
			return Admission{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		admission = Admission{Role: identity.Role, Subject: identity.Subject}
		// Keyed by verified subject: rotating network identity does not
		// reset an authenticated user's quota, and one shared egress
		// point does not starve unrelated users.
		key = "sub:" + identity.Subject
	}

	if err := g.authorizer.Authorize(admission.Role, class, method); err != nil {
		return Admission{}, err
	}

	if err := g.limiter.Check(key, class, now); err != nil {
		return Admission{}, err
	}

	return admission, nil
}
