package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken     = errors.New("missing token")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
)

// Identity is the authenticated subject extracted from a verified token.
type Identity struct {
	Subject   string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenID   string
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256-signed identity tokens. Verification
// is a pure function of the token, the signing key, and the clock — no storage
// round trip, so the request path never blocks on I/O for authentication.
type TokenService struct {
	key          []byte
	ttl          time.Duration
	refreshGrace time.Duration
	issuer       string
	now          func() time.Time
}

func NewTokenService(masterSecret string, ttl, refreshGrace time.Duration, issuer string) (*TokenService, error) {
	key, err := DeriveSessionKey([]byte(masterSecret))
	if err != nil {
		return nil, err
	}
	return &TokenService{
		key:          key,
		ttl:          ttl,
		refreshGrace: refreshGrace,
		issuer:       issuer,
		now:          time.Now,
	}, nil
}

func (s *TokenService) Issue(subject string, role Role) (string, error) {
	if subject == "" || role == "" {
		return "", ErrMalformedToken
	}

	now := s.now()
	claims := &Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Verify returns the embedded identity, or one of ErrMissingToken,
// ErrMalformedToken, ErrInvalidSignature, ErrTokenExpired. An expired token
// never yields an identity: callers must treat it exactly like an absent one.
func (s *TokenService) Verify(tokenString string) (*Identity, error) {
	claims, err := s.parse(tokenString, true)
	if err != nil {
		return nil, err
	}
	return identityFromClaims(claims), nil
}

// Refresh issues a new token for the same subject and role. The input token
// must carry a valid signature and be no further than the refresh grace period
// past its expiry. The new token carries a fresh token ID, so a stale token
// cannot be chained indefinitely through its own replacements.
func (s *TokenService) Refresh(tokenString string) (string, error) {
	claims, err := s.parse(tokenString, false)
	if err != nil {
		return "", err
	}

	if claims.ExpiresAt == nil {
		return "", ErrMalformedToken
	}
	if s.now().After(claims.ExpiresAt.Time.Add(s.refreshGrace)) {
		return "", ErrTokenExpired
	}

	return s.Issue(claims.Subject, Role(claims.Role))
}

func (s *TokenService) parse(tokenString string, validateExpiry bool) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if !validateExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return s.key, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrMalformedToken
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

func identityFromClaims(claims *Claims) *Identity {
	identity := &Identity{
		Subject: claims.Subject,
		Role:    NormalizeRole(claims.Role),
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity
}

// TokenFromHeader extracts the bearer token from an Authorization header value.
func TokenFromHeader(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(parts[1]), nil
}
