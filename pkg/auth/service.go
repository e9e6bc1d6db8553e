package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// LocalValidator is a self-contained TokenValidator for tests and
// single-process demos that don't run a real identity provider. Token
// issuance proper belongs to the external AUTH_PROVIDER; this validator
// only mints enough of a bearer token to exercise the middleware contract:
// it signs the claims Validate turns into an Introspection (client id,
// scope, grant type, expiry) plus an issued-at time and a jti token id,
// the latter used for revocation.
type LocalValidator struct {
	mu          sync.RWMutex
	revoked     map[string]struct{}
	rateLimiter *RateLimiter
	signingKey  []byte
}

// NewLocalValidator creates a LocalValidator. signingKey must stay stable
// across process restarts for issued tokens to keep validating.
func NewLocalValidator(signingKey []byte) *LocalValidator {
	return &LocalValidator{
		revoked:     make(map[string]struct{}),
		rateLimiter: NewRateLimiter(100, time.Minute),
		signingKey:  signingKey,
	}
}

func (s *LocalValidator) getSigningKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.signingKey, nil
}

// Issue mints a bearer token for clientID. m2m selects the
// client_credentials grant type, which Validate surfaces so the middleware
// marks the resulting Principal as machine-to-machine.
func (s *LocalValidator) Issue(clientID string, scope []string, m2m bool, ttl time.Duration) (string, error) {
	grantType := "authorization_code"
	if m2m {
		grantType = "client_credentials"
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":        clientID,
		"grant_type": grantType,
		"exp":        now.Add(ttl).Unix(),
		"iat":        now.Unix(),
		"jti":        uuid.NewString(),
	}
	if len(scope) > 0 {
		scopes := make([]any, 0, len(scope))
		for _, sc := range scope {
			scopes = append(scopes, sc)
		}
		claims["scope"] = scopes
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Revoke invalidates a previously issued token; subsequent Validate calls
// report it inactive.
func (s *LocalValidator) Revoke(tokenStr string) error {
	jti, err := s.tokenID(tokenStr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.revoked[jti] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *LocalValidator) tokenID(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, s.getSigningKey)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	jti, ok := claims["jti"].(string)
	if !ok || jti == "" {
		return "", fmt.Errorf("token carries no id")
	}
	return jti, nil
}

// Validate implements TokenValidator by parsing a locally-issued JWT and
// reporting its claims as an Introspection verdict.
func (s *LocalValidator) Validate(ctx context.Context, tokenStr string) (*Introspection, error) {
	if !s.rateLimiter.Allow() {
		return nil, fmt.Errorf("rate limit exceeded")
	}

	token, err := jwt.Parse(tokenStr, s.getSigningKey)
	if err != nil || !token.Valid {
		return &Introspection{Active: false}, nil
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return &Introspection{Active: false}, nil
	}

	if jti, ok := claims["jti"].(string); ok {
		s.mu.RLock()
		_, revoked := s.revoked[jti]
		s.mu.RUnlock()
		if revoked {
			return &Introspection{Active: false}, nil
		}
	}

	intro := &Introspection{Active: true}
	if sub, ok := claims["sub"].(string); ok {
		intro.ClientID = sub
	}
	if gt, ok := claims["grant_type"].(string); ok {
		intro.GrantType = gt
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		intro.Exp = exp.Time
	}
	if scopes, ok := claims["scope"].([]any); ok {
		for _, sc := range scopes {
			if s, ok := sc.(string); ok {
				intro.Scope = append(intro.Scope, s)
			}
		}
	}

	return intro, nil
}
