// Package auth implements the bearer-token + DID-signature contract
// enforced identically at the JSON-RPC/SSE and gRPC surfaces (spec §4.6):
// extract a token, call out to a TokenValidator, attach a Principal to the
// request context, and optionally co-verify a DID signature on mutating
// calls.
package auth

import (
	"context"
	"time"
)

// Principal is the authenticated identity attached to a request-local
// context after a token passes validation.
type Principal struct {
	ClientID      string
	Scope         []string
	Exp           time.Time
	IsM2M         bool
	SignatureInfo *SignatureInfo
}

// SignatureInfo records the outcome of the optional DID signature co-check.
type SignatureInfo struct {
	DID      string
	Verified bool
}

// Introspection is a token validator's verdict on a bearer token.
type Introspection struct {
	Active    bool
	ClientID  string
	Scope     []string
	Exp       time.Time
	GrantType string
	// TTL is the validator's own cache hint; the middleware still caps the
	// effective cache lifetime at Exp.
	TTL time.Duration
}

// TokenValidator is the external introspection collaborator named in spec
// §4.6 as deliberately out of scope for this core: production deployments
// point it at an OAuth2/OIDC identity provider. LocalValidator below is a
// self-contained implementation usable for tests and single-process demos.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Introspection, error)
}

// KeyProvider resolves the public key bound to a DID, for the optional
// signature co-check. Like TokenValidator, a real deployment backs this
// with the identity provider's client metadata endpoint.
type KeyProvider interface {
	PublicKey(ctx context.Context, did string) (any, error)
}

type principalContextKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext retrieves the Principal attached by the auth
// middleware/interceptor, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok
}

func (i *Introspection) isM2M() bool { return i.GrantType == "client_credentials" }
