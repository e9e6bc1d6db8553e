package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubKeyProvider struct {
	pub *ecdsa.PublicKey
}

func (s *stubKeyProvider) PublicKey(ctx context.Context, did string) (any, error) {
	return s.pub, nil
}

func signDIDPayload(t *testing.T, priv *ecdsa.PrivateKey, did string, ts int64, body []byte) string {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"body":      string(body),
		"timestamp": ts,
		"did":       did,
	})
	require.NoError(t, err)
	raw, err := jwt.SigningMethodES256.Sign(string(payload), priv)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

type stubValidator struct {
	intro *Introspection
	err   error
	calls int
}

func (s *stubValidator) Validate(ctx context.Context, token string) (*Introspection, error) {
	s.calls++
	return s.intro, s.err
}

func TestMiddleware_MissingTokenIsUnauthenticated(t *testing.T) {
	mw := NewMiddleware(&stubValidator{}, nil, 0)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_PublicPathsBypassAuth(t *testing.T) {
	mw := NewMiddleware(&stubValidator{}, nil, 0)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil)

	called := false
	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_ValidTokenAttachesPrincipal(t *testing.T) {
	validator := &stubValidator{intro: &Introspection{
		Active:    true,
		ClientID:  "client-1",
		Exp:       time.Now().Add(time.Hour),
		GrantType: "client_credentials",
	}}
	mw := NewMiddleware(validator, nil, 8)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("Authorization", "Bearer good-token")

	var seen *Principal
	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = p
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	require.NotNil(t, seen)
	assert.Equal(t, "client-1", seen.ClientID)
	assert.True(t, seen.IsM2M)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_CachesSuccessfulIntrospection(t *testing.T) {
	validator := &stubValidator{intro: &Introspection{
		Active:   true,
		ClientID: "client-1",
		Exp:      time.Now().Add(time.Hour),
	}}
	mw := NewMiddleware(validator, nil, 8)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rec, req)
	}

	assert.Equal(t, 1, validator.calls)
}

func TestMiddleware_DIDSignatureWithValidTimestampPasses(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	validator := &stubValidator{intro: &Introspection{
		Active:   true,
		ClientID: "client-1",
		Exp:      time.Now().Add(time.Hour),
	}}
	mw := NewMiddleware(validator, &stubKeyProvider{pub: &priv.PublicKey}, 0)

	body := []byte(`{"jsonrpc":"2.0","method":"message/send"}`)
	did := "did:key:zExample"
	ts := time.Now().Unix()
	sig := signDIDPayload(t, priv, did, ts, body)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(string(body)))
	req.Header.Set("Authorization", "Bearer good-token")
	req.Header.Set("X-DID", did)
	req.Header.Set("X-DID-Signature", sig)
	req.Header.Set("X-DID-Timestamp", strconv.FormatInt(ts, 10))

	var seen *Principal
	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = p
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen.SignatureInfo)
	assert.True(t, seen.SignatureInfo.Verified)
	assert.Equal(t, did, seen.SignatureInfo.DID)
}

func TestMiddleware_DIDSignatureOverStringTimestampIsRejected(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	validator := &stubValidator{intro: &Introspection{
		Active:   true,
		ClientID: "client-1",
		Exp:      time.Now().Add(time.Hour),
	}}
	mw := NewMiddleware(validator, &stubKeyProvider{pub: &priv.PublicKey}, 0)

	body := []byte(`{"jsonrpc":"2.0","method":"message/send"}`)
	did := "did:key:zExample"
	ts := time.Now().Unix()

	payload, err := json.Marshal(map[string]any{
		"body":      string(body),
		"timestamp": fmt.Sprintf("%d", ts),
		"did":       did,
	})
	require.NoError(t, err)
	raw, err := jwt.SigningMethodES256.Sign(string(payload), priv)
	require.NoError(t, err)
	sig := base64.StdEncoding.EncodeToString(raw)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(string(body)))
	req.Header.Set("Authorization", "Bearer good-token")
	req.Header.Set("X-DID", did)
	req.Header.Set("X-DID-Signature", sig)
	req.Header.Set("X-DID-Timestamp", strconv.FormatInt(ts, 10))

	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_InactiveTokenIsUnauthenticated(t *testing.T) {
	validator := &stubValidator{intro: &Introspection{Active: false}}
	mw := NewMiddleware(validator, nil, 0)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
	req.Header.Set("Authorization", "Bearer stale-token")

	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
