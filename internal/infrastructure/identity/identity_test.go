package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signer(t *testing.T) (*rsa.PrivateKey, jwt.Keyfunc) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key, func(*jwt.Token) (any, error) { return &key.PublicKey, nil }
}

func sign(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func tokenEndpoint(t *testing.T, idToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		_ = json.NewEncoder(w).Encode(map[string]string{"id_token": idToken, "access_token": "at"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOIDCResolveVerifiesIDToken(t *testing.T) {
	key, kf := signer(t)
	now := time.Now()
	idToken := sign(t, key, jwt.MapClaims{
		"iss":   "https://idp.example",
		"aud":   "threadline",
		"sub":   "user-123",
		"email": "ada@example.com",
		"name":  "Ada",
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
	})
	srv := tokenEndpoint(t, idToken)

	r := newOIDCResolver(OIDCConfig{Issuer: "https://idp.example", ClientID: "threadline", TokenURL: srv.URL, ClockSkew: 30 * time.Second}, kf, zerolog.Nop())
	id, err := r.Resolve(context.Background(), "good", "http://localhost/callback")
	require.NoError(t, err)
	assert.Equal(t, "user-123", id.Subject)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.Equal(t, "Ada", id.Name)

	_, err = r.Resolve(context.Background(), "bad", "")
	assert.Error(t, err)
}

func TestOIDCRejectsForeignTokens(t *testing.T) {
	key, kf := signer(t)
	now := time.Now()
	cases := map[string]jwt.MapClaims{
		"wrong issuer":   {"iss": "https://evil.example", "aud": "threadline", "sub": "u", "exp": now.Add(time.Hour).Unix()},
		"wrong audience": {"iss": "https://idp.example", "aud": "other", "sub": "u", "exp": now.Add(time.Hour).Unix()},
		"expired":        {"iss": "https://idp.example", "aud": "threadline", "sub": "u", "exp": now.Add(-time.Hour).Unix()},
		"no subject":     {"iss": "https://idp.example", "aud": "threadline", "exp": now.Add(time.Hour).Unix()},
	}
	for name, claims := range cases {
		t.Run(name, func(t *testing.T) {
			r := newOIDCResolver(OIDCConfig{Issuer: "https://idp.example", ClientID: "threadline", ClockSkew: 30 * time.Second}, kf, zerolog.Nop())
			_, err := r.verify(sign(t, key, claims))
			assert.Error(t, err)
		})
	}
}

func TestDevResolver(t *testing.T) {
	r := &DevResolver{Prefix: "dev:"}
	id, err := r.Resolve(context.Background(), "dev:Alice", "")
	require.NoError(t, err)
	assert.Equal(t, "dev|alice", id.Subject)
	assert.Equal(t, "alice@dev.local", id.Email)

	_, err = r.Resolve(context.Background(), "alice", "")
	assert.Error(t, err)
	_, err = r.Resolve(context.Background(), "dev:", "")
	assert.Error(t, err)
}
