package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/threadline")
	t.Setenv("AUTH_MODE", "dev")
	t.Setenv("ASSISTANT_PROVIDER", "Scripted")
	t.Setenv("STREAM_REPLAY_LIMIT", "500")
	t.Setenv("STREAM_KEEPALIVE_INTERVAL", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, AssistantProviderScripted, cfg.AssistantProvider)
	assert.Equal(t, 50, cfg.StreamReplayLimit)
	assert.Equal(t, 20*time.Second, cfg.StreamKeepAlive)
	assert.Equal(t, []string{"Hello", " world"}, cfg.ScriptedDeltas)
	assert.Same(t, cfg, GetGlobal())
}

func TestLoadRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_POSTGRESQL_WRITE_DSN", "")
	t.Setenv("AUTH_MODE", "dev")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadOIDCValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/threadline")
	t.Setenv("AUTH_MODE", "oidc")
	t.Setenv("OIDC_ISSUER", "https://id.example.com")
	t.Setenv("OIDC_CLIENT_ID", "threadline")
	t.Setenv("OIDC_TOKEN_URL", "not a url")
	t.Setenv("OIDC_JWKS_URL", "https://id.example.com/jwks")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveRetention(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "retention zero", key: "STREAM_EVENT_RETENTION", value: "0"},
		{name: "retention negative", key: "STREAM_EVENT_RETENTION", value: "-1"},
		{name: "prune batch zero", key: "STREAM_PRUNE_BATCH", value: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/threadline")
			t.Setenv("AUTH_MODE", "dev")
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestIsAdmin(t *testing.T) {
	cfg := &Config{AdminUserIDs: []string{"usr_1"}, AdminSubjects: []string{"sub-9"}}
	assert.True(t, cfg.IsAdmin("usr_1", ""))
	assert.True(t, cfg.IsAdmin("usr_2", "sub-9"))
	assert.False(t, cfg.IsAdmin("usr_2", "sub-1"))
	assert.False(t, cfg.IsAdmin("", ""))
}

func TestLoadModelCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
default: fast
models:
  - name: fast
    model: gpt-4o-mini
  - name: local
    provider: vllm
    model: qwen2.5
    base_url: http://vllm:8000/v1
`), 0o600))

	catalog, err := LoadModelCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "fast", catalog.Default)
	entry, ok := catalog.Lookup("FAST")
	require.True(t, ok)
	assert.Equal(t, "openai", entry.Provider)

	missing, err := LoadModelCatalog(filepath.Join(dir, "nope.yml"))
	require.NoError(t, err)
	assert.Empty(t, missing.Models)
}

func TestLoadRateLimitSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ratelimits.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
profiles:
  - name: login
    algorithm: gcra
    requests_per_second: 1
    burst: 3
assignments:
  - profile: login
    method: POST
    path: /auth/login
`), 0o600))

	seed, err := LoadRateLimitSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Profiles, 1)
	assert.Equal(t, 3, seed.Profiles[0].Burst)
	assert.Equal(t, "/auth/login", seed.Assignments[0].PathPattern)

	none, err := LoadRateLimitSeed(filepath.Join(dir, "missing.yml"))
	require.NoError(t, err)
	assert.Nil(t, none)
}
