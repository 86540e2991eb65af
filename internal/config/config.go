package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

var globalConfig *Config

const (
	AuthModeOIDC = "oidc"
	AuthModeDev  = "dev"

	AssistantProviderOpenAI   = "openai"
	AssistantProviderScripted = "scripted"
)

// Config holds all environment backed configuration for the threadline server.
type Config struct {
	// HTTP Server
	HTTPPort           int           `env:"HTTP_PORT" envDefault:"8080"`
	PprofPort          int           `env:"PPROF_PORT" envDefault:"0"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:8080"`
	TrustForwardedFor  bool          `env:"TRUST_FORWARDED_FOR" envDefault:"false"`

	// PostgreSQL
	DatabaseURL          string        `env:"DATABASE_URL"`
	DBPostgresqlWriteDSN string        `env:"DB_POSTGRESQL_WRITE_DSN"`
	DBPostgresqlRead1DSN string        `env:"DB_POSTGRESQL_READ1_DSN"`
	DBMaxIdleConns       int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBMaxOpenConns       int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBConnMaxLifetime    time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	AutoMigrate          bool          `env:"AUTO_MIGRATE" envDefault:"true"`

	// Redis (optional; shared rate-limit state and maintenance locks)
	RedisURL string `env:"REDIS_URL"`

	// Auth
	AuthMode           string        `env:"AUTH_MODE" envDefault:"oidc"`
	OIDCIssuer         string        `env:"OIDC_ISSUER"`
	OIDCClientID       string        `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret   string        `env:"OIDC_CLIENT_SECRET"`
	OIDCTokenURL       string        `env:"OIDC_TOKEN_URL"`
	OIDCJWKSURL        string        `env:"OIDC_JWKS_URL"`
	OIDCRedirectURL    string        `env:"OIDC_REDIRECT_URL"`
	JWKSRefreshEvery   time.Duration `env:"JWKS_REFRESH_INTERVAL" envDefault:"5m"`
	AuthClockSkew      time.Duration `env:"AUTH_CLOCK_SKEW" envDefault:"30s"`
	AdminUserIDs       []string      `env:"ADMIN_USER_IDS" envSeparator:","`
	AdminSubjects      []string      `env:"ADMIN_SUBJECTS" envSeparator:","`
	InviteTTL          time.Duration `env:"INVITE_TTL" envDefault:"168h"`
	DevLoginCodePrefix string        `env:"DEV_LOGIN_CODE_PREFIX" envDefault:"dev:"`

	// Sessions and cookies
	SessionIdleTTL          time.Duration `env:"SESSION_IDLE_TTL" envDefault:"12h"`
	SessionAbsoluteTTL      time.Duration `env:"SESSION_ABSOLUTE_TTL" envDefault:"720h"`
	SessionRefreshThreshold time.Duration `env:"SESSION_REFRESH_THRESHOLD" envDefault:"15m"`
	SessionCookieName       string        `env:"SESSION_COOKIE_NAME" envDefault:"tl_session"`
	CSRFCookieName          string        `env:"CSRF_COOKIE_NAME" envDefault:"tl_csrf"`
	CSRFHeaderName          string        `env:"CSRF_HEADER_NAME" envDefault:"X-CSRF-Token"`
	CookieDomain            string        `env:"COOKIE_DOMAIN"`
	CookieSecure            bool          `env:"COOKIE_SECURE" envDefault:"false"`

	// Security headers
	HSTSEnabled           bool          `env:"HSTS_ENABLED" envDefault:"false"`
	HSTSMaxAge            time.Duration `env:"HSTS_MAX_AGE" envDefault:"8760h"`
	ContentSecurityPolicy string        `env:"CONTENT_SECURITY_POLICY" envDefault:"default-src 'none'; frame-ancestors 'none'; base-uri 'none'"`

	// Streaming
	StreamQueueCapacity  int           `env:"STREAM_QUEUE_CAPACITY" envDefault:"256"`
	StreamReplayLimit    int           `env:"STREAM_REPLAY_LIMIT" envDefault:"50"`
	StreamReplayMax      int           `env:"STREAM_REPLAY_MAX" envDefault:"1000"`
	StreamKeepAlive      time.Duration `env:"STREAM_KEEPALIVE_INTERVAL" envDefault:"20s"`
	StreamEventRetention int           `env:"STREAM_EVENT_RETENTION" envDefault:"5000"`
	StreamPruneBatch     int           `env:"STREAM_PRUNE_BATCH" envDefault:"500"`
	TypingTTL            time.Duration `env:"TYPING_TTL" envDefault:"6s"`

	// Messages
	MessageMaxChars int `env:"MESSAGE_MAX_CHARS" envDefault:"32000"`

	// Assistant
	AssistantProvider        string        `env:"ASSISTANT_PROVIDER" envDefault:"openai"`
	AssistantModelsFile      string        `env:"ASSISTANT_MODELS_FILE" envDefault:"config/models.yml"`
	AssistantDefaultModel    string        `env:"ASSISTANT_DEFAULT_MODEL" envDefault:"gpt-4o-mini"`
	AssistantTimeout         time.Duration `env:"ASSISTANT_TIMEOUT" envDefault:"120s"`
	AssistantWorkers         int           `env:"ASSISTANT_WORKERS" envDefault:"8"`
	AssistantQueueSize       int           `env:"ASSISTANT_QUEUE_SIZE" envDefault:"64"`
	AssistantContextMaxDepth int           `env:"ASSISTANT_CONTEXT_MAX_DEPTH" envDefault:"16"`
	AssistantContextMaxChars int           `env:"ASSISTANT_CONTEXT_MAX_CHARS" envDefault:"24000"`
	AssistantSiblings        bool          `env:"ASSISTANT_CONTEXT_SIBLINGS" envDefault:"false"`
	AssistantModelCacheSize  int           `env:"ASSISTANT_MODEL_CACHE_SIZE" envDefault:"32"`
	OpenAIBaseURL            string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIAPIKey             string        `env:"OPENAI_API_KEY"`
	ScriptedDeltas           []string      `env:"SCRIPTED_DELTAS" envSeparator:"|" envDefault:"Hello| world"`
	ScriptedGap              time.Duration `env:"SCRIPTED_GAP" envDefault:"50ms"`

	// Rate limiting
	RateLimitDefaultRPS    float64 `env:"RATE_LIMIT_DEFAULT_RPS" envDefault:"10"`
	RateLimitDefaultBurst  int     `env:"RATE_LIMIT_DEFAULT_BURST" envDefault:"20"`
	RateLimitSeedFile      string  `env:"RATE_LIMIT_SEED_FILE" envDefault:"config/ratelimits.yml"`
	RateLimitReloadMinutes int     `env:"RATE_LIMIT_RELOAD_MINUTES" envDefault:"1"`

	// Maintenance
	MaintenanceEnabled bool `env:"MAINTENANCE_ENABLED" envDefault:"true"`

	// Observability / Logging
	OTLPEndpoint     string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPHeaders      string `env:"OTEL_EXPORTER_OTLP_HEADERS"`
	ServiceName      string `env:"SERVICE_NAME" envDefault:"threadline"`
	ServiceNamespace string `env:"SERVICE_NAMESPACE" envDefault:"threadline"`
	Environment      string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string `env:"LOG_FORMAT" envDefault:"console"`

	EnvReloadedAt time.Time
}

// Load parses environment variables into Config and performs validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	cfg.EnvReloadedAt = time.Now()
	globalConfig = cfg
	return cfg, nil
}

func (c *Config) normalize() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)
	c.AuthMode = strings.ToLower(strings.TrimSpace(c.AuthMode))
	c.AssistantProvider = strings.ToLower(strings.TrimSpace(c.AssistantProvider))

	if c.GetDatabaseWriteDSN() == "" {
		return errors.New("either DATABASE_URL or DB_POSTGRESQL_WRITE_DSN must be provided")
	}

	switch c.AuthMode {
	case AuthModeDev:
	case AuthModeOIDC:
		if c.OIDCIssuer == "" || c.OIDCClientID == "" || c.OIDCTokenURL == "" || c.OIDCJWKSURL == "" {
			return errors.New("AUTH_MODE=oidc requires OIDC_ISSUER, OIDC_CLIENT_ID, OIDC_TOKEN_URL and OIDC_JWKS_URL")
		}
		for name, raw := range map[string]string{"OIDC_TOKEN_URL": c.OIDCTokenURL, "OIDC_JWKS_URL": c.OIDCJWKSURL} {
			if _, err := url.ParseRequestURI(raw); err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
		}
	default:
		return fmt.Errorf("unsupported AUTH_MODE %q", c.AuthMode)
	}

	switch c.AssistantProvider {
	case AssistantProviderOpenAI, AssistantProviderScripted:
	default:
		return fmt.Errorf("unsupported ASSISTANT_PROVIDER %q", c.AssistantProvider)
	}

	if c.SessionIdleTTL <= 0 || c.SessionAbsoluteTTL <= 0 {
		return errors.New("session TTLs must be positive")
	}
	if c.SessionIdleTTL > c.SessionAbsoluteTTL {
		c.SessionIdleTTL = c.SessionAbsoluteTTL
	}
	if c.SessionRefreshThreshold < 0 {
		c.SessionRefreshThreshold = 0
	}
	if c.StreamQueueCapacity < 2 {
		return errors.New("STREAM_QUEUE_CAPACITY must be at least 2")
	}
	if c.StreamReplayLimit <= 0 || c.StreamReplayLimit > 50 {
		c.StreamReplayLimit = 50
	}
	if c.StreamReplayMax < c.StreamReplayLimit {
		c.StreamReplayMax = c.StreamReplayLimit
	}
	if c.StreamKeepAlive < 15*time.Second || c.StreamKeepAlive > 30*time.Second {
		c.StreamKeepAlive = 20 * time.Second
	}
	if c.StreamEventRetention < 1 {
		return errors.New("STREAM_EVENT_RETENTION must be at least 1")
	}
	if c.StreamPruneBatch < 1 {
		return errors.New("STREAM_PRUNE_BATCH must be at least 1")
	}
	if c.RateLimitDefaultRPS <= 0 || c.RateLimitDefaultBurst <= 0 {
		return errors.New("default rate limit must be positive")
	}
	if c.AssistantWorkers <= 0 {
		c.AssistantWorkers = 1
	}
	return nil
}

// GetDatabaseWriteDSN returns the primary DSN.
func (c *Config) GetDatabaseWriteDSN() string {
	if c.DBPostgresqlWriteDSN != "" {
		return c.DBPostgresqlWriteDSN
	}
	return c.DatabaseURL
}

// IsAdmin reports whether the user id or subject is configured as an administrator.
func (c *Config) IsAdmin(userID, subject string) bool {
	return (userID != "" && slices.Contains(c.AdminUserIDs, userID)) ||
		(subject != "" && slices.Contains(c.AdminSubjects, subject))
}

// GetGlobal returns the config loaded last by Load.
func GetGlobal() *Config {
	return globalConfig
}

var Version = "dev"

func IsDev() bool {
	return strings.HasPrefix(Version, "dev")
}
