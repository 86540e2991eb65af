package domain

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"threadline/internal/config"
	"threadline/internal/domain/assistant"
	"threadline/internal/domain/auth"
	"threadline/internal/domain/conversation"
	"threadline/internal/domain/hub"
	"threadline/internal/domain/message"
	"threadline/internal/domain/presence"
	"threadline/internal/domain/ratelimit"
	"threadline/internal/domain/session"
	"threadline/internal/domain/streamevent"
	"threadline/internal/domain/supervisor"
	"threadline/internal/domain/user"
)

// ServiceProvider provides all domain services
var ServiceProvider = wire.NewSet(
	// Streaming
	ProvideHubConfig,
	hub.New,
	conversation.NewDirectory,
	wire.Bind(new(hub.MembershipLister), new(*conversation.Directory)),
	wire.Bind(new(streamevent.Publisher), new(*hub.Hub)),
	ProvideSupervisor,

	// Users and sessions
	user.NewService,
	ProvideSessionConfig,
	session.NewManager,
	auth.NewService,
	wire.Bind(new(auth.AdminPolicy), new(*config.Config)),

	// Conversations and messages
	ProvideConversationConfig,
	conversation.NewService,
	wire.Bind(new(conversation.RotationMarker), new(*session.Manager)),
	wire.Bind(new(conversation.SubscriptionCloser), new(*hub.Hub)),
	ProvideMessageConfig,
	message.NewService,
	wire.Bind(new(message.Access), new(*conversation.Service)),
	wire.Bind(new(message.GenerationCanceller), new(*supervisor.Supervisor)),
	ProvidePresenceService,

	// Assistant
	ProvidePoolConfig,
	assistant.NewPool,
	ProvideResponderConfig,
	assistant.NewResponder,
	wire.Bind(new(assistant.Messages), new(*message.Service)),

	// Rate limiting
	ProvideEngineConfig,
	ratelimit.NewEngine,
	ratelimit.NewAdminService,
)

func ProvideHubConfig(cfg *config.Config) hub.Config {
	return hub.Config{
		QueueCapacity: cfg.StreamQueueCapacity,
		ReplayLimit:   cfg.StreamReplayLimit,
		ReplayMax:     cfg.StreamReplayMax,
		KeepAlive:     cfg.StreamKeepAlive,
	}
}

func ProvideSupervisor(cfg *config.Config) *supervisor.Supervisor {
	return supervisor.New(cfg.AssistantTimeout)
}

func ProvideSessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		IdleTTL:          cfg.SessionIdleTTL,
		AbsoluteTTL:      cfg.SessionAbsoluteTTL,
		RefreshThreshold: cfg.SessionRefreshThreshold,
	}
}

func ProvideConversationConfig(cfg *config.Config) conversation.Config {
	return conversation.Config{InviteTTL: cfg.InviteTTL}
}

func ProvideMessageConfig(cfg *config.Config) message.Config {
	return message.Config{
		MaxContentChars: cfg.MessageMaxChars,
		ContextMaxDepth: cfg.AssistantContextMaxDepth,
		ContextMaxChars: cfg.AssistantContextMaxChars,
		ContextSiblings: cfg.AssistantSiblings,
	}
}

func ProvidePresenceService(
	repo presence.Repository,
	convs *conversation.Service,
	messages *message.Service,
	h *hub.Hub,
	cfg *config.Config,
	log zerolog.Logger,
) *presence.Service {
	return presence.NewService(repo, convs, messages, h, h, cfg.TypingTTL, log)
}

func ProvidePoolConfig(cfg *config.Config) assistant.PoolConfig {
	return assistant.PoolConfig{Workers: cfg.AssistantWorkers, QueueSize: cfg.AssistantQueueSize}
}

func ProvideResponderConfig(cfg *config.Config) assistant.ResponderConfig {
	return assistant.ResponderConfig{Timeout: cfg.AssistantTimeout, DefaultModel: cfg.AssistantDefaultModel}
}

// ProvideEngineConfig turns the YAML seed file into the engine's seed. A broken seed file is logged and ignored.
func ProvideEngineConfig(cfg *config.Config, log zerolog.Logger) ratelimit.EngineConfig {
	out := ratelimit.EngineConfig{Default: ratelimit.Params{
		RequestsPerSecond: cfg.RateLimitDefaultRPS,
		Burst:             cfg.RateLimitDefaultBurst,
	}}
	seed, err := config.LoadRateLimitSeed(cfg.RateLimitSeedFile)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring rate limit seed file")
		return out
	}
	if seed == nil {
		return out
	}
	out.Seed = &ratelimit.Seed{}
	for _, p := range seed.Profiles {
		out.Seed.Profiles = append(out.Seed.Profiles, ratelimit.Profile{
			Name:      p.Name,
			Algorithm: p.Algorithm,
			Params:    ratelimit.Params{RequestsPerSecond: p.RequestsPerSecond, Burst: p.Burst},
		})
	}
	for _, a := range seed.Assignments {
		out.Seed.Assignments = append(out.Seed.Assignments, ratelimit.SeedAssignment{
			Profile:     a.Profile,
			Method:      a.Method,
			PathPattern: a.PathPattern,
		})
	}
	return out
}
