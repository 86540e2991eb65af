package inference

import (
	"fmt"

	"github.com/rs/zerolog"

	"threadline/internal/config"
	"threadline/internal/domain/assistant"
)

// ProvideRuntime selects the assistant backend named by ASSISTANT_PROVIDER.
func ProvideRuntime(cfg *config.Config, log zerolog.Logger) (assistant.Runtime, error) {
	switch cfg.AssistantProvider {
	case config.AssistantProviderScripted:
		log.Info().Int("deltas", len(cfg.ScriptedDeltas)).Msg("using scripted assistant runtime")
		return &assistant.ScriptedRuntime{Deltas: cfg.ScriptedDeltas, Gap: cfg.ScriptedGap}, nil
	case config.AssistantProviderOpenAI:
		catalog, err := config.LoadModelCatalog(cfg.AssistantModelsFile)
		if err != nil {
			return nil, err
		}
		return NewOpenAIRuntime(OpenAIConfig{
			BaseURL:      cfg.OpenAIBaseURL,
			APIKey:       cfg.OpenAIAPIKey,
			DefaultModel: cfg.AssistantDefaultModel,
			Timeout:      cfg.AssistantTimeout,
			CacheSize:    cfg.AssistantModelCacheSize,
		}, catalog, log)
	default:
		return nil, fmt.Errorf("unsupported assistant provider %q", cfg.AssistantProvider)
	}
}
