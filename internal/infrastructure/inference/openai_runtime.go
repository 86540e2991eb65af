package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"resty.dev/v3"

	"threadline/internal/config"
	"threadline/internal/domain/assistant"
	"threadline/internal/domain/streamevent"
	"threadline/internal/utils/httpclients"
	"threadline/internal/utils/platformerrors"
)

const (
	dataPrefix = "data: "
	doneMarker = "[DONE]"
)

// OpenAIConfig configures the OpenAI-compatible runtime.
type OpenAIConfig struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
	CacheSize    int
}

// OpenAIRuntime streams replies from any OpenAI-compatible /chat/completions endpoint.
type OpenAIRuntime struct {
	cfg     OpenAIConfig
	catalog *config.ModelCatalog
	log     zerolog.Logger

	mu      sync.RWMutex
	clients *lru.Cache
}

var _ assistant.Runtime = (*OpenAIRuntime)(nil)

func NewOpenAIRuntime(cfg OpenAIConfig, catalog *config.ModelCatalog, log zerolog.Logger) (*OpenAIRuntime, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 32
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	clients, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &OpenAIRuntime{
		cfg:     cfg,
		catalog: catalog,
		log:     log.With().Str("component", "openai-runtime").Logger(),
		clients: clients,
	}, nil
}

type target struct {
	name      string
	model     string
	baseURL   string
	apiKey    string
	maxTokens int
}

func (r *OpenAIRuntime) resolve(ctx context.Context, requested string) (target, error) {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = r.cfg.DefaultModel
		if r.catalog != nil && r.catalog.Default != "" {
			name = r.catalog.Default
		}
	}
	t := target{name: name, model: name, baseURL: r.cfg.BaseURL, apiKey: r.cfg.APIKey}
	entry, ok := r.catalog.Lookup(name)
	if !ok {
		if r.catalog != nil && len(r.catalog.Models) > 0 {
			return target{}, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeValidation,
				fmt.Sprintf("unknown model %q", name), nil, "3a2c1f07-5d8e-4b61-9a0f-6c4e7d2b8a15")
		}
		return t, nil
	}
	t.name = entry.Name
	t.model = entry.Model
	t.maxTokens = entry.MaxTokens
	if entry.BaseURL != "" {
		t.baseURL = entry.BaseURL
	}
	if entry.APIKeyEnv != "" {
		t.apiKey = os.Getenv(entry.APIKeyEnv)
	}
	return t, nil
}

// clientKey identifies a cached client by provider and model name.
func clientKey(t target) string {
	return config.AssistantProviderOpenAI + "|" + t.name
}

func (r *OpenAIRuntime) client(t target) *resty.Client {
	key := clientKey(t)
	r.mu.RLock()
	cached, ok := r.clients.Get(key)
	r.mu.RUnlock()
	if ok {
		return cached.(*resty.Client)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.clients.Get(key); ok {
		return cached.(*resty.Client)
	}
	client := httpclients.NewClient("openai:" + t.name)
	client.SetBaseURL(strings.TrimRight(t.baseURL, "/"))
	client.SetTimeout(r.cfg.Timeout)
	if apiKey := strings.TrimSpace(t.apiKey); apiKey != "" && !strings.EqualFold(apiKey, "none") {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	r.clients.Add(key, client)
	return client
}

func (r *OpenAIRuntime) StreamReply(ctx context.Context, req assistant.Request) (assistant.Stream, error) {
	t, err := r.resolve(ctx, req.Model())
	if err != nil {
		return nil, err
	}

	body := openai.ChatCompletionRequest{
		Model:         t.model,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
		Messages:      make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
	}
	if t.maxTokens > 0 {
		body.MaxTokens = t.maxTokens
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := r.client(t).R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream").
		SetHeader("Accept-Encoding", "identity").
		SetBody(body).
		SetDoNotParseResponse(true).
		Post("/chat/completions")
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "assistant backend request failed")
	}
	if resp.IsError() {
		return nil, errorFromResponse(ctx, resp)
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
			"assistant backend returned an empty body", nil, "b0d64e2f-17a3-4c9d-8e52-f4a1c9376d08")
	}

	r.log.Debug().Str("model", t.name).Str("message_id", req.MessageID).Msg("assistant stream opened")
	return &sseStream{
		body:   resp.RawResponse.Body,
		reader: bufio.NewReader(resp.RawResponse.Body),
		prompt: assistant.EstimatePromptTokens(req.Messages),
	}, nil
}

func errorFromResponse(ctx context.Context, resp *resty.Response) error {
	msg := fmt.Sprintf("assistant backend returned %d", resp.StatusCode())
	if resp.RawResponse != nil && resp.RawResponse.Body != nil {
		defer resp.RawResponse.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.RawResponse.Body, 4096))
		if trimmed := strings.TrimSpace(string(raw)); trimmed != "" {
			msg += ": " + trimmed
		}
	}
	return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, msg, nil, "6f8e21c4-0b7d-49a3-a5e6-2d93c1f0b7e4")
}

// sseStream parses an OpenAI chat completion event stream.
type sseStream struct {
	body       io.ReadCloser
	reader     *bufio.Reader
	cumulative strings.Builder
	// prompt holds an estimate until a usage chunk reports the real count.
	prompt int
	finish string
	usage  *streamevent.Usage
	done   bool
}

func (s *sseStream) Recv(ctx context.Context) (assistant.Chunk, error) {
	for {
		if s.done {
			return assistant.Chunk{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return assistant.Chunk{}, err
		}
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return assistant.Chunk{}, ctxErr
			}
			if err == io.EOF {
				return s.terminal()
			}
			return assistant.Chunk{}, fmt.Errorf("read stream: %w", err)
		}

		line = strings.TrimSpace(line)
		data, found := strings.CutPrefix(line, dataPrefix)
		if !found {
			continue
		}
		if data == doneMarker {
			return s.terminal()
		}

		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			s.prompt = chunk.Usage.PromptTokens
			s.usage = &streamevent.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			s.finish = string(choice.FinishReason)
		}
		if choice.Delta.Content == "" {
			continue
		}
		s.cumulative.WriteString(choice.Delta.Content)
		return assistant.Chunk{Delta: choice.Delta.Content, Cumulative: s.cumulative.String(), Usage: s.usage}, nil
	}
}

func (s *sseStream) terminal() (assistant.Chunk, error) {
	s.done = true
	finish := s.finish
	switch finish {
	case "":
		finish = assistant.FinishStop
	case string(openai.FinishReasonStop), string(openai.FinishReasonLength):
	default:
		finish = assistant.FinishStop
	}
	return assistant.Chunk{Cumulative: s.cumulative.String(), FinishReason: finish, Usage: s.usage}, nil
}

func (s *sseStream) PromptTokens() int { return s.prompt }

func (s *sseStream) Close() error {
	return s.body.Close()
}
