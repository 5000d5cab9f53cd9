package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-lingo/backend/internal/config"
	"github.com/zhouzirui/z-lingo/backend/internal/model/catalog"
	"github.com/zhouzirui/z-lingo/backend/internal/relay"
)

const historyLimit = 20

// Message is one inbound conversation entry.
type Message struct {
	Role    string
	Content string
}

// Request is a chat completion request from a client.
type Request struct {
	Model    string
	Mode     Mode
	Messages []Message
}

// Service encapsulates AI-powered chat functionality
type Service struct {
	template  prompt.ChatTemplate
	chain     compose.Runnable[map[string]any, *schema.Message]
	provider  *Provider
	catalog   catalog.Store
	prompts   *PromptBuilder
	cfg       config.AIConfig
	logger    zerolog.Logger
}

// NewService creates a new AI service instance. Streaming goes straight to the
// provider's chat/completions endpoint when an API key is configured; otherwise
// replies are generated through the ark chat model in one piece.
func NewService(ctx context.Context, store catalog.Store, cfg config.AIConfig, logger zerolog.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	var provider *Provider
	if cfg.CanStream() {
		provider = NewProvider(cfg, nil)
	}
	return newService(ctx, chatModel, provider, store, cfg, logger)
}

func newService(ctx context.Context, chatModel model.BaseChatModel, provider *Provider, store catalog.Store, cfg config.AIConfig, logger zerolog.Logger) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		template:  promptTemplate,
		chain:     runnable,
		provider:  provider,
		catalog:   store,
		prompts:   NewPromptBuilder(),
		cfg:       cfg,
		logger:    logger.With().Str("component", "ai").Logger(),
	}, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.provider != nil && s.cfg.StreamResponse
}

// DefaultModel returns the configured model name.
func (s *Service) DefaultModel() string {
	return s.cfg.Model
}

// Open starts a completion for req and returns its upstream event source.
func (s *Service) Open(ctx context.Context, req Request) (relay.Source, error) {
	input := s.buildChainInput(ctx, req)

	if !s.StreamingEnabled() {
		return relay.NewTextSource(func(ctx context.Context) (string, error) {
			return s.generate(ctx, input)
		}), nil
	}

	messages, err := s.template.Format(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to format prompt: %w", err)
	}

	modelName := req.Model
	if modelName == "" {
		modelName = s.cfg.Model
	}

	source, err := s.provider.Stream(ctx, modelName, messages)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("model", modelName).Str("mode", string(req.Mode)).Int("messages", len(messages)).Msg("upstream stream opened")
	return source, nil
}

func (s *Service) generate(ctx context.Context, input map[string]any) (string, error) {
	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	s.logger.Debug().Int("length", len(response.Content)).Msg("generated response")
	return response.Content, nil
}

// buildChainInput creates the template variables for the model.
func (s *Service) buildChainInput(ctx context.Context, req Request) map[string]any {
	outline, err := s.catalog.Outline(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("catalog outline unavailable, prompting without it")
		outline = catalog.Outline{}
	}

	return map[string]any{
		"system":  s.prompts.BuildSystemPrompt(req.Mode, outline),
		"history": buildHistoryMessages(req.Messages),
	}
}

// buildHistoryMessages keeps the most recent user and assistant turns. Client
// supplied system messages are dropped.
func buildHistoryMessages(messages []Message) []*schema.Message {
	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch strings.ToLower(msg.Role) {
		case string(schema.User):
			history = append(history, schema.UserMessage(msg.Content))
		case string(schema.Assistant):
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	return history
}
