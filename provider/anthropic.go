package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/linanwx/milo/logger"
)

const anthropicDefaultModel = "claude-sonnet-4-5"

// anthropicDefaultMaxTokens applies when the request does not set a cap;
// the Messages API requires one.
const anthropicDefaultMaxTokens = 4096

func init() {
	RegisterProvider("anthropic", ProviderRegistration{
		DefaultModel: anthropicDefaultModel,
		EnvKey:       "ANTHROPIC_API_KEY",
		EnvBase:      "ANTHROPIC_API_BASE",
		Constructor: func(apiKey, apiBase, modelName string) Provider {
			return newAnthropicProvider(apiKey, apiBase, modelName)
		},
	})
}

// AnthropicProvider implements the Provider interface for the Anthropic
// Messages API.
type AnthropicProvider struct {
	modelName string
	client    anthropic.Client
}

func newAnthropicProvider(apiKey, apiBase, modelName string) *AnthropicProvider {
	if modelName == "" {
		modelName = anthropicDefaultModel
	}

	opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(apiKey)}
	if base := strings.TrimSpace(apiBase); base != "" {
		opts = append(opts, anthropicoption.WithBaseURL(base))
	}

	return &AnthropicProvider{
		modelName: modelName,
		client:    anthropic.NewClient(opts...),
	}
}

// Chat sends a request to the Messages API. System messages are lifted out
// of the message list into the dedicated system field.
func (p *AnthropicProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	logger.Info(
		"anthropic request",
		"modelName", p.modelName,
		"messageCount", len(messages),
		"inputChars", inputChars(req.Messages),
	)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.modelName),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
		System:    system,
	}
	if req.Temperature != 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		logger.Error("anthropic request send error", "err", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	logger.Info(
		"anthropic response",
		"modelName", p.modelName,
		"stopReason", resp.StopReason,
		"inputTokens", resp.Usage.InputTokens,
		"outputTokens", resp.Usage.OutputTokens,
		"latencyMs", time.Since(start).Milliseconds(),
	)

	return &Response{
		Content: strings.TrimSpace(content.String()),
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}
