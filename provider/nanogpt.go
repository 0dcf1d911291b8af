// Package provider provides LLM provider implementations.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/linanwx/milo/logger"
	openai "github.com/openai/openai-go/v3"
	oaioption "github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	nanoGPTChatAPIBase    = "https://nano-gpt.com/api/v1"
	nanoGPTDefaultBalance = "https://nano-gpt.com/api/check-balance"
	nanoGPTDefaultModel   = "chatgpt-4o-latest"
	nanoGPTImageModel     = "nano-banana"

	sdkMaxRetries = 2
)

func init() {
	RegisterProvider("nanogpt", ProviderRegistration{
		DefaultModel: nanoGPTDefaultModel,
		EnvKey:       "NANOGPT_API_KEY",
		EnvBase:      "NANOGPT_API_BASE",
		Constructor: func(apiKey, apiBase, modelName string) Provider {
			return newNanoGPTProvider(apiKey, apiBase, modelName)
		},
	})
}

// NanoGPTProvider implements the Provider interface for the NanoGPT API.
// Chat completions live under /api/v1 while image generation lives under
// /v1, so the provider keeps two SDK clients.
type NanoGPTProvider struct {
	apiKey     string
	apiBase    string
	modelName  string
	balanceURL string
	chat       openai.Client
	images     openai.Client
	rest       *resty.Client
}

func newNanoGPTProvider(apiKey, apiBase, modelName string) *NanoGPTProvider {
	if modelName == "" {
		modelName = nanoGPTDefaultModel
	}

	chatBase := normalizeSDKBaseURL(apiBase, nanoGPTChatAPIBase, "/chat/completions")
	chatClient := openai.NewClient(
		oaioption.WithAPIKey(apiKey),
		oaioption.WithBaseURL(chatBase),
		oaioption.WithMaxRetries(sdkMaxRetries),
	)
	imageClient := openai.NewClient(
		oaioption.WithAPIKey(apiKey),
		oaioption.WithBaseURL(nanoGPTImageBase(chatBase)),
		oaioption.WithMaxRetries(sdkMaxRetries),
	)

	return &NanoGPTProvider{
		apiKey:     apiKey,
		apiBase:    chatBase,
		modelName:  modelName,
		balanceURL: nanoGPTBalanceURL(chatBase),
		chat:       chatClient,
		images:     imageClient,
		rest:       resty.New().SetTimeout(15 * time.Second),
	}
}

// nanoGPTImageBase derives the image API base from the chat base.
func nanoGPTImageBase(chatBase string) string {
	if strings.HasSuffix(chatBase, "/api/v1") {
		return strings.TrimSuffix(chatBase, "/api/v1") + "/v1"
	}
	return chatBase
}

// nanoGPTBalanceURL derives the balance endpoint from the chat base.
func nanoGPTBalanceURL(chatBase string) string {
	if strings.HasSuffix(chatBase, "/api/v1") {
		return strings.TrimSuffix(chatBase, "/v1") + "/check-balance"
	}
	return nanoGPTDefaultBalance
}

// Chat sends a chat completion request to NanoGPT.
func (p *NanoGPTProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	logger.Info(
		"nanogpt request",
		"modelName", p.modelName,
		"messageCount", len(req.Messages),
		"inputChars", inputChars(req.Messages),
	)

	chatReq := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.modelName),
		Messages: toOpenAIChatMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != 0 {
		chatReq.Temperature = openai.Float(req.Temperature)
	}

	chatResp, err := p.chat.Chat.Completions.New(ctx, chatReq)
	if err != nil {
		logger.Error("nanogpt request send error", "err", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		logger.Error("nanogpt no choices", "modelName", p.modelName)
		return nil, fmt.Errorf("no choices in response")
	}

	choice := chatResp.Choices[0]
	logger.Info(
		"nanogpt response",
		"modelName", p.modelName,
		"finishReason", choice.FinishReason,
		"promptTokens", chatResp.Usage.PromptTokens,
		"completionTokens", chatResp.Usage.CompletionTokens,
		"totalTokens", chatResp.Usage.TotalTokens,
		"outputChars", len(choice.Message.Content),
		"latencyMs", time.Since(start).Milliseconds(),
	)

	return &Response{
		Content: strings.TrimSpace(choice.Message.Content),
		Usage: Usage{
			PromptTokens:     int(chatResp.Usage.PromptTokens),
			CompletionTokens: int(chatResp.Usage.CompletionTokens),
			TotalTokens:      int(chatResp.Usage.TotalTokens),
		},
	}, nil
}

// GenerateImage creates one image and returns its URL.
func (p *NanoGPTProvider) GenerateImage(ctx context.Context, prompt string, seed int64) (string, error) {
	start := time.Now()

	params := openai.ImageGenerateParams{
		Model:          openai.ImageModel(nanoGPTImageModel),
		Prompt:         prompt,
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	}
	var opts []oaioption.RequestOption
	if seed >= 0 {
		opts = append(opts, oaioption.WithJSONSet("seed", seed))
	}

	resp, err := p.images.Images.Generate(ctx, params, opts...)
	if err != nil {
		logger.Error("nanogpt image generation failed", "err", err)
		return "", fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("no image in response")
	}

	logger.Info(
		"nanogpt image generated",
		"model", nanoGPTImageModel,
		"seed", seed,
		"latencyMs", time.Since(start).Milliseconds(),
	)
	return resp.Data[0].URL, nil
}

// Balance queries remaining account credit.
func (p *NanoGPTProvider) Balance(ctx context.Context) (*Balance, error) {
	var raw map[string]any
	resp, err := p.rest.R().
		SetContext(ctx).
		SetHeader("x-api-key", p.apiKey).
		SetResult(&raw).
		Post(p.balanceURL)
	if err != nil {
		return nil, fmt.Errorf("balance request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("balance request: status %s", resp.Status())
	}

	bal := &Balance{}
	if v, ok := coerceFloat(raw["usd_balance"]); ok {
		bal.USD = v
	}
	if v, ok := coerceFloat(raw["nano_balance"]); ok {
		bal.Nano = v
		bal.HasNano = true
	}
	return bal, nil
}

// toOpenAIChatMessages converts canonical messages into SDK params. User
// messages with images become multi-part content with the images first.
func toOpenAIChatMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			if len(m.Images) == 0 {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Images)+1)
			for _, img := range m.Images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: img}))
			}
			if m.Content != "" {
				parts = append(parts, openai.TextContentPart(m.Content))
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}

// normalizeSDKBaseURL resolves the effective base URL, tolerating operator
// values that paste the full chat completions endpoint.
func normalizeSDKBaseURL(apiBase, defaultBase, endpointSuffix string) string {
	base := strings.TrimSpace(apiBase)
	if base == "" {
		base = defaultBase
	}
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, endpointSuffix)
	return strings.TrimRight(base, "/")
}

// coerceFloat reads a JSON value that may arrive as a number or a string.
func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
