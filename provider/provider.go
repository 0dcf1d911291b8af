// Package provider defines the LLM provider interface and common types.
package provider

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
)

// Provider is the interface for LLM providers.
type Provider interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, req *Request) (*Response, error)
}

// ImageGenerator is implemented by providers that can generate images.
type ImageGenerator interface {
	// GenerateImage returns the URL of a generated image. A negative seed
	// lets the provider pick one.
	GenerateImage(ctx context.Context, prompt string, seed int64) (string, error)
}

// BalanceChecker is implemented by providers that expose account credit.
type BalanceChecker interface {
	Balance(ctx context.Context) (*Balance, error)
}

// Request represents a chat completion request.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64 // zero means provider default
}

// Message represents a chat message in OpenAI format (internal canonical format).
type Message struct {
	Role    string   `json:"role"`              // system, user, assistant
	Content string   `json:"content,omitempty"` // text content
	Images  []string `json:"images,omitempty"`  // image URLs or data URIs for vision requests
}

// Response represents a chat completion response.
type Response struct {
	Content string // final text response
	Usage   Usage  // token usage
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Balance reports remaining account credit.
type Balance struct {
	USD     float64
	Nano    float64
	HasNano bool
}

// ProviderConstructor builds a provider from resolved credentials.
type ProviderConstructor func(apiKey, apiBase, modelName string) Provider

// ProviderRegistration defines metadata and constructor for a provider.
type ProviderRegistration struct {
	DefaultModel string
	EnvKey       string
	EnvBase      string
	Constructor  ProviderConstructor
}

var providerRegistry = map[string]ProviderRegistration{}

// RegisterProvider registers provider metadata and constructor.
func RegisterProvider(name string, reg ProviderRegistration) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	reg.EnvKey = strings.TrimSpace(reg.EnvKey)
	reg.EnvBase = strings.TrimSpace(reg.EnvBase)
	providerRegistry[name] = reg
}

// New builds a named provider. An empty key or base falls back to the
// registration's environment variables; an empty model falls back to the
// provider's default.
func New(name, apiKey, apiBase, modelName string) (Provider, error) {
	reg, ok := providerRegistry[strings.TrimSpace(name)]
	if !ok {
		return nil, errors.New("unknown provider: " + name)
	}
	if apiKey == "" && reg.EnvKey != "" {
		apiKey = os.Getenv(reg.EnvKey)
	}
	if apiBase == "" && reg.EnvBase != "" {
		apiBase = os.Getenv(reg.EnvBase)
	}
	if modelName == "" {
		modelName = reg.DefaultModel
	}
	if apiKey == "" {
		return nil, errors.New("missing API key for provider " + name)
	}
	return reg.Constructor(apiKey, apiBase, modelName), nil
}

// SupportedProviders returns all supported provider names in sorted order.
func SupportedProviders() []string {
	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// VisionMessage creates a user message that carries image attachments.
func VisionMessage(content string, images ...string) Message {
	return Message{Role: "user", Content: content, Images: images}
}

// inputChars counts the characters across all message contents, for logging.
func inputChars(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return total
}
