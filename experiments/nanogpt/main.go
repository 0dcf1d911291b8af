// Minimal experiment for the NanoGPT API surface Milo depends on.
// Tests: basic chat, vision chat, image generation, balance check.
//
// Usage:
//   export NANOGPT_API_KEY="your-key"
//   go run ./experiments/nanogpt
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// --- request types ---

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

// Message content is either a plain string or a part list for vision
// requests, so it stays `any` and the tests build whichever they need.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// ImageRequest uses a manual seed injection in generateImage() rather than
// a struct field: NanoGPT accepts seed as a top-level extra, and omitempty
// on an int64 would drop seed 0.
type ImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
	Seed           int64  `json:"-"` // handled manually in generateImage()
}

// --- response types ---

type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int         `json:"index"`
	Message      ResponseMsg `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ResponseMsg struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ImageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

type BalanceResponse struct {
	USDBalance  any `json:"usd_balance"`  // number or numeric string
	NanoBalance any `json:"nano_balance"` // number or numeric string
}

// --- client ---

const (
	chatEndpoint    = "https://nano-gpt.com/api/v1/chat/completions"
	imageEndpoint   = "https://nano-gpt.com/v1/images/generations"
	balanceEndpoint = "https://nano-gpt.com/api/check-balance"

	chatModel  = "chatgpt-4o-latest"
	imageModel = "nano-banana"

	// Public test image: a whiteboard with legible text, for the vision path.
	visionTestImage = "https://upload.wikimedia.org/wikipedia/commons/thumb/5/5b/Whiteboard_eraser.jpg/640px-Whiteboard_eraser.jpg"
)

var (
	apiKey string
	client = &http.Client{Timeout: 120 * time.Second}
)

func post(endpoint string, body []byte, bearer bool) (int, []byte, error) {
	fmt.Printf("\n>>> REQUEST %s (%d bytes)\n", endpoint, len(body))
	printJSON(body)

	httpReq, err := http.NewRequest("POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if bearer {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	} else {
		// The balance endpoint authenticates with x-api-key instead.
		httpReq.Header.Set("x-api-key", apiKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("\n<<< RESPONSE %d (%d bytes)\n", resp.StatusCode, len(respBody))
	printJSON(respBody)

	return resp.StatusCode, respBody, nil
}

func chat(req *ChatRequest) (*ChatResponse, error) {
	body, _ := json.Marshal(req)
	status, respBody, err := post(chatEndpoint, body, true)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", status, string(respBody))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return &chatResp, nil
}

func generateImage(req *ImageRequest) (*ImageResponse, error) {
	// Build request body manually to inject seed as a top-level field.
	body, _ := json.Marshal(req)
	if req.Seed >= 0 {
		var m map[string]any
		json.Unmarshal(body, &m)
		m["seed"] = req.Seed
		body, _ = json.Marshal(m)
	}

	status, respBody, err := post(imageEndpoint, body, true)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", status, string(respBody))
	}

	var imgResp ImageResponse
	if err := json.Unmarshal(respBody, &imgResp); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return &imgResp, nil
}

func printJSON(data []byte) {
	var buf bytes.Buffer
	if json.Indent(&buf, data, "  ", "  ") == nil {
		fmt.Println("  " + buf.String())
	} else {
		fmt.Println("  " + string(data))
	}
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

// --- experiments ---

func testBasicChat() error {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("TEST 1: Basic chat")
	fmt.Println(strings.Repeat("=", 60))

	resp, err := chat(&ChatRequest{
		Model: chatModel,
		Messages: []Message{
			{Role: "system", Content: "You are terse."},
			{Role: "user", Content: "What is 1+1? Answer with one word."},
		},
		MaxTokens:   64,
		Temperature: 0.2,
		Stream:      false,
	})
	if err != nil {
		return err
	}

	if len(resp.Choices) == 0 {
		return fmt.Errorf("no choices in response")
	}
	content := deref(resp.Choices[0].Message.Content)
	if content == "<nil>" || content == "" {
		return fmt.Errorf("empty content in response")
	}

	fmt.Printf("\n--- RESULT ---\n")
	fmt.Printf("Content: %s\n", content)
	fmt.Printf("FinishReason: %s\n", resp.Choices[0].FinishReason)
	fmt.Printf("Usage: %d prompt + %d completion = %d total\n",
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	return nil
}

func testVisionChat() error {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("TEST 2: Vision chat (image URL content part)")
	fmt.Println(strings.Repeat("=", 60))

	resp, err := chat(&ChatRequest{
		Model: chatModel,
		Messages: []Message{
			{Role: "user", Content: []ContentPart{
				{Type: "image_url", ImageURL: &ImageURL{URL: visionTestImage}},
				{Type: "text", Text: "Describe this image in one sentence."},
			}},
		},
		MaxTokens:   128,
		Temperature: 0.2,
		Stream:      false,
	})
	if err != nil {
		return err
	}

	if len(resp.Choices) == 0 {
		return fmt.Errorf("no choices in response")
	}
	content := deref(resp.Choices[0].Message.Content)
	if content == "<nil>" || content == "" {
		return fmt.Errorf("empty content in vision response")
	}

	fmt.Printf("\n--- RESULT ---\n")
	fmt.Printf("Content: %s\n", content)
	return nil
}

func testImageGeneration() error {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("TEST 3: Image generation (seed injected top-level)")
	fmt.Println(strings.Repeat("=", 60))

	resp, err := generateImage(&ImageRequest{
		Model:          imageModel,
		Prompt:         "black and white coloring book line art of a friendly dragon",
		N:              1,
		Size:           "1024x1024",
		ResponseFormat: "url",
		Seed:           42,
	})
	if err != nil {
		return err
	}

	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return fmt.Errorf("no image URL in response")
	}

	fmt.Printf("\n--- RESULT ---\n")
	fmt.Printf("Image URL: %s\n", resp.Data[0].URL)
	return nil
}

func testBalance() error {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("TEST 4: Balance check (x-api-key auth)")
	fmt.Println(strings.Repeat("=", 60))

	status, respBody, err := post(balanceEndpoint, []byte("{}"), false)
	if err != nil {
		return err
	}
	if status != 200 {
		return fmt.Errorf("HTTP %d: %s", status, string(respBody))
	}

	var bal BalanceResponse
	if err := json.Unmarshal(respBody, &bal); err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	if bal.USDBalance == nil {
		return fmt.Errorf("no usd_balance in response")
	}

	fmt.Printf("\n--- RESULT ---\n")
	fmt.Printf("USD balance: %v\n", bal.USDBalance)
	fmt.Printf("Nano balance: %v\n", bal.NanoBalance)
	return nil
}

func main() {
	apiKey = os.Getenv("NANOGPT_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "NANOGPT_API_KEY is required")
		os.Exit(1)
	}

	fmt.Printf("Chat endpoint: %s\n", chatEndpoint)
	fmt.Printf("API Key: ****%s\n", apiKey[max(0, len(apiKey)-4):])

	tests := []struct {
		name string
		fn   func() error
	}{
		{"BasicChat", testBasicChat},
		{"VisionChat", testVisionChat},
		{"ImageGeneration", testImageGeneration},
		{"Balance", testBalance},
	}

	for _, t := range tests {
		if err := t.fn(); err != nil {
			fmt.Fprintf(os.Stderr, "\nFAIL %s: %v\n", t.name, err)
			os.Exit(1)
		}
		fmt.Printf("\nPASS %s\n", t.name)
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("ALL TESTS PASSED")
}
