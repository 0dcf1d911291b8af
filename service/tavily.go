package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const tavilyBaseURL = "https://api.tavily.com"

// Tavily is a minimal client for the Tavily web search API.
type Tavily struct {
	apiKey  string
	baseURL string
	rest    *resty.Client
}

// NewTavily returns a search client for the given API key.
func NewTavily(apiKey string) *Tavily {
	return &Tavily{
		apiKey:  apiKey,
		baseURL: tavilyBaseURL,
		rest:    resty.New().SetTimeout(15 * time.Second),
	}
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		URL     string `json:"url"`
	} `json:"results"`
}

// Search runs a basic web search and formats Tavily's answer plus the
// top sources into a context block for the LLM. Returns an empty string
// when nothing came back.
func (t *Tavily) Search(ctx context.Context, query string) (string, error) {
	var out tavilyResponse
	resp, err := t.rest.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"api_key":        t.apiKey,
			"query":          query,
			"search_depth":   "basic",
			"max_results":    5,
			"include_answer": true,
		}).
		SetResult(&out).
		Post(t.baseURL + "/search")
	if err != nil {
		return "", fmt.Errorf("tavily search: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("tavily search: status %s", resp.Status())
	}

	var parts []string
	if out.Answer != "" {
		parts = append(parts, "Summary: "+out.Answer)
	}
	results := out.Results
	if len(results) > 5 {
		results = results[:5]
	}
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("- %s: %s (%s)", r.Title, r.Content, r.URL))
	}
	return strings.Join(parts, "\n"), nil
}
