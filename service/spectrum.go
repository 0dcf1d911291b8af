package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	spectrumAPIBase   = "https://robertsspaceindustries.com/api/spectrum"
	spectrumForumBase = "https://robertsspaceindustries.com/spectrum/community/SC/forum"
)

// ThreadID decodes JSON values that arrive as either a string or a
// number. Spectrum is not consistent about ID types across endpoints.
type ThreadID string

func (t *ThreadID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = ThreadID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = ThreadID(n.String())
	return nil
}

func (t ThreadID) String() string { return string(t) }

// SpectrumThread is a forum thread summary row.
type SpectrumThread struct {
	ID          ThreadID `json:"id"`
	Subject     string   `json:"subject"`
	Slug        string   `json:"slug"`
	TimeCreated int64    `json:"time_created"`
}

// Spectrum is a client for the (unofficial) RSI Spectrum forum API.
type Spectrum struct {
	apiBase   string
	forumBase string
	rest      *resty.Client
}

// NewSpectrum returns a Spectrum forum client.
func NewSpectrum() *Spectrum {
	return &Spectrum{
		apiBase:   spectrumAPIBase,
		forumBase: spectrumForumBase,
		rest:      resty.New().SetTimeout(15 * time.Second),
	}
}

type spectrumEnvelope struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

func (s *Spectrum) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	var env spectrumEnvelope
	resp, err := s.rest.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&env).
		Post(s.apiBase + path)
	if err != nil {
		return nil, fmt.Errorf("spectrum %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("spectrum %s: status %s", path, resp.Status())
	}
	if !env.Success {
		return nil, fmt.Errorf("spectrum %s: %s", path, env.Msg)
	}
	return env.Data, nil
}

// Threads returns one page of a forum channel's threads, newest first.
func (s *Spectrum) Threads(ctx context.Context, channelID string, page int) ([]SpectrumThread, error) {
	raw, err := s.post(ctx, "/forum/channel/threads", map[string]any{
		"channel_id": channelID,
		"page":       page,
		"sort":       "time-created",
	})
	if err != nil {
		return nil, err
	}
	var data struct {
		Threads []SpectrumThread `json:"threads"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("spectrum threads: %w", err)
	}
	return data.Threads, nil
}

// ThreadContent fetches a thread's first post and flattens its Draft.js
// blocks to plain text.
func (s *Spectrum) ThreadContent(ctx context.Context, threadID, slug string) (string, error) {
	raw, err := s.post(ctx, "/forum/thread/nested", map[string]any{
		"thread_id": threadID,
		"page":      1,
		"slug":      slug,
	})
	if err != nil {
		return "", err
	}
	var data struct {
		ContentBlocks []struct {
			Data struct {
				Blocks []draftBlock `json:"blocks"`
			} `json:"data"`
		} `json:"content_blocks"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("spectrum thread content: %w", err)
	}
	if len(data.ContentBlocks) == 0 {
		return "", nil
	}
	return blocksToText(data.ContentBlocks[0].Data.Blocks), nil
}

// ThreadURL returns the public web URL of a thread.
func (s *Spectrum) ThreadURL(channelID, slug string) string {
	return fmt.Sprintf("%s/%s/thread/%s", s.forumBase, channelID, slug)
}

type draftBlock struct {
	Text  string `json:"text"`
	Type  string `json:"type"`
	Depth int    `json:"depth"`
}

func blocksToText(blocks []draftBlock) string {
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "header-one":
			lines = append(lines, "# "+b.Text)
		case "header-two":
			lines = append(lines, "## "+b.Text)
		case "header-three":
			lines = append(lines, "### "+b.Text)
		case "unordered-list-item":
			lines = append(lines, strings.Repeat("  ", b.Depth)+"- "+b.Text)
		case "ordered-list-item":
			lines = append(lines, strings.Repeat("  ", b.Depth)+"1. "+b.Text)
		case "blockquote":
			lines = append(lines, "> "+b.Text)
		default:
			lines = append(lines, b.Text)
		}
	}
	return strings.Join(lines, "\n")
}
