package provider

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/linanwx/milo/logger"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func sharedCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			logger.Warn("tokenizer unavailable, falling back to rune counts", "err", err)
			return
		}
		codec = c
	})
	return codec
}

// TruncateTokens caps text at max cl100k_base tokens, cutting on a token
// boundary. Prompts built from scraped articles and transcripts are bounded
// this way so the cap holds regardless of which model sits behind the
// provider. If the tokenizer cannot load, a rune cut of four runes per token
// approximates the budget.
func TruncateTokens(text string, max int) string {
	if text == "" || max <= 0 {
		return ""
	}
	c := sharedCodec()
	if c == nil {
		return truncateRunes(text, max*4)
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return truncateRunes(text, max*4)
	}
	if len(ids) <= max {
		return text
	}
	out, err := c.Decode(ids[:max])
	if err != nil {
		return truncateRunes(text, max*4)
	}
	// A token boundary can land mid-rune; drop the broken tail.
	return strings.ToValidUTF8(out, "")
}

func truncateRunes(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
