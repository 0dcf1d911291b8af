package command

import (
	"encoding/json"
	"errors"
	"strings"
)

// extractJSON pulls the first {...} object out of an LLM reply. Models
// wrap JSON in markdown fences or prose often enough that the braces are
// the only reliable delimiters.
func extractJSON(reply string) string {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return ""
	}
	return reply[start : end+1]
}

// unmarshalReply extracts the JSON object in reply and decodes it into v.
func unmarshalReply(reply string, v any) error {
	raw := extractJSON(reply)
	if raw == "" {
		return errors.New("no JSON object in model reply")
	}
	return json.Unmarshal([]byte(raw), v)
}

// isNullReply reports whether the model declined with a bare null,
// possibly fenced.
func isNullReply(reply string) bool {
	s := strings.TrimSpace(reply)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.EqualFold(strings.TrimSpace(s), "null")
}
