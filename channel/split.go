package channel

// SplitMessage breaks text into chunks of at most limit runes, preferring
// newline boundaries so formatting survives the split.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := -1
		for i := limit; i > 0; i-- {
			if runes[i-1] == '\n' {
				cut = i - 1
				break
			}
		}
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]

		for len(runes) > 0 && (runes[0] == '\n' || runes[0] == ' ' || runes[0] == '\t') {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
