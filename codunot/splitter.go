package codunot

// continuationMark joins the pieces of an over-long reply so readers can
// tell the chunks belong together.
const continuationMark = "…"

// SplitMessage chunks text into pieces of at most limit runes each.
// Every chunk except the last is suffixed with the continuation mark,
// and every chunk except the first is prefixed with it, so stripping the
// marks and concatenating the chunks reproduces the original text.
// Text within the limit is returned as a single unmodified chunk.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxMessageLen
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[start:end])
		if start > 0 {
			chunk = continuationMark + chunk
		}
		if end < len(runes) {
			chunk += continuationMark
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
