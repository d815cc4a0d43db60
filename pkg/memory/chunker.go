package memory

import "strings"

const (
	// DefaultChunkTokens is the window size used for note and transcript chunks.
	DefaultChunkTokens = 400
	// DefaultChunkOverlap is how many tokens consecutive chunks share.
	DefaultChunkOverlap = 80
)

// ChunkText splits text into overlapping windows of at most maxTokens
// whitespace-delimited tokens. Consecutive chunks share overlap tokens
// whenever the text is longer than one window. Empty input yields no chunks.
func ChunkText(text string, maxTokens, overlap int) []string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}
	if maxTokens < 1 {
		maxTokens = 1
	}

	step := maxTokens - overlap
	if step < 1 {
		step = 1
	}

	var chunks []string
	for start := 0; start < len(tokens); start += step {
		end := start + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return chunks
}
