package retriever

import (
	"fmt"
	"strings"

	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// FormatContext renders the final chunks as a prompt-ready block: one
// "[rank] title (url)" header per chunk followed by its text, separated
// by horizontal rules. An empty result renders a placeholder so the
// consuming prompt never interpolates an empty string.
func FormatContext(chunks []types.ContextChunk) string {
	if len(chunks) == 0 {
		return "(Nenhum contexto encontrado)"
	}

	parts := make([]string, len(chunks))
	for i, chunk := range chunks {
		parts[i] = contextEntry(chunk)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func contextEntry(chunk types.ContextChunk) string {
	title := chunk.Title
	if title == "" {
		title = chunk.SourceID
	}
	header := fmt.Sprintf("[%d] %s", chunk.Rank, title)
	if chunk.URL != "" {
		header += fmt.Sprintf(" (%s)", chunk.URL)
	}
	return header + "\n" + chunk.Text
}
