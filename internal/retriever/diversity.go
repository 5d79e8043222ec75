package retriever

import (
	"fmt"
	"strings"

	"github.com/dmribeiro/contexto-mcp/internal/textproc"
	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// picked is a shortlist hit accepted into the final context, flagged when
// the diversity rescue added it.
type picked struct {
	hit     types.FusedHit
	rescued bool
}

// selectDiverse turns the reranked shortlist into the final context.
//
// The greedy pass walks the input in rank order, accepting at most
// MaxPerDoc chunks per document until finalK items are collected. When
// that leaves fewer distinct documents than MinDocs allows, the rescue
// pass swaps in the best-ranked chunk of each missing document, evicting
// the lowest-ranked chunk of a document holding more than one slot so the
// output never exceeds finalK. Source diversity wins over per-document
// density once the minimum is unmet.
//
// Returned chunks are deep copies with text truncated to maxChars; the
// annotation, when set, is appended to every why-picked explanation.
func selectDiverse(hits []types.FusedHit, div types.DiversityConfig, finalK, maxChars int, annotation string) []types.ContextChunk {
	if len(hits) == 0 || finalK <= 0 {
		return nil
	}

	docCounts := make(map[string]int)
	distinct := 0
	result := make([]picked, 0, finalK)

	for _, hit := range hits {
		if len(result) >= finalK {
			break
		}
		doc := hit.Chunk.DocID
		if docCounts[doc] >= div.MaxPerDoc {
			continue
		}
		if docCounts[doc] == 0 {
			distinct++
		}
		docCounts[doc]++
		result = append(result, picked{hit: hit})
	}

	// The reachable diversity target: bounded by the documents actually
	// present and by the output size itself.
	target := div.MinDocs
	if d := distinctDocs(hits); d < target {
		target = d
	}
	if finalK < target {
		target = finalK
	}

	for _, hit := range hits {
		if distinct >= target {
			break
		}
		doc := hit.Chunk.DocID
		if docCounts[doc] > 0 {
			continue
		}
		if len(result) >= finalK {
			evicted := evictDensest(result, docCounts)
			if evicted < 0 {
				break
			}
			result = append(result[:evicted], result[evicted+1:]...)
		}
		docCounts[doc]++
		distinct++
		result = append(result, picked{hit: hit, rescued: true})
	}

	chunks := make([]types.ContextChunk, len(result))
	for i, p := range result {
		chunk := *p.hit.Chunk.Clone()
		chunk.Text = textproc.Truncate(chunk.Text, maxChars)
		chunks[i] = types.ContextChunk{
			Chunk:     chunk,
			Rank:      i + 1,
			Score:     p.hit.Score,
			WhyPicked: whyPicked(&p.hit, p.rescued, annotation),
		}
	}
	return chunks
}

// evictDensest locates the lowest-ranked accepted chunk whose document
// holds more than one slot, decrements that document's count, and returns
// the index to remove. Returns -1 when every accepted document has a
// single chunk, since evicting then would trade one document for another.
func evictDensest(result []picked, docCounts map[string]int) int {
	for i := len(result) - 1; i >= 0; i-- {
		doc := result[i].hit.Chunk.DocID
		if docCounts[doc] > 1 {
			docCounts[doc]--
			return i
		}
	}
	return -1
}

// whyPicked explains a selection: the rank each contributing mode gave
// the chunk and the score that ordered it, or the rescue annotation when
// the diversity pass added it.
func whyPicked(hit *types.FusedHit, rescued bool, annotation string) string {
	var why string
	if rescued {
		why = "added for diversity"
	} else {
		var parts []string
		if r, ok := hit.ModeRanks[types.ModeDense]; ok {
			parts = append(parts, fmt.Sprintf("dense #%d", r))
		}
		if r, ok := hit.ModeRanks[types.ModeSparse]; ok {
			parts = append(parts, fmt.Sprintf("sparse #%d", r))
		}
		if hit.Reranked {
			parts = append(parts, fmt.Sprintf("rerank score %.3f", hit.Score))
		} else {
			parts = append(parts, fmt.Sprintf("rrf score %.4f", hit.Score))
		}
		why = strings.Join(parts, ", ")
	}
	if annotation != "" {
		why += " (" + annotation + ")"
	}
	return why
}

// distinctDocs counts the distinct document IDs in the input.
func distinctDocs(hits []types.FusedHit) int {
	seen := make(map[string]bool, len(hits))
	for _, hit := range hits {
		seen[hit.Chunk.DocID] = true
	}
	return len(seen)
}
