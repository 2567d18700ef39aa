package chunker

import (
	"strings"
	"unicode"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/utils"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 64

	// How far back from the window edge to look for a sentence terminator.
	boundaryWindow = 100
)

// Chunker splits extracted page text into overlapping, sentence-aligned
// chunks. Sizes and offsets are in runes so multi-byte text cuts where a
// reader would expect.
type Chunker struct {
	chunkSize int
	overlap   int
	log       *logger.Logger
}

func New(chunkSize, overlap int, log *logger.Logger) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	return &Chunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		log:       log.With("component", "chunker"),
	}
}

// span is one cut within a page, in rune offsets.
type span struct {
	text  string
	start int
	end   int
}

// ChunkDocument cuts every non-blank page into chunks. Ordinals run across
// the whole document, so chunk ids stay stable and unique per document.
func (c *Chunker) ChunkDocument(pages []types.Page, documentID string) []types.Chunk {
	c.log.Info("Chunking document", "document_id", documentID, "num_pages", len(pages))

	out := make([]types.Chunk, 0, len(pages))
	ordinal := 0
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		for _, s := range c.split([]rune(page.Text)) {
			if strings.TrimSpace(s.text) == "" {
				continue
			}
			out = append(out, types.Chunk{
				ChunkID:     utils.ChunkID(documentID, ordinal),
				DocumentID:  documentID,
				Text:        s.text,
				Page:        page.Number,
				StartOffset: s.start,
				EndOffset:   s.end,
				Ordinal:     ordinal,
			})
			ordinal++
		}
	}

	c.log.Info("Chunking complete", "document_id", documentID, "num_chunks", len(out))
	return out
}

// split cuts one page into overlapping windows. When a window's right edge
// falls short of the page end, it prefers to cut just after the nearest
// sentence terminator within the last boundaryWindow runes. The progress
// guard keeps overlap >= chunkSize from looping forever.
func (c *Chunker) split(text []rune) []span {
	if len(text) <= c.chunkSize {
		return []span{{text: string(text), start: 0, end: len(text)}}
	}

	var spans []span
	start := 0
	lastEnd := 0

	for start < len(text) {
		end := start + c.chunkSize

		if end < len(text) {
			searchStart := start
			if s := end - boundaryWindow; s > searchStart {
				searchStart = s
			}
			for i := end; i > searchStart; i-- {
				if isSentenceEnd(text[i]) {
					end = i + 1
					break
				}
			}
		}

		// end may overshoot on the final window; only the cut is clamped,
		// the advance below keeps the raw edge.
		cut := end
		if cut > len(text) {
			cut = len(text)
		}
		if s, ok := trimSpan(text, start, cut); ok {
			spans = append(spans, s)
		}

		start = end - c.overlap
		if start <= lastEnd {
			start = end
		}
		lastEnd = end
	}

	return spans
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}

// trimSpan strips surrounding whitespace while keeping offsets pointing at
// the retained runes. ok is false when the window is whitespace only.
func trimSpan(text []rune, start, end int) (span, bool) {
	for start < end && unicode.IsSpace(text[start]) {
		start++
	}
	for end > start && unicode.IsSpace(text[end-1]) {
		end--
	}
	if start >= end {
		return span{}, false
	}
	return span{text: string(text[start:end]), start: start, end: end}, true
}
