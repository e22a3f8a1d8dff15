// Package chunk splits document text into token-budgeted chunks with full
// character and line provenance, generalizing the sentence-packing
// algorithm the ingest pipeline used for forum posts into a
// provider-token-aware splitter for arbitrary document content.
package chunk

import (
	"strings"
	"unicode"

	"github.com/cognipipe/cognipipe/internal/domain"
)

const (
	// DefaultChunkSize is the target number of tokens per chunk.
	DefaultChunkSize = 512
	// DefaultOverlap is the number of overlapping tokens between chunks.
	DefaultOverlap = 50
)

// Options configures Split.
type Options struct {
	ChunkSize int
	Overlap   int
	Tokenizer Tokenizer
}

// DefaultOptions returns the package defaults, with the default
// cl100k_base tokenizer.
func DefaultOptions() Options {
	return Options{ChunkSize: DefaultChunkSize, Overlap: DefaultOverlap, Tokenizer: Default()}
}

// sentence is one sentence-like span located within the original text.
type sentence struct {
	text      string
	charStart int
	charEnd   int
	lineStart int
	lineEnd   int
}

// splitSentences splits text into sentence spans using punctuation and
// newlines as boundaries, tracking character and line provenance as it
// walks the rune stream.
func splitSentences(text string) []sentence {
	var sentences []sentence
	var current strings.Builder
	spanStart := 0
	line := 0
	spanStartLine := 0

	runes := []rune(text)
	byteOf := make([]int, len(runes)+1)
	{
		b := 0
		for i, r := range runes {
			byteOf[i] = b
			b += len(string(r))
		}
		byteOf[len(runes)] = b
	}

	flush := func(endIdx int) {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, sentence{
				text:      s,
				charStart: byteOf[spanStart],
				charEnd:   byteOf[endIdx],
				lineStart: spanStartLine,
				lineEnd:   line,
			})
		}
		current.Reset()
	}

	for i, r := range runes {
		current.WriteRune(r)
		if r == '\n' {
			line++
		}
		isBoundary := r == '.' || r == '!' || r == '?' || r == '\n'
		if isBoundary {
			nextIsBoundarySpace := r == '\n' || i == len(runes)-1 ||
				(i+1 < len(runes) && unicode.IsSpace(runes[i+1]))
			if nextIsBoundarySpace {
				flush(i + 1)
				spanStart = i + 1
				spanStartLine = line
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		flush(len(runes))
	}
	return sentences
}

// Split breaks text into token-budgeted DocumentChunks, each carrying
// character and line provenance back to the source, plus a backward
// token-count overlap with its predecessor.
func Split(dataID string, text string, opts Options) []domain.DocumentChunk {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.Tokenizer == nil {
		opts.Tokenizer = Default()
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		leadTrimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
		charStart := len(text) - len(leadTrimmed)
		trimmed := strings.TrimRightFunc(leadTrimmed, unicode.IsSpace)
		if trimmed == "" {
			return nil
		}
		charEnd := charStart + len(trimmed)
		return []domain.DocumentChunk{{
			ID:         domain.ChunkID(dataID, 0),
			DataID:     dataID,
			Index:      0,
			Text:       trimmed,
			TokenCount: opts.Tokenizer.Count(trimmed),
			CharStart:  charStart,
			CharEnd:    charEnd,
			LineStart:  0,
			LineEnd:    strings.Count(text, "\n"),
		}}
	}

	var chunks []domain.DocumentChunk
	idx := 0
	start := 0

	for start < len(sentences) {
		tokens := 0
		end := start

		for end < len(sentences) {
			words := opts.Tokenizer.Count(sentences[end].text)
			if tokens+words > opts.ChunkSize && tokens > 0 {
				break
			}
			tokens += words
			end++
		}

		first := sentences[start]
		last := sentences[end-1]
		// Text is sliced directly from the source span, not rebuilt by
		// joining sentence text, so doc.text[CharStart:CharEnd] always
		// equals Text exactly, whitespace and all.
		chunks = append(chunks, domain.DocumentChunk{
			ID:         domain.ChunkID(dataID, idx),
			DataID:     dataID,
			Index:      idx,
			Text:       text[first.charStart:last.charEnd],
			TokenCount: tokens,
			CharStart:  first.charStart,
			CharEnd:    last.charEnd,
			LineStart:  first.lineStart,
			LineEnd:    last.lineEnd,
		})
		idx++

		overlapTokens := 0
		newStart := end
		for newStart > start && overlapTokens < opts.Overlap {
			newStart--
			overlapTokens += opts.Tokenizer.Count(sentences[newStart].text)
		}
		if newStart == start {
			start = end
		} else {
			start = newStart
		}
	}
	return chunks
}
