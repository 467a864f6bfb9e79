package course

import (
	"fmt"
	"regexp"
	"strings"
)

// Chunker splits lesson body text into overlapping, sentence-aligned chunks.
//
// Sentences are never split across chunks: a chunk grows greedily until the
// next sentence would exceed the size budget, and each new chunk is seeded
// with trailing sentences of its predecessor totaling at least the overlap
// amount. A single sentence longer than the size budget becomes its own
// oversized chunk.
//
// Chunking is deterministic: identical input yields an identical sequence.
type Chunker struct {
	size    int // maximum chunk length in characters
	overlap int // desired overlap between consecutive chunks in characters
}

// Default chunking parameters, tuned for embedding models with a ~2048
// token input limit.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// NewChunker creates a Chunker. Non-positive size falls back to
// DefaultChunkSize; a negative overlap or overlap >= size falls back to
// DefaultChunkOverlap.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// whitespaceRun collapses any run of whitespace (incl. newlines) to one space.
var whitespaceRun = regexp.MustCompile(`\s+`)

// Split chunks the given text into sentence-aligned segments.
// Returns nil for empty or whitespace-only input.
func (c *Chunker) Split(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	i := 0
	for i < len(sentences) {
		// Greedily fill the current chunk.
		j := i
		length := 0
		for j < len(sentences) {
			add := len(sentences[j])
			if j > i {
				add++ // joining space
			}
			if length+add > c.size && j > i {
				break
			}
			length += add
			j++
			if length > c.size {
				// Single sentence exceeding the budget; it stands alone.
				break
			}
		}
		chunks = append(chunks, strings.Join(sentences[i:j], " "))

		if j >= len(sentences) {
			break
		}

		// Seed the next chunk by walking backward from the end of the
		// closed chunk until at least `overlap` characters are collected.
		// The next chunk must start strictly after the current chunk's
		// first sentence to guarantee forward progress.
		start := j
		collected := 0
		for start-1 > i && collected < c.overlap {
			start--
			collected += len(sentences[start])
		}
		i = start
	}

	return chunks
}

// splitSentences normalizes whitespace and splits text at sentence-ending
// punctuation (. ! ?) followed by whitespace. Good enough for course
// transcripts; this is intentionally not a full sentence tokenizer.
func splitSentences(text string) []string {
	normalized := strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if normalized == "" {
		return nil
	}

	var sentences []string
	begin := 0
	runes := []rune(normalized)
	for idx := 0; idx < len(runes); idx++ {
		r := runes[idx]
		if (r == '.' || r == '!' || r == '?') && idx+1 < len(runes) && runes[idx+1] == ' ' {
			s := strings.TrimSpace(string(runes[begin : idx+1]))
			if s != "" {
				sentences = append(sentences, s)
			}
			begin = idx + 1
		}
	}
	if tail := strings.TrimSpace(string(runes[begin:])); tail != "" {
		sentences = append(sentences, tail)
	}

	return sentences
}

// chunkPrefix is the fixed-format context string prepended to every chunk.
const chunkPrefix = "Course %s Lesson %d content: %s"

// Process parses a raw document and chunks every lesson body, producing the
// course metadata plus its full chunk sequence. Chunk indices are contiguous
// and monotonically increasing across the whole course, starting at 0.
func Process(raw string, chunker *Chunker) (Course, []Chunk, error) {
	c, bodies, err := ParseDocument(raw)
	if err != nil {
		return Course{}, nil, err
	}

	var chunks []Chunk
	index := 0
	for li, body := range bodies {
		lesson := c.Lessons[li]
		for _, piece := range chunker.Split(body) {
			chunks = append(chunks, Chunk{
				CourseTitle:  c.Title,
				LessonNumber: lesson.Number,
				Index:        index,
				Content:      fmt.Sprintf(chunkPrefix, c.Title, lesson.Number, piece),
			})
			index++
		}
	}

	return c, chunks, nil
}
