// Package chunk splits extracted file text into overlapping segments sized
// for embedding. Chunks are produced deterministically: the same text and
// format hint always yield the same segments.
package chunk

import "strings"

// minEffectiveMax is the floor for the per-chunk budget after format-aware
// reduction, so pathological configuration cannot produce empty chunks.
const minEffectiveMax = 100

// Config configures a Chunker.
type Config struct {
	// MaxChars bounds chunk length in runes.
	MaxChars int

	// Overlap is the number of runes shared by consecutive chunks.
	// Capped at a quarter of the effective maximum.
	Overlap int

	// StructuredExtensions (e.g. ".json", ".xml") get half the MaxChars
	// budget to avoid breaking nested structure mid-token.
	StructuredExtensions []string
}

// Chunker splits text into bounded, overlapping segments.
type Chunker struct {
	maxChars   int
	overlap    int
	structured map[string]bool
}

// New creates a Chunker from the given configuration.
func New(cfg Config) *Chunker {
	structured := make(map[string]bool, len(cfg.StructuredExtensions))
	for _, ext := range cfg.StructuredExtensions {
		structured[strings.ToLower(ext)] = true
	}
	return &Chunker{
		maxChars:   cfg.MaxChars,
		overlap:    cfg.Overlap,
		structured: structured,
	}
}

// Split returns the ordered chunks of text for the given file extension.
// Guarantees: every chunk fits the effective maximum, consecutive chunks
// overlap by the effective overlap, the whole input is covered with no
// gaps, and text that already fits is returned unchanged as one chunk.
// Empty input yields no chunks.
func (c *Chunker) Split(text, ext string) []string {
	if text == "" {
		return nil
	}

	maxChars := c.effectiveMax(ext)
	overlap := c.overlap
	if limit := maxChars / 4; overlap > limit {
		overlap = limit
	}

	runes := []rune(text)
	if len(runes) <= maxChars {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + maxChars
		if end >= len(runes) {
			end = len(runes)
		} else if nl := lastNewline(runes, start, end); nl >= 0 && nl > start+maxChars/2 {
			// Split after the nearest newline before the limit, but only
			// when it lies past the midpoint; earlier newlines would
			// produce degenerate slivers.
			end = nl + 1
		}

		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
	}

	return chunks
}

// EffectiveOverlap reports the overlap actually applied for a format.
func (c *Chunker) EffectiveOverlap(ext string) int {
	overlap := c.overlap
	if limit := c.effectiveMax(ext) / 4; overlap > limit {
		overlap = limit
	}
	return overlap
}

// effectiveMax returns the chunk budget for a format: structured formats
// get half of the configured maximum.
func (c *Chunker) effectiveMax(ext string) int {
	maxChars := c.maxChars
	if c.structured[strings.ToLower(ext)] {
		maxChars /= 2
	}
	if maxChars < minEffectiveMax {
		maxChars = minEffectiveMax
	}
	return maxChars
}

// lastNewline returns the index of the last '\n' in runes[start:end],
// or -1 when there is none.
func lastNewline(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}
