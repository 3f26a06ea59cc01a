// Package extract turns file bytes into indexable text.
//
// Plain-text formats are decoded UTF-8 first, then Latin-1 as the
// platform-default stand-in, then stripped to printable ASCII as a last
// resort. Structured document formats (PDF and similar) are delegated to
// an Extractor supplied by the caller; the engine treats that conversion
// as an external utility.
package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Extractor converts a structured document's bytes into plain text.
// Implementations live outside this engine (PDF, DOCX readers, ...).
type Extractor interface {
	// Extract returns the text content of the document.
	Extract(ctx context.Context, data []byte, ext string) (string, error)

	// Supports reports whether the extractor handles the extension.
	Supports(ext string) bool
}

// Text extracts text for a file with the given extension. When the
// extractor (may be nil) supports the format, it wins; everything else is
// decoded as plain text.
func Text(ctx context.Context, extractor Extractor, data []byte, ext string) (string, error) {
	ext = strings.ToLower(ext)
	if extractor != nil && extractor.Supports(ext) {
		text, err := extractor.Extract(ctx, data, ext)
		if err != nil {
			return "", fmt.Errorf("extracting %s content: %w", ext, err)
		}
		return text, nil
	}
	return decodeText(data), nil
}

// decodeText decodes bytes as UTF-8, falling back to Latin-1, then to a
// printable-ASCII strip. Never fails: some text always comes back.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
		return string(decoded)
	}

	return asciiStrip(data)
}

// asciiStrip keeps printable ASCII plus newlines and tabs, replacing
// everything else with a space so offsets stay roughly aligned.
func asciiStrip(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		switch {
		case c == '\n' || c == '\t' || c == '\r':
			b.WriteByte(c)
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}
