// Package text is the trivial ports.Loader: plain-text and markdown
// documents pass through unchanged, with only the source's extension
// recorded as metadata. Richer formats (PDF, HTML, OCR, audio) are named
// by the port but not implemented here.
package text

import (
	"context"
	"path/filepath"
	"strings"
)

// Loader implements ports.Loader for plain-text/markdown documents.
type Loader struct{}

func New() Loader { return Loader{} }

func (Loader) Load(_ context.Context, source string, raw []byte) (string, map[string]string, error) {
	ext := strings.TrimPrefix(filepath.Ext(source), ".")
	meta := map[string]string{"format": "text"}
	if ext != "" {
		meta["extension"] = ext
	}
	return string(raw), meta, nil
}
