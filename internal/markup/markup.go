// Package markup renders LSP documentation content (hover text, completion
// docs) into HTML for tooltip hosts. Editors with their own markdown
// pipeline can supply any Renderer; Goldmark is the default.
package markup

import (
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dshills/lspbridge/internal/protocol"
)

// Renderer converts MarkupContent into HTML.
type Renderer interface {
	Render(content protocol.MarkupContent) (string, error)
}

// Goldmark renders markdown with GFM extensions; plaintext is escaped and
// wrapped so whitespace survives.
type Goldmark struct {
	md goldmark.Markdown
}

// NewGoldmark creates the default renderer.
func NewGoldmark() *Goldmark {
	return &Goldmark{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
	}
}

// Render implements Renderer.
func (g *Goldmark) Render(content protocol.MarkupContent) (string, error) {
	if content.Value == "" {
		return "", nil
	}

	if content.Kind == protocol.MarkupKindPlainText {
		return "<pre>" + html.EscapeString(content.Value) + "</pre>", nil
	}

	var buf strings.Builder
	if err := g.md.Convert([]byte(content.Value), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// PlainText strips nothing and escapes nothing; it returns the raw value.
// Useful for terminal hosts that render no HTML at all.
type PlainText struct{}

// Render implements Renderer.
func (PlainText) Render(content protocol.MarkupContent) (string, error) {
	return content.Value, nil
}
