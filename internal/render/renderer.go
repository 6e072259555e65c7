package render

import "github.com/charmbracelet/glamour"

// Renderer turns markdown into styled terminal output. Tests substitute a
// fake to avoid terminal detection.
type Renderer interface {
	Render(markdown string) (string, error)
}

// NewTerminalRenderer creates a glamour renderer with automatic styling.
func NewTerminalRenderer(wrap int) (Renderer, error) {
	if wrap <= 0 {
		wrap = 100
	}
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
}
