// Package template renders subject and body text from Liquid-style
// {{ name }} templates. Rendering is lax: an unresolved placeholder
// becomes an empty string, never an error, so sparse spreadsheet rows
// render cleanly.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/osteele/liquid"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Renderer renders template source against per-recipient bindings.
type Renderer struct {
	engine *liquid.Engine
}

// NewRenderer creates a Renderer with the default (lax) engine.
func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Render renders src with the given context. Syntax errors in the
// template are reported; missing variables are not.
func (r *Renderer) Render(src string, ctx map[string]interface{}) (string, error) {
	out, err := r.engine.ParseAndRenderString(src, liquid.Bindings(ctx))
	if err != nil {
		return "", fmt.Errorf("template: render: %w", err)
	}
	return out, nil
}

// StripHTML collapses angle-bracket tag spans to nothing and trims the
// result. Used to synthesize a plain-text body when only HTML exists.
func StripHTML(s string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
}
