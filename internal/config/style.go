package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// legacyPlaceholder is substituted in style prompts written as plain strings.
const legacyPlaceholder = "{prompt}"

// Style rewrites user prompts into a house style.
type Style struct {
	Name           string
	NegativePrompt string
	prompt         hcl.Expression
}

// NewStyle parses template as an HCL template string, e.g.
// "anime artwork, ${prompt}".
func NewStyle(name, template, negative string) (*Style, error) {
	expr, diags := parseTemplate(template, name)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: style %q: %w", ErrInvalidConfig, name, diags)
	}
	return &Style{Name: name, NegativePrompt: negative, prompt: expr}, nil
}

// Apply renders the style's prompt for the given user prompt. A style whose
// prompt mentions neither ${prompt} nor {prompt} leaves the prompt unchanged.
func (s *Style) Apply(prompt string) (string, error) {
	if s.prompt == nil {
		return prompt, nil
	}
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"prompt": cty.StringVal(prompt)},
	}
	v, diags := s.prompt.Value(evalCtx)
	if diags.HasErrors() {
		return "", fmt.Errorf("style %q: %w", s.Name, diags)
	}
	if v.IsNull() || !v.IsKnown() || !v.Type().Equals(cty.String) {
		return "", fmt.Errorf("%w: style %q prompt must be a string", ErrInvalidConfig, s.Name)
	}
	rendered := v.AsString()

	if len(s.prompt.Variables()) > 0 {
		return rendered, nil
	}
	if strings.Contains(rendered, legacyPlaceholder) {
		return strings.ReplaceAll(rendered, legacyPlaceholder, prompt), nil
	}
	return prompt, nil
}

// StyleCatalog holds the configured styles by name.
type StyleCatalog map[string]*Style

// Lookup returns the named style or ErrStyleNotFound.
func (c StyleCatalog) Lookup(name string) (*Style, error) {
	s, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStyleNotFound, name)
	}
	return s, nil
}

// Names returns the style names in lexical order.
func (c StyleCatalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseTemplate(template, name string) (hcl.Expression, hcl.Diagnostics) {
	return hclsyntax.ParseTemplate([]byte(template), "style."+name, hcl.Pos{Line: 1, Column: 1})
}
