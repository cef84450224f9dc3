package llm2

import "github.com/cbroglie/mustache"

// RenderSystemPrefix renders a system-prompt template with the given
// variables, matching the template rendering the teacher already uses
// for code-symbol query templates (coding/tree_sitter). An empty
// template renders to an empty prefix.
func RenderSystemPrefix(template string, data map[string]any) (string, error) {
	if template == "" {
		return "", nil
	}
	return mustache.Render(template, data)
}
