package render

import (
	"strings"
	"text/template"

	"github.com/wudi/transmute/internal/errors"
)

// Parse checks template syntax against an empty context, without
// rendering. Used for eager config-time validation: a source that
// fails here would fail for every request.
func Parse(name, src string) error {
	empty := &Context{}
	if _, err := template.New(name).Funcs(empty.FuncMap()).Parse(src); err != nil {
		return errors.TemplateSyntax(err)
	}
	return nil
}

// Render parses src with this context's callback table and executes it
// with the parsed body tree as data. Both parse and execution failures
// surface as template syntax errors; the phase-level re-parse can still
// fail even for a config-validated source.
func (c *Context) Render(name, src string) (string, error) {
	tmpl, err := template.New(name).Funcs(c.FuncMap()).Parse(src)
	if err != nil {
		return "", errors.TemplateSyntax(err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, c.templateData()); err != nil {
		return "", errors.TemplateSyntax(err)
	}
	return sb.String(), nil
}
