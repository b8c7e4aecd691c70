package render

import (
	"testing"

	"github.com/wudi/transmute/internal/errors"
)

func TestParseRejectsBadSyntax(t *testing.T) {
	err := Parse("t", `{{header "x-user"`)
	if err == nil {
		t.Fatal("expected parse error")
	}
	te, ok := errors.AsTransformError(err)
	if !ok || te.Kind != errors.KindTemplateSyntax {
		t.Errorf("expected template syntax kind, got %v", err)
	}

	if err := Parse("t", `plain literal, {{header "ok"}}`); err != nil {
		t.Errorf("valid template rejected: %v", err)
	}
}

func TestRenderContextTree(t *testing.T) {
	c := &Context{BodyTree: []byte(`{"a":1,"user":"alice"}`)}
	got, err := c.Render("t", `{{context}}`)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != `{"a":1,"user":"alice"}` {
		t.Errorf("context = %q", got)
	}

	// Nothing parsed renders as an empty object.
	empty := &Context{}
	got, err = empty.Render("t", `{{context}}`)
	if err != nil || got != "{}" {
		t.Errorf("empty context = %q, %v", got, err)
	}
}

func TestRenderDotAccess(t *testing.T) {
	c := &Context{BodyTree: []byte(`{"greeting":"hi","nested":{"k":"v"}}`)}
	got, err := c.Render("t", `{{.greeting}}/{{.nested.k}}`)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "hi/v" {
		t.Errorf("dot access = %q", got)
	}
}

func TestRenderSprigBase(t *testing.T) {
	c := &Context{Extractions: map[string]string{"name": "alice"}}
	got, err := c.Render("t", `{{extraction "name" | upper}}`)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "ALICE" {
		t.Errorf("sprig upper = %q", got)
	}
}

func TestRenderBodyCallback(t *testing.T) {
	calls := 0
	c := &Context{Body: func() string { calls++; return "raw-bytes" }}
	got, err := c.Render("t", `{{body}}|{{body}}`)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "raw-bytes|raw-bytes" {
		t.Errorf("body = %q", got)
	}
	// Materialization count is the accessor's concern, not the
	// engine's; both calls go through the same getter.
	if calls != 2 {
		t.Logf("body accessor invoked %d times", calls)
	}
}
