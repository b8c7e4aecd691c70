package extract

import (
	"net/http"
	"testing"

	"github.com/wudi/transmute/internal/errors"
)

func staticBody(s string) func() string {
	return func() string { return s }
}

func TestSubgroupBound(t *testing.T) {
	tests := []struct {
		name     string
		regex    string
		subgroup int
		wantErr  bool
	}{
		{"whole match", `.*`, 0, false},
		{"group within bound", `(\w+)@(\w+)`, 2, false},
		{"group out of bound", `(\w+)@(\w+)`, 3, true},
		{"no groups but group requested", `\w+`, 1, true},
		{"negative group", `(\w+)`, -1, true},
		{"bad regex", `(unclosed`, 0, true},
	}

	for _, tt := range tests {
		_, err := New(Spec{Body: true, Regex: tt.regex, Subgroup: tt.subgroup})
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: New err = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if err != nil {
			te, ok := errors.AsTransformError(err)
			if !ok || te.Kind != errors.KindConfig {
				t.Errorf("%s: expected config error, got %v", tt.name, err)
			}
		}
	}
}

func TestExtractFromHeader(t *testing.T) {
	ex, err := New(Spec{Header: "X-User", Regex: `(\w+)@(\w+)`, Subgroup: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h := http.Header{}
	h.Add("X-User", "alice@example")
	h.Add("X-User", "bob@example")

	if got := ex.Extract(h, staticBody("")); got != "alice" {
		t.Errorf("Extract = %q, want first occurrence %q", got, "alice")
	}

	// Case-insensitive lookup.
	h2 := http.Header{}
	h2.Set("x-user", "carol@example")
	if got := ex.Extract(h2, staticBody("")); got != "carol" {
		t.Errorf("Extract = %q, want %q", got, "carol")
	}

	// Absent header yields "" without running the regex.
	if got := ex.Extract(http.Header{}, staticBody("")); got != "" {
		t.Errorf("Extract on missing header = %q, want \"\"", got)
	}
}

func TestExtractFullMatchOnly(t *testing.T) {
	// The pattern must span the whole value; a partial hit is no match.
	ex, err := New(Spec{Header: "X-Id", Regex: `id-(\d+)`, Subgroup: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h := http.Header{}
	h.Set("X-Id", "prefix id-42 suffix")
	if got := ex.Extract(h, staticBody("")); got != "" {
		t.Errorf("partial match extracted %q, want \"\"", got)
	}

	h.Set("X-Id", "id-42")
	if got := ex.Extract(h, staticBody("")); got != "42" {
		t.Errorf("Extract = %q, want %q", got, "42")
	}
}

func TestExtractFromBody(t *testing.T) {
	ex, err := New(Spec{Body: true, Regex: `.*"name":"(\w+)".*`, Subgroup: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	calls := 0
	getBody := func() string {
		calls++
		return `{"name":"alice","age":30}`
	}

	if got := ex.Extract(http.Header{}, getBody); got != "alice" {
		t.Errorf("Extract = %q, want %q", got, "alice")
	}
	if calls != 1 {
		t.Errorf("body accessor called %d times, want 1", calls)
	}
}

func TestExtractWholeMatch(t *testing.T) {
	ex, err := New(Spec{Header: "X-Token", Regex: `tok-\w+`, Subgroup: 0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := http.Header{}
	h.Set("X-Token", "tok-abc")
	if got := ex.Extract(h, staticBody("")); got != "tok-abc" {
		t.Errorf("Extract = %q, want whole match", got)
	}
}

func TestExtractUnmatchedOptionalGroup(t *testing.T) {
	ex, err := New(Spec{Header: "X-V", Regex: `a(b)?c`, Subgroup: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := http.Header{}
	h.Set("X-V", "ac")
	if got := ex.Extract(h, staticBody("")); got != "" {
		t.Errorf("unmatched optional group = %q, want \"\"", got)
	}
}
