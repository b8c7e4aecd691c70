package metadata

import "testing"

func TestFromInterface(t *testing.T) {
	tree := FromInterface(map[string]interface{}{
		"transmute.filter": map[string]interface{}{
			"request_transformation": "strip-auth",
			"weight":                 float64(3),
			"enabled":                true,
			"tags":                   []interface{}{"a", float64(2), true},
		},
	})

	got := tree.FilterValue("transmute.filter", "request_transformation")
	if s, ok := got.StringValue(); !ok || s != "strip-auth" {
		t.Errorf("FilterValue = %q, %v", s, ok)
	}

	if tree.FilterValue("other.filter", "request_transformation").Type() != TypeNull {
		t.Error("expected Null for unknown namespace")
	}
	if tree.Field("transmute.filter").Field("missing").Type() != TypeNull {
		t.Error("expected Null for missing key")
	}
}

func TestScalarString(t *testing.T) {
	tests := []struct {
		name string
		val  Value
		want string
	}{
		{"string", String("abc"), "abc"},
		{"int number", Number(3), "3"},
		{"float number", Number(2.5), "2.5"},
		{"bool true", Bool(true), "true"},
		{"bool false", Bool(false), "false"},
		{"list", List(String("a"), Number(2), Bool(true)), "a,2,true"},
		{"list skips structs", List(String("a"), Struct(nil), String("b")), "a,,b"},
		{"struct", Struct(map[string]Value{"k": String("v")}), ""},
		{"null", Null(), ""},
	}

	for _, tt := range tests {
		if got := tt.val.ScalarString(); got != tt.want {
			t.Errorf("%s: ScalarString() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestTotalTraversal(t *testing.T) {
	// Lookups on scalars never panic, they return Null.
	v := String("x").Field("anything").FilterValue("a", "b")
	if !v.IsNull() {
		t.Error("expected Null from traversing a scalar")
	}
}

func TestFromYAML(t *testing.T) {
	src := []byte(`
transmute.filter:
  request_transformation: strip-auth
  weight: 3
`)
	tree, err := FromYAML(src)
	if err != nil {
		t.Fatalf("FromYAML: %v", err)
	}
	v := tree.FilterValue("transmute.filter", "request_transformation")
	if got, ok := v.StringValue(); !ok || got != "strip-auth" {
		t.Errorf("request_transformation = %q, %v", got, ok)
	}
	if got := tree.FilterValue("transmute.filter", "weight").ScalarString(); got != "3" {
		t.Errorf("weight = %q", got)
	}

	if _, err := FromYAML([]byte("{unclosed")); err == nil {
		t.Error("malformed YAML must fail")
	}
}
