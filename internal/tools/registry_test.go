package tools

import (
	"errors"
	"testing"
)

func schemaWith(props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props}
}

func TestBuildToolConfigProjectsEveryDescriptor(t *testing.T) {
	descs := []Descriptor{
		{
			Name:        "calculate",
			Description: "arithmetic on two operands",
			InputSchema: schemaWith(map[string]any{
				"operation": map[string]any{"type": "string", "title": "Operation", "enum": []any{"add"}},
				"a":         map[string]any{"type": "number", "title": "A", "default": 0},
			}),
		},
		{
			Name:        "get_pods_information",
			Description: "pods in a namespace",
			InputSchema: schemaWith(map[string]any{
				"namespace": map[string]any{"type": "string", "title": "Namespace"},
			}),
		},
	}

	cfg, err := BuildToolConfig(descs)
	if err != nil {
		t.Fatalf("BuildToolConfig: %v", err)
	}

	specs, ok := cfg["tools"].([]any)
	if !ok || len(specs) != 2 {
		t.Fatalf("expected 2 tool specs, got %v", cfg["tools"])
	}

	for i, d := range descs {
		spec := specs[i].(map[string]any)["toolSpec"].(map[string]any)
		if spec["name"] != d.Name || spec["description"] != d.Description {
			t.Fatalf("spec %d does not mirror descriptor: %v", i, spec)
		}
		schema := spec["inputSchema"].(map[string]any)["json"].(map[string]any)
		if schema["type"] != "object" {
			t.Fatalf("schema type = %v", schema["type"])
		}
		props := schema["properties"].(map[string]any)
		want, _ := d.Properties()
		if len(props) != len(want) {
			t.Fatalf("spec %d property count = %d, want %d", i, len(props), len(want))
		}
		for name, raw := range want {
			src := raw.(map[string]any)
			got := props[name].(map[string]any)
			if got["type"] != src["type"] {
				t.Fatalf("property %q type = %v, want %v", name, got["type"], src["type"])
			}
			if got["description"] != src["title"] {
				t.Fatalf("property %q description = %v, want title %v", name, got["description"], src["title"])
			}
			if _, leaked := got["enum"]; leaked {
				t.Fatalf("property %q leaked extra schema fields: %v", name, got)
			}
		}
	}
}

func TestBuildToolConfigFailsLoudly(t *testing.T) {
	cases := []struct {
		name     string
		desc     Descriptor
		property string
		field    string
	}{
		{
			name: "missing title",
			desc: Descriptor{Name: "t", InputSchema: schemaWith(map[string]any{
				"ns": map[string]any{"type": "string"},
			})},
			property: "ns",
			field:    "title",
		},
		{
			name: "missing type",
			desc: Descriptor{Name: "t", InputSchema: schemaWith(map[string]any{
				"ns": map[string]any{"title": "Namespace"},
			})},
			property: "ns",
			field:    "type",
		},
		{
			name:     "missing properties",
			desc:     Descriptor{Name: "t", InputSchema: map[string]any{"type": "object"}},
			property: "",
			field:    "properties",
		},
		{
			name:     "nil schema",
			desc:     Descriptor{Name: "t"},
			property: "",
			field:    "properties",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildToolConfig([]Descriptor{tc.desc})
			var serr *SchemaTranslationError
			if !errors.As(err, &serr) {
				t.Fatalf("expected SchemaTranslationError, got %v", err)
			}
			if serr.Property != tc.property || serr.Field != tc.field {
				t.Fatalf("error = %+v, want property %q field %q", serr, tc.property, tc.field)
			}
		})
	}
}

func TestRegistryPreservesDiscoveryOrder(t *testing.T) {
	r := NewRegistry()
	names := []string{"zeta", "alpha", "mid"}
	for _, n := range names {
		if err := r.Register(Descriptor{Name: n, InputSchema: schemaWith(map[string]any{})}); err != nil {
			t.Fatalf("register %s: %v", n, err)
		}
	}
	got := r.Names()
	if len(got) != 3 {
		t.Fatalf("names = %v", got)
	}
	for i, n := range names {
		if got[i] != n {
			t.Fatalf("order broken: %v", got)
		}
	}

	// Re-registering keeps position but replaces content.
	if err := r.Register(Descriptor{Name: "alpha", Description: "updated", InputSchema: schemaWith(map[string]any{})}); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if r.Names()[1] != "alpha" {
		t.Fatalf("re-register moved the tool: %v", r.Names())
	}
	d, _ := r.Get("alpha")
	if d.Description != "updated" {
		t.Fatalf("re-register did not replace: %+v", d)
	}
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Descriptor{Name: "old", InputSchema: schemaWith(map[string]any{})}); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := r.Replace([]Descriptor{
		{Name: "calculate", InputSchema: schemaWith(map[string]any{})},
		{Name: "get_pods_information", InputSchema: schemaWith(map[string]any{})},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, ok := r.Get("old"); ok {
		t.Fatal("replace kept a stale tool")
	}
	got := r.Names()
	if len(got) != 2 || got[0] != "calculate" || got[1] != "get_pods_information" {
		t.Fatalf("names after replace = %v", got)
	}
}

func TestRegistryRejectsBlankName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Descriptor{Name: "   "}); err == nil {
		t.Fatal("expected error for blank name")
	}
	if err := r.Replace([]Descriptor{{Name: ""}}); err == nil {
		t.Fatal("expected error for blank name in replace")
	}
}
