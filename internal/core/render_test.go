package core

import (
	"reflect"
	"testing"
)

func TestRender(t *testing.T) {
	rec := MustParseRecord(1, `{"name":"Ann","age":30,"score":1.50,"ok":true,"none":null,"tags":["a","b"],"obj":{"k":1},"text":"line\nbreak"}`)

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "string unquoted",
			template: "Hi {{name}}!",
			expected: "Hi Ann!",
		},
		{
			name:     "number literal text kept",
			template: "{{age}} / {{score}}",
			expected: "30 / 1.50",
		},
		{
			name:     "bool and null",
			template: "{{ok}} {{none}}",
			expected: "true null",
		},
		{
			name:     "array and object compact",
			template: "{{tags}} {{obj}}",
			expected: `["a","b"] {"k":1}`,
		},
		{
			name:     "escaped string decoded",
			template: "{{text}}",
			expected: "line\nbreak",
		},
		{
			name:     "unknown key untouched",
			template: "{{missing}} and {{name}}",
			expected: "{{missing}} and Ann",
		},
		{
			name:     "whitespace inside braces is not a placeholder",
			template: "{{ name }} {name} {{name }}",
			expected: "{{ name }} {name} {{name }}",
		},
		{
			name:     "identifier must not start with digit",
			template: "{{1name}}",
			expected: "{{1name}}",
		},
		{
			name:     "triple braces",
			template: "{{{name}}}",
			expected: "{Ann}",
		},
		{
			name:     "repeated placeholder",
			template: "{{name}}{{name}}",
			expected: "AnnAnn",
		},
		{
			name:     "no placeholders",
			template: "plain text",
			expected: "plain text",
		},
		{
			name:     "empty template",
			template: "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.template, rec); got != tt.expected {
				t.Errorf("Render(%q) = %q, want %q", tt.template, got, tt.expected)
			}
		})
	}
}

func TestRender_Deterministic(t *testing.T) {
	rec := MustParseRecord(1, `{"a":"x","b":"y"}`)
	tmpl := "{{a}}-{{b}}-{{c}}"

	first := Render(tmpl, rec)
	for i := 0; i < 50; i++ {
		if got := Render(tmpl, rec); got != first {
			t.Fatalf("render %d = %q, want %q", i, got, first)
		}
	}
}

func TestRender_SubstitutedValueNotReexpanded(t *testing.T) {
	rec := MustParseRecord(1, `{"a":"{{b}}","b":"B"}`)

	if got := Render("{{a}}", rec); got != "{{b}}" {
		t.Errorf("Render = %q, want %q", got, "{{b}}")
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{{b}} {{a}} {{b}} {{ c }} {{_d1}}")
	want := []string{"b", "a", "_d1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Placeholders = %v, want %v", got, want)
	}

	if got := Placeholders("nothing here"); len(got) != 0 {
		t.Errorf("Placeholders = %v, want empty", got)
	}
}

func TestMissingPlaceholders(t *testing.T) {
	rec := MustParseRecord(1, `{"a":1}`)

	got := MissingPlaceholders("{{a}} {{b}} {{c}}", rec)
	want := []string{"b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MissingPlaceholders = %v, want %v", got, want)
	}
}
