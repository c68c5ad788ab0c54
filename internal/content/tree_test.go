package content

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultTreeHasEverySection(t *testing.T) {
	tree := DefaultTree()
	sections := []string{
		"hero", "stats", "courses", "brands", "features", "portfolio", "categories",
		"sliderSettings", "showcaseSettings", "whatsappSettings", "contactInfo",
		"footerSettings", "themeColors", "headerSettings", "fontSettings",
	}
	for _, key := range sections {
		if _, ok := tree[key]; !ok {
			t.Fatalf("default tree is missing %q", key)
		}
	}
	if got := len(tree["portfolio"].([]any)); got != 16 {
		t.Fatalf("portfolio items = %d, want 16", got)
	}
}

func TestDefaultTreeReturnsIndependentCopies(t *testing.T) {
	first := DefaultTree()
	first["hero"].(Tree)["name"] = "Changed"
	first["stats"] = []any{}

	second := DefaultTree()
	if got := second["hero"].(Tree)["name"]; got != "Yasin Ali Abir" {
		t.Fatalf("hero.name = %v, default was mutated", got)
	}
	if got := len(second["stats"].([]any)); got != 3 {
		t.Fatalf("stats = %d items, default was mutated", got)
	}
}

func TestDecodeRoundTripsDefault(t *testing.T) {
	site, err := Decode(DefaultTree())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if diff := cmp.Diff(Default(), site); diff != "" {
		t.Fatalf("decoded default mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsNonObjects(t *testing.T) {
	cases := []string{``, `"text"`, `[1,2]`, `null`, `42`}
	for _, raw := range cases {
		if _, err := Parse([]byte(raw)); !errors.Is(err, ErrNotObject) {
			t.Fatalf("Parse(%q) error = %v, want ErrNotObject", raw, err)
		}
	}
	tree, err := Parse([]byte(` {"hero":{"name":null}} `))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	hero := tree["hero"].(Tree)
	if value, ok := hero["name"]; !ok || value != nil {
		t.Fatalf("hero.name = %v (present %v), want explicit null", value, ok)
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := Tree{"list": []any{Tree{"id": "1"}}, "nested": Tree{"a": "x"}}
	clone := Clone(original)
	clone["list"].([]any)[0].(Tree)["id"] = "2"
	clone["nested"].(Tree)["a"] = "y"

	if original["list"].([]any)[0].(Tree)["id"] != "1" || original["nested"].(Tree)["a"] != "x" {
		t.Fatalf("Clone() shared state with the original: %v", original)
	}
	if Clone(nil) != nil {
		t.Fatal("Clone(nil) should be nil")
	}
}
