package merge

import (
	"encoding/json"
	"math/rand"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"portfolio/api/internal/content"
)

func tree(t *testing.T, raw string) content.Tree {
	t.Helper()
	parsed, err := content.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse(%s) error = %v", raw, err)
	}
	return parsed
}

func TestMergeCases(t *testing.T) {
	cases := []struct {
		name     string
		base     string
		override string
		want     string
	}{
		{
			name:     "empty override keeps base",
			base:     `{"a":"x","b":{"c":1}}`,
			override: `{}`,
			want:     `{"a":"x","b":{"c":1}}`,
		},
		{
			name:     "list is replaced not merged",
			base:     `{"list":[{"id":"1"},{"id":"2"}]}`,
			override: `{"list":[{"id":"3"}]}`,
			want:     `{"list":[{"id":"3"}]}`,
		},
		{
			name:     "null overrides",
			base:     `{"a":"x"}`,
			override: `{"a":null}`,
			want:     `{"a":null}`,
		},
		{
			name:     "empty string overrides",
			base:     `{"a":"x"}`,
			override: `{"a":""}`,
			want:     `{"a":""}`,
		},
		{
			name:     "nested records merge recursively",
			base:     `{"hero":{"name":"Default","title":"T","flipStats":{"brands":"1","projects":"2"}}}`,
			override: `{"hero":{"name":"Cached","flipStats":{"brands":"9"}}}`,
			want:     `{"hero":{"name":"Cached","title":"T","flipStats":{"brands":"9","projects":"2"}}}`,
		},
		{
			name:     "type mismatch takes override",
			base:     `{"a":{"b":1}}`,
			override: `{"a":"flat"}`,
			want:     `{"a":"flat"}`,
		},
		{
			name:     "object over scalar takes override",
			base:     `{"a":"flat"}`,
			override: `{"a":{"b":1}}`,
			want:     `{"a":{"b":1}}`,
		},
		{
			name:     "unknown keys are carried",
			base:     `{"a":"x"}`,
			override: `{"legacy":true}`,
			want:     `{"a":"x","legacy":true}`,
		},
		{
			name:     "null does not recurse",
			base:     `{"contactInfo":{"email":"a@b.c"}}`,
			override: `{"contactInfo":null}`,
			want:     `{"contactInfo":null}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Document(tree(t, tc.base), tree(t, tc.override))
			if diff := cmp.Diff(tree(t, tc.want), got); diff != "" {
				t.Fatalf("Document() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergeUndefinedDefersToBase(t *testing.T) {
	base := content.Tree{"a": "x", "nested": content.Tree{"b": "y"}}
	got := Document(base, content.Tree{
		"a":      Undefined,
		"nested": content.Tree{"b": Undefined},
		"fresh":  content.Tree{"c": Undefined, "d": 1.0},
	})
	want := content.Tree{"a": "x", "nested": content.Tree{"b": "y"}, "fresh": content.Tree{"d": 1.0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Document() mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanDropsUndefined(t *testing.T) {
	input := content.Tree{
		"a":      Undefined,
		"nested": content.Tree{"b": Undefined, "c": "kept"},
		"list":   []any{Undefined, content.Tree{"d": Undefined}},
	}
	got := Clean(input)
	want := content.Tree{
		"nested": content.Tree{"c": "kept"},
		"list":   []any{nil, content.Tree{}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Clean() mismatch (-want +got):\n%s", diff)
	}
	if _, ok := input["a"]; !ok {
		t.Fatal("Clean() modified its input")
	}
	if Clean(nil) != nil {
		t.Fatal("Clean(nil) should stay nil")
	}
}

func TestMergeNonObjectOverrideReturnsBase(t *testing.T) {
	base := content.DefaultTree()
	for _, override := range []any{"a string", 12.0, []any{"x"}, nil, true} {
		got := Merge(base, override)
		if diff := cmp.Diff(any(base), got); diff != "" {
			t.Fatalf("Merge(base, %v) changed base (-want +got):\n%s", override, diff)
		}
	}
}

func TestMergeNestedNonObjectOverrideKeepsSubtree(t *testing.T) {
	base := tree(t, `{"hero":{"name":"x"}}`)
	got := Merge(base["hero"], "oops")
	if diff := cmp.Diff(base["hero"], got); diff != "" {
		t.Fatalf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeDoesNotAliasInputs(t *testing.T) {
	base := content.DefaultTree()
	override := tree(t, `{"stats":[{"id":"9","value":"1","label":"L"}],"hero":{"name":"N"}}`)
	merged := Document(base, override)

	merged["stats"].([]any)[0].(content.Tree)["value"] = "changed"
	merged["hero"].(content.Tree)["title"] = "changed"

	if override["stats"].([]any)[0].(content.Tree)["value"] != "1" {
		t.Fatal("merged result aliases the override list")
	}
	if base["hero"].(content.Tree)["title"] == "changed" {
		t.Fatal("merged result aliases the base record")
	}
}

func TestMergeDefaultAgainstDocumentShape(t *testing.T) {
	base := content.DefaultTree()
	merged := Document(base, tree(t, `{"hero":{"name":"Cached"}}`))

	site, err := content.Decode(merged)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := content.Default()
	want.Hero.Name = "Cached"
	if diff := cmp.Diff(want, site); diff != "" {
		t.Fatalf("merged site mismatch (-want +got):\n%s", diff)
	}
}

// The properties below run over randomly generated partial documents
// derived from the canonical default.

func TestMergeProperties(t *testing.T) {
	base := content.DefaultTree()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		partial := randomPartial(rng, base, 0)
		merged := Document(base, partial)

		assertTotal(t, base, merged, "")
		assertPrecedence(t, partial, merged, "")

		again := Document(base, merged)
		if diff := cmp.Diff(merged, again); diff != "" {
			t.Fatalf("iteration %d: merge is not idempotent (-once +twice):\n%s", i, diff)
		}

		if _, err := json.Marshal(merged); err != nil {
			t.Fatalf("iteration %d: merged document is not encodable: %v", i, err)
		}
	}
}

func assertTotal(t *testing.T, base, merged map[string]any, path string) {
	t.Helper()
	for key, baseValue := range base {
		value, ok := merged[key]
		if !ok {
			t.Fatalf("merged document lost %s%s", path, key)
		}
		baseObject, baseIsObject := baseValue.(map[string]any)
		mergedObject, mergedIsObject := value.(map[string]any)
		if baseIsObject && mergedIsObject {
			assertTotal(t, baseObject, mergedObject, path+key+".")
		}
	}
}

func assertPrecedence(t *testing.T, partial, merged map[string]any, path string) {
	t.Helper()
	for key, value := range partial {
		if value == Undefined {
			continue
		}
		if object, ok := value.(map[string]any); ok {
			if mergedObject, ok := merged[key].(map[string]any); ok {
				assertPrecedence(t, object, mergedObject, path+key+".")
				continue
			}
		}
		if diff := cmp.Diff(value, merged[key]); diff != "" {
			t.Fatalf("override at %s%s did not win (-override +merged):\n%s", path, key, diff)
		}
	}
}

func randomPartial(rng *rand.Rand, shape map[string]any, depth int) map[string]any {
	partial := map[string]any{}
	for key, value := range shape {
		switch rng.Intn(6) {
		case 0, 1:
			// leave absent
		case 2:
			partial[key] = nil
		case 3:
			if object, ok := value.(map[string]any); ok && depth < 4 {
				partial[key] = randomPartial(rng, object, depth+1)
				continue
			}
			partial[key] = "v" + strconv.Itoa(rng.Intn(100))
		case 4:
			partial[key] = []any{map[string]any{"id": strconv.Itoa(rng.Intn(10))}}
		default:
			partial[key] = Undefined
		}
	}
	if rng.Intn(4) == 0 {
		partial["unknown"+strconv.Itoa(depth)] = rng.Float64()
	}
	return partial
}
