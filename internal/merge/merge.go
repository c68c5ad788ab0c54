// Package merge reconciles partial or legacy site documents with the
// canonical default document.
//
// Objects are merged key by key and recursively. Every other value,
// arrays included, is taken from the override as a whole, so an incoming
// list always replaces the base list. A key that is absent from the
// override keeps the base value; a key holding JSON null overrides it.
package merge

import "portfolio/api/internal/content"

type undefined struct{}

// Undefined can be stored in a tree built in code to say "leave the base
// value alone" for that key. Decoded JSON never contains it.
var Undefined any = undefined{}

// Merge returns base with override applied. When override is not an object
// there is nothing to merge and a copy of base is returned. The result
// shares no maps or slices with either argument.
func Merge(base, override any) any {
	overrides, ok := override.(map[string]any)
	if !ok {
		return clone(base)
	}
	bases, ok := base.(map[string]any)
	if !ok {
		bases = nil
	}

	result := make(map[string]any, len(bases)+len(overrides))
	for key, value := range bases {
		result[key] = clone(value)
	}
	for key, value := range overrides {
		if value == Undefined {
			continue
		}
		_, overrideIsObject := value.(map[string]any)
		baseValue, baseIsObject := bases[key].(map[string]any)
		if overrideIsObject && baseIsObject {
			result[key] = Merge(baseValue, value)
			continue
		}
		result[key] = clone(value)
	}
	return result
}

// Document merges two document trees.
func Document(base, override content.Tree) content.Tree {
	merged, _ := Merge(base, override).(map[string]any)
	if merged == nil {
		return content.Tree{}
	}
	return merged
}

// Clean returns a deep copy of tree with every Undefined marker removed.
// A nil tree stays nil.
func Clean(tree content.Tree) content.Tree {
	if tree == nil {
		return nil
	}
	return clone(tree).(map[string]any)
}

func clone(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			if item == Undefined {
				continue
			}
			out[key] = clone(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			if item == Undefined {
				item = nil
			}
			out[i] = clone(item)
		}
		return out
	default:
		return value
	}
}
