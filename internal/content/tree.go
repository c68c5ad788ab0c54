// Package content holds the site document: its typed shape, the canonical
// default and the JSON tree form the sync layer works on.
package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Tree is a decoded JSON object. An absent key and a key holding nil are
// different things: absent means "not set", nil is an explicit JSON null.
type Tree = map[string]any

var ErrNotObject = errors.New("document is not a JSON object")

// Parse decodes raw JSON into a Tree. Anything other than an object fails
// with ErrNotObject.
func Parse(raw []byte) (Tree, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}
	var tree Tree
	if err := json.Unmarshal(trimmed, &tree); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if tree == nil {
		return nil, ErrNotObject
	}
	return tree, nil
}

// ToTree converts any JSON-encodable value into its tree form.
func ToTree(value any) (Tree, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return Parse(raw)
}

// Decode maps a tree onto the typed SiteContent. Unknown keys are ignored;
// JSON nulls leave the zero value in place.
func Decode(tree Tree) (SiteContent, error) {
	raw, err := json.Marshal(tree)
	if err != nil {
		return SiteContent{}, fmt.Errorf("encode document: %w", err)
	}
	var site SiteContent
	if err := json.Unmarshal(raw, &site); err != nil {
		return SiteContent{}, fmt.Errorf("decode site content: %w", err)
	}
	return site, nil
}

// Clone returns a deep copy of a tree.
func Clone(tree Tree) Tree {
	if tree == nil {
		return nil
	}
	return CloneValue(tree).(Tree)
}

// CloneValue deep-copies maps and slices of a decoded JSON value. Scalars
// are returned as they are.
func CloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = CloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return value
	}
}
