// Package cache holds the local fallback stores for the site document.
// Both backends store the document as a JSON object under a prefixed key
// and report unreadable payloads as docsync.ErrMalformedDocument.
package cache

import (
	"encoding/json"
	"fmt"

	"portfolio/api/internal/content"
	"portfolio/api/internal/docsync"
)

const keyPrefix = "site:"

func encode(doc content.Tree) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("encode cached document: %w", content.ErrNotObject)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode cached document: %w", err)
	}
	return raw, nil
}

func decode(key string, raw []byte) (content.Tree, error) {
	doc, err := content.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: cached %s: %w", docsync.ErrMalformedDocument, key, err)
	}
	return doc, nil
}
