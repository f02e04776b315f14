// Package dataset prepares training data for upload: JSON Lines
// encoding and the prompt/generation train/eval split.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeJSONLines encodes each item as one compact JSON line. Lines are
// joined with "\n" and there is no trailing newline. HTML characters are
// not escaped.
func EncodeJSONLines[T any](items []T) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, item := range items {
		if err := enc.Encode(item); err != nil {
			return "", fmt.Errorf("dataset: encode item %d: %w", i, err)
		}
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
