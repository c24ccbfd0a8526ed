package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotObject is returned when a response is not exactly one JSON object.
var ErrNotObject = errors.New("response is not a single JSON object")

// StripCodeFences removes a leading ```json (or bare ```) line and a trailing ``` fence.
func StripCodeFences(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimLeft(s, " \t")
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseObject decodes content (after fence stripping) as one JSON object.
// Arrays, scalars, trailing data and malformed JSON are rejected with ErrNotObject.
func ParseObject(content string) (map[string]any, error) {
	s := StripCodeFences(content)
	if s == "" {
		return nil, fmt.Errorf("%w: empty response", ErrNotObject)
	}
	if s[0] != '{' {
		return nil, fmt.Errorf("%w: starts with %q", ErrNotObject, preview(s))
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrNotObject)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: null", ErrNotObject)
	}
	return m, nil
}

func preview(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
