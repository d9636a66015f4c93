package llm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// normalizeContent strips markdown code fences and surrounding whitespace that
// chat models like to wrap JSON in.
func normalizeContent(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// drop an optional language tag on the fence line
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			if tag := strings.TrimSpace(s[:i]); tag == "" || !strings.ContainsAny(tag, "{[") {
				s = s[i+1:]
			}
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// unwrap returns the value stored under key when raw is an object carrying it.
// Models asked for an array frequently answer {"<key>": [...]} and sometimes a
// bare array; both decode to the same thing.
func unwrap(raw []byte, key string) []byte {
	raw = bytes.TrimSpace(raw)
	if key == "" || len(raw) == 0 || raw[0] != '{' {
		return raw
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}
	if v, ok := obj[key]; ok {
		return v
	}
	return raw
}

// decodeInto normalizes content and unmarshals it into out.
func decodeInto(op, content, wrapKey string, out any) error {
	content = normalizeContent(content)
	if content == "" {
		return ErrUpstreamGeneration(op, "empty content")
	}
	if err := json.Unmarshal(unwrap([]byte(content), wrapKey), out); err != nil {
		return &UpstreamGenerationError{Op: op, Msg: "invalid structured output", Err: err}
	}
	return nil
}
