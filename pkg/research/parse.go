package research

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSONObject pulls the first complete JSON object out of model
// output. Models wrap structured output in markdown fences or prose more
// often than not, so we strip fences first, try the whole text, then fall
// back to a balanced-brace scan that respects string literals.
func extractJSONObject(text string) (string, error) {
	s := strings.TrimSpace(text)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	if json.Valid([]byte(s)) && strings.HasPrefix(s, "{") {
		return s, nil
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return "", fmt.Errorf("no JSON object in output")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if !json.Valid([]byte(candidate)) {
						return "", fmt.Errorf("unparseable JSON object in output")
					}
					return candidate, nil
				}
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in output")
}

// decodeObject extracts and unmarshals the first JSON object in text.
func decodeObject(text string, v any) error {
	obj, err := extractJSONObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("decode structured output: %w", err)
	}
	return nil
}
