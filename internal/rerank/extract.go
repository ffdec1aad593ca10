package rerank

import (
	"encoding/json"
	"strings"

	"diaryrag/internal/domain"
)

// ExtractJSON returns the first balanced JSON object in text. A wrapping code
// fence is ignored; braces inside string literals do not count.
func ExtractJSON(text string) (json.RawMessage, error) {
	cleaned := stripFences(text)
	start := strings.IndexByte(cleaned, '{')
	if start < 0 {
		return nil, &domain.MalformedResponseError{Reason: "no JSON object found", Raw: text}
	}
	depth := 0
	inString := false
	escaped := false
	end := -1
scan:
	for i := start; i < len(cleaned); i++ {
		ch := cleaned[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				end = i + 1
				break scan
			}
		}
	}
	if end < 0 {
		return nil, &domain.MalformedResponseError{Reason: "unbalanced JSON object", Raw: text}
	}
	obj := cleaned[start:end]
	if !json.Valid([]byte(obj)) {
		var probe map[string]any
		err := json.Unmarshal([]byte(obj), &probe)
		return nil, &domain.MalformedResponseError{Reason: "invalid JSON object", Raw: text, Err: err}
	}
	return json.RawMessage(obj), nil
}

// stripFences removes one leading ```lang line and one trailing ``` only;
// fences inside the payload are left alone.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "```"); ok {
		if i := strings.IndexAny(rest, "{\n"); i >= 0 {
			rest = rest[i:]
		}
		text = rest
	}
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutSuffix(text, "```"); ok {
		text = rest
	}
	return text
}
