package metadata

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls the first balanced JSON object out of a free-text completion.
// Code fences and surrounding prose are ignored; braces inside string literals do not count.
func ExtractJSON(raw string) (string, error) {
	text := stripFences(raw)

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end >= 0 {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	return "", fmt.Errorf("%w: no JSON object in response", ErrParse)
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if open := strings.Index(text, "```"); open >= 0 {
		body := text[open+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		}
		if closing := strings.Index(body, "```"); closing >= 0 {
			body = body[:closing]
		}
		if strings.Contains(body, "{") {
			return strings.TrimSpace(body)
		}
	}
	return text
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
