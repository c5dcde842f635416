package intent

import (
	"encoding/json"
	"strings"

	"little-giant/internal/domain"
)

const fence = "```"

// Extract recovers the first JSON object in raw model output and decodes it.
// It accepts pure JSON, fenced JSON and JSON surrounded by prose.
func Extract(raw string) (map[string]any, error) {
	island, err := Island(raw)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(island), &out); err != nil {
		return nil, &ParseError{Island: island, Err: err}
	}
	return out, nil
}

// ExtractIntent is Extract decoded into the Intent contract.
func ExtractIntent(raw string) (domain.Intent, error) {
	island, err := Island(raw)
	if err != nil {
		return domain.Intent{}, err
	}
	var out domain.Intent
	if err := json.Unmarshal([]byte(island), &out); err != nil {
		return domain.Intent{}, &ParseError{Island: island, Err: err}
	}
	return out, nil
}

// Island returns the substring from the first '{' to its matching '}', with
// trailing commas before a closing brace or bracket removed.
func Island(raw string) (string, error) {
	s := stripFence(raw)
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", &ExtractionError{Reason: "no JSON object found"}
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
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
				return stripTrailingCommas(s[start : i+1]), nil
			}
		}
	}
	return "", &ExtractionError{Reason: "unbalanced braces"}
}

// stripFence removes a leading code fence line and a trailing fence.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, fence) {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, fence)
		}
	}
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, fence)
}

func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
