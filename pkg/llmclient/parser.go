package llmclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoValidItems is returned when the tolerant parser exhausts every
// strategy, or every parsed item is missing a required field.
var ErrNoValidItems = fmt.Errorf("llmclient: no valid items in model response")

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseTolerant runs the four-step tolerant parse pipeline against a raw
// model response, stopping at the first strategy that yields valid JSON:
//
//  1. direct parse
//  2. parse after stripping markdown code fences
//  3. extract the first balanced [...] or {...} substring and parse
//  4. a repair pass (trailing commas, unbalanced braces) then parse
//
// The result is always a json.RawMessage holding either a JSON object or
// array, ready for the caller to normalize and validate against a schema.
func ParseTolerant(raw string) (json.RawMessage, error) {
	if v, ok := tryParse(raw); ok {
		return v, nil
	}
	if stripped := stripFences(raw); stripped != raw {
		if v, ok := tryParse(stripped); ok {
			return v, nil
		}
		raw = stripped
	}
	if extracted, ok := extractBalanced(raw); ok {
		if v, ok := tryParse(extracted); ok {
			return v, nil
		}
		raw = extracted
	}
	if repaired, ok := repair(raw); ok {
		if v, ok := tryParse(repaired); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("llmclient: %w: no parse strategy succeeded", ErrNoValidItems)
}

func tryParse(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if !json.Valid([]byte(s)) {
		return nil, false
	}
	return json.RawMessage(s), true
}

func stripFences(s string) string {
	if m := fencedBlock.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// extractBalanced finds the first top-level balanced {...} or [...]
// substring, scanning past string literals so braces inside quoted
// strings don't throw off the depth count.
func extractBalanced(s string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// repair applies a small set of heuristic fixes for the kind of
// near-miss JSON models commonly emit: trailing commas before a closing
// bracket, and unbalanced trailing braces/brackets.
func repair(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	s = trailingComma.ReplaceAllString(s, "$1")
	s = unescapeDoubled(s)

	opens := bytes.Count([]byte(s), []byte("{")) - bytes.Count([]byte(s), []byte("}"))
	brOpens := bytes.Count([]byte(s), []byte("[")) - bytes.Count([]byte(s), []byte("]"))
	for i := 0; i < brOpens; i++ {
		s += "]"
	}
	for i := 0; i < opens; i++ {
		s += "}"
	}
	return s, true
}

func unescapeDoubled(s string) string {
	if strings.Contains(s, `\"`) && !json.Valid([]byte(s)) {
		return strings.ReplaceAll(s, `\"`, `"`)
	}
	return s
}
