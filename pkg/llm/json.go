package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches <think>...</think> blocks some models emit before the answer.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// ErrNoJSON is returned when a response contains no JSON object or array.
var ErrNoJSON = errors.New("no valid JSON found in response")

// ErrMultipleJSON is returned by strict parsing when another JSON object
// follows the first one.
var ErrMultipleJSON = errors.New("more than one JSON object in response")

// ExtractJSON extracts JSON content from an LLM response that may contain
// <think> tags, markdown code fences, or surrounding prose.
func ExtractJSON(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if jsonStr, ok := extractBalancedJSON(cleaned, '{', '}'); ok && json.Valid([]byte(jsonStr)) {
			return jsonStr, nil
		}
	}

	if arrStart >= 0 {
		if jsonStr, ok := extractBalancedJSON(cleaned, '[', ']'); ok && json.Valid([]byte(jsonStr)) {
			return jsonStr, nil
		}
	}

	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	return "", ErrNoJSON
}

// extractBalancedJSON returns the first balanced structure starting with
// openChar, skipping brackets inside string literals.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
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
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// ParseJSONResponse extracts JSON from a response and unmarshals it into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return result, nil
}

// ParseStrictJSONResponse is ParseJSONResponse but rejects unknown fields and
// replies that carry a second JSON object after the first.
func ParseStrictJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(jsonStr)))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return result, fmt.Errorf("decode JSON: %w", err)
	}
	cleaned := thinkTagPattern.ReplaceAllString(response, "")
	if idx := strings.Index(cleaned, jsonStr); idx >= 0 && containsJSONObject(cleaned[idx+len(jsonStr):]) {
		return result, ErrMultipleJSON
	}
	return result, nil
}

// containsJSONObject reports whether s holds a balanced, valid JSON object
// anywhere. Braces in prose that do not form valid JSON are ignored.
func containsJSONObject(s string) bool {
	for i := strings.IndexByte(s, '{'); i >= 0; {
		if obj, ok := extractBalancedJSON(s[i:], '{', '}'); ok && json.Valid([]byte(obj)) {
			return true
		}
		next := strings.IndexByte(s[i+1:], '{')
		if next < 0 {
			return false
		}
		i += next + 1
	}
	return false
}
