package common

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ExtractJSONObject returns the outermost {...} span of an LLM response,
// dropping markdown fences and any chatter around it.
func ExtractJSONObject(response string) (string, bool) {
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return response[start : end+1], true
}

// ParseJSON cleans and unmarshals a JSON string into a type T.
// It handles common LLM quirks like surrounding markdown or extra text.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	jsonStr, ok := ExtractJSONObject(response)
	if !ok {
		return zero, fmt.Errorf("no JSON object found in response (missing '{' or '}')")
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return result, nil
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// RuneSpan converts a byte span of text into character offsets.
func RuneSpan(text string, byteStart, byteEnd int) (int, int) {
	start := utf8.RuneCountInString(text[:byteStart])
	return start, start + utf8.RuneCountInString(text[byteStart:byteEnd])
}
