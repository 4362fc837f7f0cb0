package roles

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrNoJSONObject is returned when no balanced JSON object could be located
// in a model reply, per spec §9's "dynamic JSON extraction" design note.
var ErrNoJSONObject = errors.New("no balanced JSON object found in reply")

// ExtractJSON scans text for the first balanced `{ ... }` span and returns
// it as a gjson.Result if it parses as valid JSON. This is the located
// object the design note calls for; schema-specific fields are then read
// off the result via gjson paths by each role shim's parser, rather than
// unmarshalling into a map by hand.
func ExtractJSON(text string) (gjson.Result, error) {
	span, ok := firstBalancedObject(text)
	if !ok {
		return gjson.Result{}, ErrNoJSONObject
	}
	if !gjson.Valid(span) {
		return gjson.Result{}, ErrNoJSONObject
	}
	return gjson.Parse(span), nil
}

// firstBalancedObject returns the first substring of text that begins with
// '{' and is balanced against nested braces and string literals (so braces
// inside quoted strings don't throw off the count).
func firstBalancedObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range text {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+len(string(r))], true
			}
		}
	}
	return "", false
}
