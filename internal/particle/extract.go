package particle

import (
	"fmt"
	"strings"
)

// ExtractField finds a named field in a response body by literal marker and
// returns its raw value token.
//
// The lookup is deliberately not a JSON decoder: the cloud API's response
// envelope is stable and only a single field is ever needed, so a tolerant
// marker scan avoids pulling full document parsing into the hot path. The
// semantics are:
//
//   - The marker is the literal text "field": (quotes included).
//   - Whitespace (spaces and tabs) after the colon is skipped.
//   - A leading double quote selects string extraction: the value is the
//     contents up to the next double quote.
//   - Anything else is a bare token: the value runs to the next ',' or '}',
//     trimmed of surrounding whitespace.
//   - The result is truncated to maxLen.
//
// Parameters:
//   - body: The response body to scan
//   - field: The field name (without quotes or colon)
//   - maxLen: Upper bound on the returned value's length
//
// Returns:
//   - string: The extracted value (possibly empty for an empty field)
//   - error: ErrFieldMissing if the marker is absent, ErrFieldMalformed if
//     the value cannot be terminated
func ExtractField(body, field string, maxLen int) (string, error) {
	marker := `"` + field + `":`
	pos := strings.Index(body, marker)
	if pos < 0 {
		return "", fmt.Errorf("%w: %q", ErrFieldMissing, field)
	}

	start := pos + len(marker)
	for start < len(body) && (body[start] == ' ' || body[start] == '\t') {
		start++
	}
	if start >= len(body) {
		return "", fmt.Errorf("%w: %q has no value", ErrFieldMalformed, field)
	}

	var value string
	if body[start] == '"' {
		start++
		end := strings.IndexByte(body[start:], '"')
		if end < 0 {
			return "", fmt.Errorf("%w: %q unterminated string", ErrFieldMalformed, field)
		}
		value = body[start : start+end]
	} else {
		end := start
		for end < len(body) && body[end] != ',' && body[end] != '}' {
			end++
		}
		value = strings.TrimSpace(body[start:end])
	}

	if maxLen > 0 && len(value) > maxLen {
		value = value[:maxLen]
	}
	return value, nil
}
