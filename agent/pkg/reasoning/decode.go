package reasoning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

const maxRawResponse = 500

// MalformedResponseError is returned when reasoning output does not decode into the expected record.
type MalformedResponseError struct {
	Operation string
	Reason    string
	// Raw is the response as received, truncated.
	Raw string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %s", e.Operation, e.Reason)
}

func malformed(op, raw, format string, args ...any) *MalformedResponseError {
	return &MalformedResponseError{Operation: op, Reason: fmt.Sprintf(format, args...), Raw: truncateStr(raw, maxRawResponse)}
}

// resolveSchema builds the validation schema for a wire record.
func resolveSchema[T any]() (*jsonschema.Resolved, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("failed to infer schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema: %w", err)
	}
	return resolved, nil
}

// decodeStrict extracts the first JSON object from an LLM response, validates it against
// schema and decodes it into T, rejecting unknown fields.
func decodeStrict[T any](op, raw string, schema *jsonschema.Resolved) (T, error) {
	var out T
	obj := extractJSON(raw)
	if obj == "" {
		return out, malformed(op, raw, "no JSON object found")
	}

	var instance any
	if err := json.Unmarshal([]byte(obj), &instance); err != nil {
		return out, malformed(op, raw, "invalid JSON: %v", err)
	}
	if err := schema.Validate(instance); err != nil {
		return out, malformed(op, raw, "schema violation: %v", err)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(obj)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, malformed(op, raw, "decode: %v", err)
	}
	return out, nil
}

// extractJSON cleans common model formatting mistakes and returns the first complete JSON object.
func extractJSON(response string) string {
	s := strings.TrimSpace(response)
	s = stripCodeFence(s)
	s = cleanXMLTags(s)
	s = cleanJSStringConcat(s)
	s = escapeNewlinesInStrings(s)

	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	return extractJSONObject(s, start)
}

func stripCodeFence(s string) string {
	for _, fence := range []string{"```json", "```JSON", "```"} {
		start := strings.Index(s, fence)
		if start < 0 {
			continue
		}
		start += len(fence)
		if end := strings.Index(s[start:], "```"); end >= 0 {
			return strings.TrimSpace(s[start : start+end])
		}
		return strings.TrimSpace(s[start:])
	}
	return s
}

// cleanXMLTags truncates tool-invocation markup that models sometimes append.
func cleanXMLTags(s string) string {
	for _, tag := range []string{"</invoke>", "<invoke", "</parameter>"} {
		if idx := strings.Index(s, tag); idx > 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// cleanJSStringConcat joins "a " + "b" style concatenations into one string.
var jsStringConcatRegex = regexp.MustCompile(`"\s*\+\s*"`)

func cleanJSStringConcat(s string) string {
	return jsStringConcatRegex.ReplaceAllString(s, "")
}

// escapeNewlinesInStrings escapes literal newlines inside JSON string values.
func escapeNewlinesInStrings(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case ch == '\n' && inString:
			result.WriteString(`\n`)
			continue
		case ch == '\r' && inString:
			continue
		}
		result.WriteByte(ch)
	}
	return result.String()
}

// extractJSONObject returns the balanced object starting at start. Anything after it,
// such as a stray closing brace, is dropped.
func extractJSONObject(s string, start int) string {
	if start >= len(s) || s[start] != '{' {
		return ""
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
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
