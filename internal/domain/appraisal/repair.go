package appraisal

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseFailed is returned when the AI reply cannot be parsed as JSON by
// any repair strategy.
var ErrParseFailed = errors.New("failed to parse appraisal response")

const parseErrorSample = 500

var jsonFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// repairStrategy extracts a candidate JSON document from raw model output.
// Strategies are pure and tried in order; each returns false when it has
// nothing to offer.
type repairStrategy func(string) (string, bool)

var repairStrategies = []repairStrategy{
	rawCandidate,
	fencedCandidate,
	braceCandidate,
	scrubbedCandidate,
}

// ParseResult turns a possibly-malformed AI reply into a validated Result.
// Structural parse failures fall through to the next strategy; a schema
// violation on a structurally valid document stops the cascade and is
// reported as ErrValidationFailed.
func ParseResult(raw string) (*Result, error) {
	trimmed := strings.TrimSpace(raw)
	for _, strategy := range repairStrategies {
		candidate, ok := strategy(trimmed)
		if !ok {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
			continue
		}
		if err := validateDocument(doc); err != nil {
			return nil, err
		}
		var res Result
		if err := json.Unmarshal([]byte(candidate), &res); err != nil {
			continue
		}
		return &res, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrParseFailed, truncate(raw, parseErrorSample))
}

func rawCandidate(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	return s, true
}

// fencedCandidate extracts the body of a markdown code fence.
func fencedCandidate(s string) (string, bool) {
	m := jsonFenceRegex.FindStringSubmatch(s)
	if len(m) < 2 {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// braceCandidate isolates the outermost JSON object by depth counting from
// the first opening brace. String literals and escapes are honored so braces
// inside values do not confuse the match. Single pass, no backtracking.
func braceCandidate(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
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
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// scrubbedCandidate strips non-printable characters and re-anchors on the
// first opening and last closing brace. Last resort before giving up.
func scrubbedCandidate(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 || r == '\t' || r == '\n' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return cleaned[start : end+1], true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
