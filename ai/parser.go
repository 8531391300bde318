// Package ai holds the reasoning-service callers: prompt rendering, the
// resilient structured-output parser, and the typed extraction and final
// reasoning calls built on them.
package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"phenodx/domain/core"
)

// ParseError is the typed failure of ExtractStructured. Prefix carries the
// head of the offending text for diagnostics. It wraps
// core.ErrStructuredRecovery so callers can errors.Is it into the
// collaborator-degradation path.
type ParseError struct {
	Prefix string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no structured value recovered from response: %q", e.Prefix)
}

func (e *ParseError) Unwrap() error {
	return core.ErrStructuredRecovery
}

const parseErrorPrefixLen = 200

var (
	leadingFence  = regexp.MustCompile("^```(?:json)?[ \t]*\n?")
	trailingFence = regexp.MustCompile("\n?[ \t]*```$")
)

// ExtractStructured recovers a JSON value from free-form generation output.
// Strategies in order: direct parse, fence stripping, outermost balanced
// bracket extraction, truncation repair. Never panics on malformed input;
// the only failure mode is a *ParseError.
func ExtractStructured(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)

	if raw, ok := tryParse(trimmed); ok {
		return raw, nil
	}

	unfenced := stripFences(trimmed)
	if raw, ok := tryParse(unfenced); ok {
		return raw, nil
	}

	for _, fragment := range bracketCandidates(unfenced) {
		if raw, ok := tryParse(fragment); ok {
			return raw, nil
		}
		if raw, ok := repairTruncated(fragment); ok {
			return raw, nil
		}
	}

	prefix := text
	if len(prefix) > parseErrorPrefixLen {
		prefix = prefix[:parseErrorPrefixLen]
	}
	return nil, &ParseError{Prefix: prefix}
}

func tryParse(s string) (json.RawMessage, bool) {
	if s == "" {
		return nil, false
	}
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	return raw, true
}

func stripFences(s string) string {
	out := leadingFence.ReplaceAllString(s, "")
	out = trailingFence.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// bracketCandidates returns the outermost bracketed substrings, array and
// object style, ordered by earliest start then widest span. Each candidate
// runs to the last matching closer, or to the end of the text when the
// structure is unbalanced (truncated output).
func bracketCandidates(s string) []string {
	type span struct{ start, end int }
	var spans []span
	for _, pair := range [][2]byte{{'[', ']'}, {'{', '}'}} {
		start := strings.IndexByte(s, pair[0])
		if start == -1 {
			continue
		}
		end := strings.LastIndexByte(s, pair[1])
		if end <= start {
			end = len(s) - 1
		}
		spans = append(spans, span{start, end})
	}
	// Earliest start first; for equal starts the wider span wins.
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[j].start < spans[i].start ||
				(spans[j].start == spans[i].start && spans[j].end > spans[i].end) {
				spans[i], spans[j] = spans[j], spans[i]
			}
		}
	}
	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, s[sp.start:sp.end+1])
	}
	return out
}

// repairTruncated recovers a prefix of fragment that ends on a complete value
// boundary, closing every still-open bracket. The scan respects quoted
// strings and escape characters so braces inside string values never count.
func repairTruncated(fragment string) (json.RawMessage, bool) {
	cuts := valueBoundaries(fragment)
	for i := len(cuts) - 1; i >= 0; i-- {
		candidate := strings.TrimRight(fragment[:cuts[i]], " \t\r\n,:")
		closers := closersFor(candidate)
		if closers == "" {
			continue
		}
		if raw, ok := tryParse(candidate + closers); ok {
			return raw, true
		}
	}
	return nil, false
}

// valueBoundaries lists the positions (exclusive) just after tokens that can
// legally end a JSON value, plus the end of the fragment. A comma can only
// follow a complete value, so the position before each comma is a boundary
// too; that is what drops a dangling trailing key (`{"a":1,"b":`) during
// repair.
func valueBoundaries(fragment string) []int {
	var cuts []int
	inString, escaped := false, false
	for i := 0; i < len(fragment); i++ {
		c := fragment[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				cuts = append(cuts, i+1)
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',':
			cuts = append(cuts, i)
		case '}', ']':
			cuts = append(cuts, i+1)
		}
	}
	if !inString {
		cuts = append(cuts, len(fragment))
	}
	return cuts
}

// closersFor returns the closing delimiters needed to balance candidate, or
// "" when the candidate is not a clean open structure (unterminated string,
// stray closer).
func closersFor(candidate string) string {
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(candidate); i++ {
		c := candidate[i]
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return ""
			}
			stack = stack[:len(stack)-1]
		}
	}
	if inString {
		return ""
	}
	closers := make([]byte, len(stack))
	for i := range stack {
		closers[i] = stack[len(stack)-1-i]
	}
	return string(closers)
}
