// Package duration extracts a call-duration expression from free-text
// message fields and normalizes it to "M:SS".
package duration

import (
	"fmt"
	"regexp"
)

// Patterns are tried in order; the first match wins. Two-group patterns
// capture minutes and seconds, single-group patterns capture only one unit.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Duration:?\s*(\d+):(\d+)`), // Duration: 5:23
	regexp.MustCompile(`(?i)(\d+)m\s*(\d+)s`),          // 5m 23s
	regexp.MustCompile(`(\d+):(\d+)`),                  // 5:23
	regexp.MustCompile(`(?i)(\d+)\s*min`),              // 5 min
	regexp.MustCompile(`(?i)(\d+)\s*sec`),              // 30 sec
}

// Extract scans the subject first and, only when the subject yields nothing,
// the plain-text body. The second return value is false when no pattern
// matched either field.
func Extract(subject, body string) (string, bool) {
	if d, ok := match(subject); ok {
		return d, true
	}
	if body != "" {
		if d, ok := match(body); ok {
			return d, true
		}
	}
	return "", false
}

func match(text string) (string, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) == 3 {
			return fmt.Sprintf("%s:%s", m[1], pad(m[2])), true
		}
		return fmt.Sprintf("0:%s", pad(m[1])), true
	}
	return "", false
}

func pad(s string) string {
	if len(s) < 2 {
		return "0" + s
	}
	return s
}
