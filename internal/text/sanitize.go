// internal/text/sanitize.go
package text

import (
	"regexp"
)

var whitespaceRun = regexp.MustCompile(`[\s\v]+`)

// Sanitize cleans a raw passage for use as a race text. Wiki-style section headings
// ("== History ==") are removed, every whitespace run becomes a single space, and the
// passage is rejected (ok == false) if it contains any non-ASCII character or, once
// whitespace is collapsed, any byte that cannot be typed (outside 0x20..0x7E).
func Sanitize(raw string) (string, bool) {
	for i := 0; i < len(raw); i++ {
		if raw[i] > 0x7F {
			return "", false
		}
	}

	stripped := stripHeadings([]byte(raw))
	out := whitespaceRun.ReplaceAllString(string(stripped), " ")
	for i := 0; i < len(out); i++ {
		if out[i] < 0x20 || out[i] > 0x7E {
			return "", false
		}
	}
	return out, true
}

// stripHeadings scans from the end of buf toward the start. A run of two or more '=' that
// is followed by a non-'=' character marks the end of a heading; when the next newline is
// reached with another such run seen since, everything after that newline up to and
// including the closing run is cut out. Input must be ASCII.
func stripHeadings(buf []byte) []byte {
	equalRun := 0
	headingEnd := -1

	for i := len(buf) - 1; i >= 0; i-- {
		switch c := buf[i]; {
		case c == '=':
			equalRun++
		case c == '\n':
			if equalRun >= 2 && headingEnd >= 0 {
				buf = append(buf[:i+1], buf[headingEnd+1:]...)
			}
			equalRun = 0
			headingEnd = -1
		default:
			if equalRun >= 2 {
				headingEnd = i + equalRun
			}
			equalRun = 0
		}
	}
	return buf
}

// TrimToSentence cuts s after the first '.' found at or beyond minLen characters.
// If there is no such '.', s is returned whole.
func TrimToSentence(s string, minLen int) string {
	if minLen < 0 {
		minLen = 0
	}
	for i := minLen; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i+1]
		}
	}
	return s
}
