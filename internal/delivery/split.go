package delivery

import (
	"strings"
	"unicode/utf8"
)

// Split breaks text into parts of at most limit bytes, preferring to cut at
// the last newline inside the window and never cutting inside a rune.
func Split(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	for len(text) > limit {
		end := limit
		for end > 0 && !utf8.RuneStart(text[end]) {
			end--
		}
		if end == 0 {
			end = limit
		}
		if nl := strings.LastIndexByte(text[:end], '\n'); nl > limit/2 {
			end = nl + 1
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// Truncate returns the longest prefix of text that fits in limit bytes
// without cutting inside a rune, and whether anything was cut.
func Truncate(text string, limit int) (string, bool) {
	if len(text) <= limit {
		return text, false
	}
	end := limit
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	return text[:end], true
}
