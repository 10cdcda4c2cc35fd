/*
Package dehyphenator joins words that OCR split at the end of a line.

	A hyphen at the end of a line is removed if it is preceded by a lowercase letter
	and the next line starts with one. The rest of the word is moved up to the
	hyphenated line, so the line structure of the text is kept.
	Hyphens that are part of a compound (next line starts uppercase, e.g. "Ost-\nEuropa")
	and lines ending with an uppercase letter before the hyphen (abbreviations) are left alone.
*/
package dehyphenator

import (
	"strings"
	"unicode"
)

// Dehyphenate returns text with hyphenated line breaks joined.
func Dehyphenate(text string) string {
	lines := strings.Split(text, "\n")
	emptied := make(map[int]bool)
	for i := 0; i < len(lines)-1; i++ {
		line := strings.TrimRightFunc(lines[i], unicode.IsSpace)
		if !endsWithHyphen(line) || !lowercaseBeforeHyphen(line) {
			continue
		}
		next := strings.TrimLeftFunc(lines[i+1], unicode.IsSpace)
		if !startsLowercase(next) {
			continue
		}
		rest, after, _ := strings.Cut(next, " ")
		runes := []rune(line)
		lines[i] = string(runes[:len(runes)-1]) + rest
		lines[i+1] = strings.TrimLeftFunc(after, unicode.IsSpace)
		if lines[i+1] == "" {
			emptied[i+1] = true
		}
	}
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		// a line whose only word moved up disappears, real blank lines stay
		if emptied[i] {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func endsWithHyphen(line string) bool {
	r := []rune(line)
	return len(r) > 0 && isHyphen(r[len(r)-1])
}

func lowercaseBeforeHyphen(line string) bool {
	r := []rune(line)
	return len(r) > 1 && unicode.IsLower(r[len(r)-2])
}

func startsLowercase(s string) bool {
	for _, r := range s {
		return unicode.IsLower(r)
	}
	return false
}

func isHyphen(char rune) bool {
	return char == '-' || unicode.Is(unicode.Hyphen, char)
}
