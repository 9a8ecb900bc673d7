// Package utils holds small helpers for chapter parsing and filename
// sanitization shared by the planner and the exporters.
package utils

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var nonWordRun = regexp.MustCompile(`\W+`)

const pathTrimCutset = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~ "

// EscapePath normalizes text for safe filename usage: every run of
// non-word characters collapses to a single space and surrounding
// punctuation is stripped.
func EscapePath(path string) string {
	normalized := nonWordRun.ReplaceAllString(path, " ")
	return strings.Trim(normalized, pathTrimCutset)
}

// ChapterNameToInt parses the numeric chapter value from a chapter name
// such as "#012". The second return value is false when the name carries
// no number (oneshots, extras).
func ChapterNameToInt(name string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimLeft(name, "#"))
	if err != nil {
		return 0, false
	}
	return n, true
}

func containsKeywords(text string, keywords ...string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range keywords {
		if !strings.Contains(lower, keyword) {
			return false
		}
	}
	return true
}

// IsOneshot reports whether chapter metadata indicates one-shot content.
// Numbered chapters are never oneshots regardless of their subtitle.
func IsOneshot(chapterName, chapterSubtitle string) bool {
	if _, ok := ChapterNameToInt(chapterName); ok {
		return false
	}
	return containsKeywords(chapterName, "one", "shot") ||
		containsKeywords(chapterSubtitle, "one", "shot")
}

// IsExtra reports whether a chapter name represents an extra chapter.
func IsExtra(chapterName string) bool {
	return strings.ToLower(strings.Trim(chapterName, "#")) == "ex"
}

var titleCaser = cases.Title(language.English)

// TitleCase capitalizes each word, matching the casing used for title
// export directory names.
func TitleCase(s string) string {
	return titleCaser.String(s)
}

// FixEncoding repairs the common mojibake where UTF-8 bytes were decoded
// as latin-1 upstream. Text that does not round-trip cleanly is returned
// unchanged.
func FixEncoding(text string) string {
	raw := make([]byte, 0, len(text))
	for _, r := range text {
		if r > 0xFF {
			return text
		}
		raw = append(raw, byte(r))
	}
	if !utf8.Valid(raw) {
		return text
	}
	return string(raw)
}
