package data

import "fmt"

// PageType is the layout type of a viewer page.
type PageType int

const (
	PageSingle PageType = 0
	PageLeft   PageType = 1
	PageRight  PageType = 2
	PageDouble PageType = 3
)

// Language codes as returned by the API.
type Language int

const (
	LanguageEnglish    Language = 0
	LanguageSpanish    Language = 1
	LanguageFrench     Language = 2
	LanguageIndonesian Language = 3
	LanguagePortuguese Language = 4
	LanguageRussian    Language = 5
	LanguageThai       Language = 6
	LanguageGerman     Language = 7
)

var languageNames = map[Language]string{
	LanguageEnglish:    "ENGLISH",
	LanguageSpanish:    "SPANISH",
	LanguageFrench:     "FRENCH",
	LanguageIndonesian: "INDONESIAN",
	LanguagePortuguese: "PORTUGUESE",
	LanguageRussian:    "RUSSIAN",
	LanguageThai:       "THAI",
	LanguageGerman:     "GERMAN",
}

// Tag returns the filename language tag for the language, including a
// leading space. English returns an empty tag. Unknown codes render as
// " [LANG-n]" so new languages never break naming.
func (l Language) Tag() string {
	// Legacy Vietnamese code observed in older payloads.
	if l == 8 {
		return " [VIETNAMESE]"
	}
	name, ok := languageNames[l]
	if !ok {
		return fmt.Sprintf(" [LANG-%d]", int(l))
	}
	if l == LanguageEnglish {
		return ""
	}
	return " [" + name + "]"
}
