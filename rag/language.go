package rag

import "strings"

// DefaultBaseLanguage is the language prompts and fixed messages are written in.
const DefaultBaseLanguage = "en"

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"pt": "Portuguese",
	"it": "Italian",
	"ru": "Russian",
}

// LanguageName returns the English name of a language code.
// Unknown codes are returned unchanged.
func LanguageName(code string) string {
	if name, ok := languageNames[normalizeLanguage(code)]; ok {
		return name
	}
	return code
}

// SupportedLanguages returns the codes with a known language name.
func SupportedLanguages() []string {
	return []string{"en", "es", "fr", "de", "zh", "ja", "ko", "pt", "it", "ru"}
}

// IsSupportedLanguage reports whether code has a known language name.
func IsSupportedLanguage(code string) bool {
	_, ok := languageNames[normalizeLanguage(code)]
	return ok
}

func normalizeLanguage(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
