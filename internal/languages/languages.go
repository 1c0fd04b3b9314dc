package languages

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// DefaultLocale is used for codes outside the supported set
const DefaultLocale = "en-US"

// Language describes one supported language
type Language struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Flag   string `json:"flag"`
	Locale string `json:"locale"` // Locale tag handed to speech synthesis
}

var supported = []Language{
	{Code: "en", Name: "English", Flag: "🇺🇸", Locale: "en-US"},
	{Code: "es", Name: "Spanish", Flag: "🇪🇸", Locale: "es-ES"},
	{Code: "fr", Name: "French", Flag: "🇫🇷", Locale: "fr-FR"},
	{Code: "de", Name: "German", Flag: "🇩🇪", Locale: "de-DE"},
	{Code: "it", Name: "Italian", Flag: "🇮🇹", Locale: "it-IT"},
	{Code: "pt", Name: "Portuguese", Flag: "🇵🇹", Locale: "pt-PT"},
	{Code: "ru", Name: "Russian", Flag: "🇷🇺", Locale: "ru-RU"},
	{Code: "ja", Name: "Japanese", Flag: "🇯🇵", Locale: "ja-JP"},
	{Code: "ko", Name: "Korean", Flag: "🇰🇷", Locale: "ko-KR"},
	{Code: "zh", Name: "Chinese", Flag: "🇨🇳", Locale: "zh-CN"},
}

// All returns a copy of the supported languages in display order
func All() []Language {
	out := make([]Language, len(supported))
	copy(out, supported)
	return out
}

// Codes returns the supported language codes
func Codes() []string {
	return lo.Map(supported, func(l Language, _ int) string { return l.Code })
}

// Lookup finds a supported language by code
func Lookup(code string) (Language, bool) {
	return lo.Find(supported, func(l Language) bool { return l.Code == code })
}

// IsSupported reports whether code belongs to the fixed supported set
func IsSupported(code string) bool {
	_, ok := Lookup(code)
	return ok
}

// Locale maps a language code to its synthesis locale tag.
// Unknown codes fall back to DefaultLocale.
func Locale(code string) string {
	if lang, ok := Lookup(code); ok {
		return lang.Locale
	}
	return DefaultLocale
}

// Name returns the English name for code, or the code itself when unknown
func Name(code string) string {
	if lang, ok := Lookup(code); ok {
		return lang.Name
	}
	return code
}

// Label renders a language as "Name (code)" for prompts and messages
func Label(code string) string {
	if !IsSupported(code) {
		return code
	}
	return fmt.Sprintf("%s (%s)", Name(code), code)
}

// ValidatePair checks that both codes are supported
func ValidatePair(source, target string) error {
	if !IsSupported(source) {
		return fmt.Errorf("unsupported source language: %q (supported: %s)", source, strings.Join(Codes(), ", "))
	}
	if !IsSupported(target) {
		return fmt.Errorf("unsupported target language: %q (supported: %s)", target, strings.Join(Codes(), ", "))
	}
	return nil
}
