package resolver

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SplitWords splits a component name into words. A boundary falls before an
// uppercase letter that follows a lowercase letter or digit, and before the
// last capital of an uppercase run that is followed by a lowercase letter
// ("HTMLParser" → "HTML", "Parser"). Underscores, hyphens and spaces also
// separate words.
func SplitWords(name string) []string {
	runes := []rune(name)
	var words []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}

	for i, r := range runes {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			flush()
			continue
		}

		if unicode.IsUpper(r) && len(current) > 0 {
			prev := runes[i-1]
			switch {
			case unicode.IsLower(prev) || unicode.IsDigit(prev):
				flush()
			case unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				flush()
			}
		}

		current = append(current, r)
	}
	flush()

	return words
}

// Variants returns the naming variants tried for a component name, in
// order: original, snake_case, camelCase, kebab-case. Duplicates are dropped.
func Variants(name string) []string {
	words := SplitWords(name)

	lower := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(w)
	}

	// Casers are stateful; one per call.
	titleCaser := cases.Title(language.Und)
	var camel strings.Builder
	for i, w := range lower {
		if i == 0 {
			camel.WriteString(w)
			continue
		}
		camel.WriteString(titleCaser.String(w))
	}

	candidates := []string{
		name,
		strings.Join(lower, "_"),
		camel.String(),
		strings.Join(lower, "-"),
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
