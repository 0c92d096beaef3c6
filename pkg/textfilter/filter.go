// Package textfilter softens profanity in generated prose so that
// family-friendly sessions stay family-friendly regardless of what the
// model produces.
package textfilter

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// replacements maps each filtered word to its softened form. Words with
// no reasonable substitute map to a censor marker.
var replacements = map[string]string{
	"fuck":         "fudge",
	"shit":         "shoot",
	"damn":         "dang",
	"hell":         "heck",
	"ass":          "rear",
	"bitch":        "jerk",
	"bastard":      "scoundrel",
	"crap":         "crud",
	"piss":         "ticked",
	"asshole":      "jerk",
	"dumbass":      "dummy",
	"jackass":      "jerk",
	"motherfucker": "mother-trucker",
	"goddamn":      "gosh-dang",
	"bullshit":     "baloney",
	"horseshit":    "nonsense",
	"dipshit":      "dummy",
	"shithead":     "jerk",
	"dickhead":     "jerk",
	"prick":        "jerk",
	"whore":        "[censored]",
	"slut":         "[censored]",
	"cock":         "[censored]",
	"dick":         "jerk",
	"pussy":        "[censored]",
	"tits":         "[censored]",
	"douchebag":    "jerk",
	"douche":       "jerk",
}

var titleCaser = cases.Title(language.English)

// Sanitizer replaces profanity with softened alternatives while
// preserving the casing of the original word.
type Sanitizer struct {
	patterns []pattern
}

type pattern struct {
	re          *regexp.Regexp
	replacement string
}

// NewSanitizer compiles the word list. The cost is paid once; Sanitize
// itself is allocation-light.
func NewSanitizer() *Sanitizer {
	s := &Sanitizer{patterns: make([]pattern, 0, len(replacements))}
	for word, replacement := range replacements {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
		s.patterns = append(s.patterns, pattern{re: re, replacement: replacement})
	}
	return s
}

// Sanitize returns text with every filtered word replaced.
func (s *Sanitizer) Sanitize(text string) string {
	result := text
	for _, p := range s.patterns {
		result = p.re.ReplaceAllStringFunc(result, func(match string) string {
			return matchCase(match, p.replacement)
		})
	}
	return result
}

// NeedsSanitizing reports whether text contains any filtered word.
func (s *Sanitizer) NeedsSanitizing(text string) bool {
	for _, p := range s.patterns {
		if p.re.MatchString(text) {
			return true
		}
	}
	return false
}

// FamilyFriendly reports whether a content rating requires filtering.
func FamilyFriendly(rating string) bool {
	switch strings.ToUpper(strings.TrimSpace(rating)) {
	case "G", "PG", "PG13", "PG-13":
		return true
	}
	return false
}

// matchCase applies the casing of the matched word to the replacement:
// SHOUTED stays shouted, Title stays Title, anything else goes through
// character by character.
func matchCase(original, replacement string) string {
	if original == "" {
		return replacement
	}
	if strings.ToUpper(original) == original {
		return strings.ToUpper(replacement)
	}
	if strings.ToLower(original) == original {
		return replacement
	}
	if titleCaser.String(strings.ToLower(original)) == original {
		return titleCaser.String(replacement)
	}

	origRunes := []rune(original)
	out := make([]rune, 0, len(replacement))
	for i, r := range replacement {
		if i < len(origRunes) && unicode.IsUpper(origRunes[i]) {
			out = append(out, unicode.ToUpper(r))
		} else {
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}
