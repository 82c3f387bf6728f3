package transcript

import (
	"strings"
	"unicode"
)

// scriptLabel pairs a Unicode script range with its language label.
// Order matters: labels are reported in this order for mixed-script text.
var scriptLabels = []struct {
	rt    *unicode.RangeTable
	label string
}{
	{unicode.Devanagari, "Hindi"},
	{unicode.Bengali, "Bengali"},
	{unicode.Gurmukhi, "Punjabi"},
	{unicode.Gujarati, "Gujarati"},
	{unicode.Tamil, "Tamil"},
	{unicode.Telugu, "Telugu"},
	{unicode.Kannada, "Kannada"},
	{unicode.Malayalam, "Malayalam"},
}

// domainLexicon maps romanized agricultural words to a language label. It is a
// secondary signal for Latin-script text where script ranges say nothing.
var domainLexicon = map[string]string{
	// Hindi
	"kisan": "Hindi", "mandi": "Hindi", "fasal": "Hindi", "kheti": "Hindi",
	"beej": "Hindi", "khad": "Hindi", "pyaaz": "Hindi", "gehu": "Hindi",
	"mausam": "Hindi", "baarish": "Hindi",
	// Bengali
	"chash": "Bengali", "dhaan": "Bengali", "krishok": "Bengali",
	// Punjabi
	"kanak": "Punjabi", "vahi": "Punjabi",
}

// DetectLanguage classifies a text fragment by Unicode script ranges, with a
// static lexicon of domain words as a secondary signal. Mixed-script fragments
// get a compound label such as "Hindi + English". Empty or unrecognized text
// yields an empty label rather than a confident guess.
func DetectLanguage(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	var labels []string
	seen := map[string]bool{}
	hasLatin := false
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		if unicode.Is(unicode.Latin, r) {
			hasLatin = true
			continue
		}
		for _, s := range scriptLabels {
			if unicode.Is(s.rt, r) {
				if !seen[s.label] {
					seen[s.label] = true
				}
				break
			}
		}
	}
	for _, s := range scriptLabels {
		if seen[s.label] {
			labels = append(labels, s.label)
		}
	}

	if hasLatin {
		if len(labels) == 0 {
			// Latin-only: check the domain lexicon before calling it English.
			if lang := lexiconLanguage(text); lang != "" {
				return lang + " + English"
			}
			return "English"
		}
		labels = append(labels, "English")
	}

	return strings.Join(labels, " + ")
}

// lexiconLanguage returns a language label if any word of the text appears in
// the domain lexicon.
func lexiconLanguage(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if lang, ok := domainLexicon[w]; ok {
			return lang
		}
	}
	return ""
}
