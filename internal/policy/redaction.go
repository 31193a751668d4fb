// Package policy scrubs debate messages before they reach log fields.
package policy

import (
	"regexp"
	"strings"
)

type rule struct {
	mask    string
	pattern *regexp.Regexp
}

// Card numbers are matched before phone numbers so long digit runs keep the card mask.
var rules = []rule{
	{"<email>", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"<url>", regexp.MustCompile(`https?://[^\s]+`)},
	{"<card>", regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)},
	{"<phone>", regexp.MustCompile(`\+?\d[\d\-() ]{7,}\d`)},
}

// Scrub replaces contact details in a user message with fixed masks and reports
// whether anything was replaced.
func Scrub(message string) (string, bool) {
	out := message
	for _, r := range rules {
		out = r.pattern.ReplaceAllString(out, r.mask)
	}
	return out, out != message
}

// LogExcerpt scrubs message, collapses whitespace, and keeps at most limit runes.
func LogExcerpt(message string, limit int) string {
	out, _ := Scrub(message)
	out = strings.Join(strings.Fields(out), " ")
	if limit <= 0 {
		return out
	}
	runes := []rune(out)
	if len(runes) <= limit {
		return out
	}
	return string(runes[:limit]) + "…"
}
