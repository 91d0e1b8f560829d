package pattern

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	separatorRE = regexp.MustCompile(`[-_.\s]+`)
	ordinalRE   = regexp.MustCompile(`(?i)(\d)(st|nd|rd|th)\b`)
	spaceRE     = regexp.MustCompile(`\s+`)
)

// titleCase upper-cases the first letter of every word. A Caser keeps state,
// so one is built per call.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func trimValue(s string) string {
	return strings.TrimSpace(s)
}

// NormalizePerson turns "@john.doe" into "John Doe".
func NormalizePerson(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "@")
	s = strings.TrimSpace(separatorRE.ReplaceAllString(s, " "))
	return titleCase(s)
}

// NormalizeSystem turns "auth-service" into "Auth Service".
func NormalizeSystem(s string) string {
	s = strings.TrimSpace(separatorRE.ReplaceAllString(strings.TrimSpace(s), " "))
	return titleCase(s)
}

// NormalizeVersion strips a leading "v" from a version string.
func NormalizeVersion(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 1 && (s[0] == 'v' || s[0] == 'V') {
		return s[1:]
	}
	return s
}

// NormalizeReference cleans the object of depends_on/blocks.
func NormalizeReference(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "@")
	return strings.TrimRight(s, ".,;:!?")
}

var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"1/2/06",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
}

// NormalizeDate parses a date-like value into ISO form (2006-01-02). Values
// that do not parse, including month/day without a year, are returned as is.
func NormalizeDate(s string) string {
	raw := strings.TrimSpace(s)
	clean := ordinalRE.ReplaceAllString(raw, "$1")
	clean = strings.Replace(clean, ".", "", 1)
	clean = spaceRE.ReplaceAllString(clean, " ")
	clean = titleCase(clean)
	if strings.HasPrefix(clean, "Sept ") {
		clean = "Sep " + strings.TrimPrefix(clean, "Sept ")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, clean); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return raw
}
