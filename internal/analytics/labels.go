package analytics

import (
	"strconv"
	"time"

	"golang.org/x/text/language"
)

var labelLocales = []language.Tag{language.Spanish, language.English}

var labelMatcher = language.NewMatcher(labelLocales)

var monthAbbreviations = [][12]string{
	{"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sept", "oct", "nov", "dic"},
	{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
}

// MonthLabeler renders short month names for trend labels.
type MonthLabeler struct {
	names [12]string
}

// NewMonthLabeler picks the closest supported locale for a BCP 47 tag such as "es-CO".
// Unknown or empty tags fall back to Spanish.
func NewMonthLabeler(locale string) MonthLabeler {
	idx := 0
	if tag, err := language.Parse(locale); err == nil {
		if _, i, conf := labelMatcher.Match(tag); conf != language.No {
			idx = i
		}
	}
	return MonthLabeler{names: monthAbbreviations[idx]}
}

// Label formats t as "<month> <year>".
func (l MonthLabeler) Label(t time.Time) string {
	names := l.names
	if names[0] == "" {
		names = monthAbbreviations[0]
	}
	return names[t.Month()-1] + " " + strconv.Itoa(t.Year())
}
