package scheduling

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDatePattern  = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	fullDatePattern = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`)
	dayMonthPattern = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})\b`)
)

var weekdayWords = map[string]time.Weekday{
	"domingo": time.Sunday, "sunday": time.Sunday,
	"lunes": time.Monday, "monday": time.Monday,
	"martes": time.Tuesday, "tuesday": time.Tuesday,
	"miercoles": time.Wednesday, "wednesday": time.Wednesday,
	"jueves": time.Thursday, "thursday": time.Thursday,
	"viernes": time.Friday, "friday": time.Friday,
	"sabado": time.Saturday, "saturday": time.Saturday,
}

// ParseDate resolves an absolute or relative date phrase against today,
// which should already be in the clinic's timezone. Dates before today are
// rejected so a stale "12/03" never books into the past.
func ParseDate(text string, today time.Time) (time.Time, bool) {
	folded := Fold(text)
	if folded == "" {
		return time.Time{}, false
	}
	day := startOfDay(today)

	d, ok := parseDatePhrase(folded, day)
	if !ok || d.Before(day) {
		return time.Time{}, false
	}
	return d, true
}

func parseDatePhrase(folded string, day time.Time) (time.Time, bool) {
	loc := day.Location()

	if m := isoDatePattern.FindStringSubmatch(folded); m != nil {
		if d, ok := makeDate(m[1], m[2], m[3], loc); ok {
			return d, true
		}
	}

	switch {
	case strings.Contains(folded, "pasado manana"), strings.Contains(folded, "day after tomorrow"):
		return day.AddDate(0, 0, 2), true
	case containsWord(folded, "hoy"), containsWord(folded, "today"):
		return day, true
	case containsWord(folded, "tomorrow"), mentionsTomorrow(folded):
		return day.AddDate(0, 0, 1), true
	}

	for _, w := range words(folded) {
		if wd, ok := weekdayWords[w]; ok {
			diff := (int(wd) - int(day.Weekday()) + 7) % 7
			if diff == 0 {
				diff = 7
			}
			return day.AddDate(0, 0, diff), true
		}
	}

	if m := fullDatePattern.FindStringSubmatch(folded); m != nil {
		if d, ok := makeDate(m[3], m[2], m[1], loc); ok {
			return d, true
		}
	}
	if m := dayMonthPattern.FindStringSubmatch(folded); m != nil {
		if d, ok := makeDate(strconv.Itoa(day.Year()), m[2], m[1], loc); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// "mañana" alone means tomorrow but "por la mañana" is a time of day.
func mentionsTomorrow(folded string) bool {
	tokens := words(folded)
	for i, w := range tokens {
		if w != "manana" {
			continue
		}
		if i > 0 && (tokens[i-1] == "la" || tokens[i-1] == "esta") {
			continue
		}
		return true
	}
	return false
}

func makeDate(y, m, d string, loc *time.Location) (time.Time, bool) {
	year, err1 := strconv.Atoi(y)
	month, err2 := strconv.Atoi(m)
	dom, err3 := strconv.Atoi(d)
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 || dom < 1 || dom > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), dom, 0, 0, 0, 0, loc)
	// time.Date normalizes 31/02 into March; treat that as invalid.
	if t.Day() != dom {
		return time.Time{}, false
	}
	return t, true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FormatDate is the storage form of a preferred date.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// MentionsDate reports whether text carries a date expression ParseDate
// would understand, without judging whether it is in the past.
func MentionsDate(text string) bool {
	folded := Fold(text)
	if folded == "" {
		return false
	}
	_, ok := parseDatePhrase(folded, startOfDay(time.Now()))
	return ok
}
