package scheduling

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
)

// MaxOffered is the largest offer list the matcher and negotiator work with.
const MaxOffered = 5

var (
	clockPattern  = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	optionPattern = regexp.MustCompile(`\b(?:opcion|option|numero|number)\s*(\d)\b`)
	listPattern   = regexp.MustCompile(`(\ba\s+)?\bla\s+(\d)\b`)
	datePattern   = regexp.MustCompile(`\d{1,2}/\d{1,2}(?:/\d{2,4})?`)
	numberPattern = regexp.MustCompile(`\d+`)
)

var ordinalWords = map[string]int{
	"primera": 0, "primero": 0, "primer": 0, "first": 0, "1st": 0, "1ra": 0, "1era": 0,
	"segunda": 1, "segundo": 1, "second": 1, "2nd": 1, "2da": 1,
	"tercera": 2, "tercero": 2, "tercer": 2, "third": 2, "3rd": 2, "3ra": 2,
	"cuarta": 3, "cuarto": 3, "fourth": 3, "4th": 3,
	"quinta": 4, "quinto": 4, "fifth": 4, "5th": 4,
}

// cardinalWords name a list position ("la dos") unless they follow "las",
// where they are a clock time ("a las dos").
var cardinalWords = map[string]int{
	"uno": 0, "dos": 1, "tres": 2, "cuatro": 3, "cinco": 4,
}

// MatchSlot picks the offered slot the text refers to. When nothing
// matches the caller must re-prompt with the same list rather than guess.
func MatchSlot(text string, offered []calendar.TimeSlot) (calendar.TimeSlot, bool) {
	idx := MatchIndex(text, offered)
	if idx < 0 {
		return calendar.TimeSlot{}, false
	}
	return offered[idx], true
}

// MatchIndex returns the index of the matched slot or -1. Rules run in
// order and the first rule with any hit wins:
//
//  1. an HH:MM token found in a slot's start
//  2. a number equal to a slot's hour, in 24h or 12h form
//  3. an ordinal or cardinal word, "opción N", "la N" or a lone number 1..N
//
// Within a rule, slots are checked in offer order.
func MatchIndex(text string, offered []calendar.TimeSlot) int {
	if len(offered) == 0 {
		return -1
	}
	if len(offered) > MaxOffered {
		offered = offered[:MaxOffered]
	}
	folded := Fold(text)
	if folded == "" {
		return -1
	}

	for _, m := range clockPattern.FindAllStringSubmatch(folded, -1) {
		h, _ := strconv.Atoi(m[1])
		token := fmt.Sprintf("%02d:%s", h, m[2])
		for i, slot := range offered {
			if strings.Contains(slot.Start, token) {
				return i
			}
		}
	}

	// Numbers that belong to clocks, dates or list references are not hours.
	rest := clockPattern.ReplaceAllString(folded, " ")
	rest = datePattern.ReplaceAllString(rest, " ")
	rest, position := listReferences(rest)
	hours := map[int]bool{}
	for _, n := range numberPattern.FindAllString(rest, -1) {
		if v, err := strconv.Atoi(n); err == nil {
			hours[v] = true
		}
	}
	if len(hours) > 0 {
		for i, slot := range offered {
			h, _, err := slot.StartClock()
			if err != nil {
				continue
			}
			h12 := h % 12
			if h12 == 0 {
				h12 = 12
			}
			if hours[h] || hours[h12] {
				return i
			}
		}
	}

	if position >= 1 && position <= len(offered) {
		return position - 1
	}
	tokens := words(folded)
	for i, w := range tokens {
		if idx, ok := ordinalWords[w]; ok && idx < len(offered) {
			return idx
		}
		if idx, ok := cardinalWords[w]; ok && idx < len(offered) && (i == 0 || tokens[i-1] != "las") {
			return idx
		}
	}
	if len(tokens) == 1 {
		if n, err := strconv.Atoi(tokens[0]); err == nil && n >= 1 && n <= len(offered) {
			return n - 1
		}
	}
	return -1
}

// listReferences blanks "opción N" and "la N" out of folded and returns the
// first N. "a la N" is a clock time and is left alone.
func listReferences(folded string) (string, int) {
	first := 0
	note := func(digit string) {
		if n, err := strconv.Atoi(digit); err == nil && first == 0 {
			first = n
		}
	}
	out := optionPattern.ReplaceAllStringFunc(folded, func(m string) string {
		note(optionPattern.FindStringSubmatch(m)[1])
		return " "
	})
	out = listPattern.ReplaceAllStringFunc(out, func(m string) string {
		sub := listPattern.FindStringSubmatch(m)
		if sub[1] != "" {
			return m
		}
		note(sub[2])
		return " "
	})
	return out, first
}
