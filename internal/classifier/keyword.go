package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfman30/vetclinic-ai-platform/internal/scheduling"
)

// Keyword lists are matched on accent-folded whole words or phrases.
var (
	emergencyHigh = []string{
		"veneno", "envenenado", "envenenada", "envenenamiento",
		"atropellado", "atropellada", "atropello", "carro", "coche",
		"no respira", "no puede respirar", "asfixia", "ahogando", "ahogandose",
		"convulsion", "convulsiones", "convulsionando",
		"sangre", "sangrando", "hemorragia", "sangrado",
		"no se mueve", "inconsciente", "desmayado", "desmayada", "desmayo",
		"parto", "dando a luz", "no puede parir", "pariendo",
		"mordido", "mordida", "mordedura", "pelea", "peleo",
	}
	emergencyMedium = []string{
		"urgente", "emergencia", "ayuda", "socorro",
		"muy mal", "grave", "critico", "muriendo",
		"vomitando sangre", "diarrea con sangre",
		"hinchado", "hinchada", "inflamado", "inflamada", "hinchazon",
		"no come", "no quiere comer", "dejo de comer",
		"temblando", "tiembla",
	}
	schedulingWords = []string{
		"cita", "citas", "agendar", "agenda", "programar", "reservar",
		"consulta", "turno", "disponibilidad", "horario", "horarios",
		"atender", "atencion", "ver al doctor", "ver al veterinario",
		"llevar a mi", "traer a mi", "revisar a", "vacuna", "vacunas", "vacunar",
		"desparasitar", "chequeo", "control",
	}
	greetingWords = []string{
		"hola", "buenos dias", "buenas tardes", "buenas noches",
		"buen dia", "hey", "hi", "saludos",
	}
	confirmationWords = []string{
		"si", "confirmo", "correcto", "ok", "okay", "vale",
		"de acuerdo", "acepto", "esta bien", "perfecto", "listo",
		"claro", "por supuesto", "afirmativo", "yes", "dale",
	}
	rejectionWords = []string{
		"no", "nop", "nel", "cancelar", "cancela", "no quiero",
		"mejor no", "cambiar", "otra", "otro", "diferente",
	}
)

var (
	petNamePattern  = regexp.MustCompile(`(?:se llama|llamad[oa]|su nombre es)\s+([a-z]+)`)
	clockPattern    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	atHourPattern   = regexp.MustCompile(`\ba las (\d{1,2})\b(?:\s*(am|pm|de la tarde|de la noche))?`)
	petNameStopList = map[string]bool{"el": true, "la": true, "mi": true, "asi": true}
)

// KeywordClassifier is the offline classifier. It never fails and needs no
// network, which makes it the last link of the chain.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the keyword classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify applies, in order: emergency keywords, short yes/no replies,
// scheduling keywords, questions and greetings.
func (k *KeywordClassifier) Classify(_ context.Context, text string, _ []Message) (Result, error) {
	folded := scheduling.Fold(text)
	padded := " " + strings.Join(wordsOf(folded), " ") + " "
	data := Extract(text)

	high := matchAll(padded, emergencyHigh)
	medium := matchAll(padded, emergencyMedium)
	keywords := append(append([]string{}, high...), medium...)
	data.Symptoms = keywords

	switch {
	case len(high) > 0:
		return Result{Intent: IntentEmergency, Confidence: 0.9, IsEmergency: true, Urgency: UrgencyCritical, Keywords: keywords, Data: data}, nil
	case len(medium) >= 2, len(medium) == 1 && strings.Contains(text, "!"):
		return Result{Intent: IntentEmergency, Confidence: 0.7, IsEmergency: true, Urgency: UrgencyHigh, Keywords: keywords, Data: data}, nil
	}

	base := Result{Urgency: UrgencyNone, Keywords: keywords, Data: data}
	if len(medium) == 1 {
		base.Urgency = UrgencyModerate
	}

	if len(wordsOf(folded)) <= 3 {
		if folded == "no" || strings.HasPrefix(padded, " no ") {
			return with(base, IntentRejection, 0.9), nil
		}
		if len(matchAll(padded, confirmationWords)) > 0 {
			return with(base, IntentConfirmation, 0.9), nil
		}
		if len(matchAll(padded, rejectionWords)) > 0 {
			return with(base, IntentRejection, 0.8), nil
		}
	}

	if n := len(matchAll(padded, schedulingWords)); n > 0 {
		conf := 0.5 + 0.15*float64(n)
		if conf > 0.95 {
			conf = 0.95
		}
		return with(base, IntentSchedule, conf), nil
	}

	if strings.Contains(text, "?") || strings.Contains(text, "¿") {
		return with(base, IntentQuestion, 0.6), nil
	}

	if len(matchAll(padded, greetingWords)) > 0 && len(wordsOf(folded)) <= 2 {
		return with(base, IntentGreeting, 0.9), nil
	}

	return with(base, IntentUnclear, 0.3), nil
}

func with(r Result, intent Intent, confidence float64) Result {
	r.Intent = intent
	r.Confidence = confidence
	return r
}

// Extract pulls species, pet name, date and time hints from text.
func Extract(text string) Extracted {
	folded := scheduling.Fold(text)
	var e Extracted
	if s, ok := scheduling.DetectSpecies(text); ok {
		e.Species = s
	}
	if m := petNamePattern.FindStringSubmatch(folded); m != nil && !petNameStopList[m[1]] {
		e.PetName = capitalize(petNameFromOriginal(text, m[1]))
	}
	if scheduling.MentionsDate(text) {
		e.PreferredDate = strings.TrimSpace(text)
	}
	e.PreferredTime = extractTime(folded)
	return e
}

func extractTime(folded string) string {
	if m := clockPattern.FindStringSubmatch(folded); m != nil {
		h, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("%02d:%s", h, m[2])
	}
	if m := atHourPattern.FindStringSubmatch(folded); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h < 12 && m[2] != "" && m[2] != "am" {
			h += 12
		}
		if h > 23 {
			return ""
		}
		return fmt.Sprintf("%02d:00", h)
	}
	return ""
}

// petNameFromOriginal keeps the caller's spelling (accents) of the name.
func petNameFromOriginal(text, folded string) string {
	for _, w := range strings.Fields(text) {
		w = strings.Trim(w, ".,;:!?¡¿\"'")
		if scheduling.Fold(w) == folded {
			return w
		}
	}
	return folded
}

func capitalize(v string) string {
	r := []rune(strings.ToLower(v))
	if len(r) == 0 {
		return v
	}
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

func wordsOf(folded string) []string {
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func matchAll(padded string, list []string) []string {
	var out []string
	for _, kw := range list {
		if strings.Contains(padded, " "+kw+" ") {
			out = append(out, kw)
		}
	}
	return out
}
