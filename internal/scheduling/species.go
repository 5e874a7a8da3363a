package scheduling

// Canonical species values stored on scheduling state and appointments.
const (
	SpeciesDog   = "dog"
	SpeciesCat   = "cat"
	SpeciesOther = "other"
)

var speciesWords = map[string]string{
	"perro": SpeciesDog, "perra": SpeciesDog, "perrito": SpeciesDog, "perrita": SpeciesDog,
	"cachorro": SpeciesDog, "cachorra": SpeciesDog, "canino": SpeciesDog, "dog": SpeciesDog, "puppy": SpeciesDog,
	"gato": SpeciesCat, "gata": SpeciesCat, "gatito": SpeciesCat, "gatita": SpeciesCat,
	"felino": SpeciesCat, "cat": SpeciesCat, "kitten": SpeciesCat,
	"conejo": SpeciesOther, "hamster": SpeciesOther, "ave": SpeciesOther, "pajaro": SpeciesOther,
	"loro": SpeciesOther, "tortuga": SpeciesOther, "pez": SpeciesOther, "huron": SpeciesOther,
	"otro": SpeciesOther, "otra": SpeciesOther, "other": SpeciesOther,
}

// DetectSpecies finds the first species word in text.
func DetectSpecies(text string) (string, bool) {
	for _, w := range words(Fold(text)) {
		if s, ok := speciesWords[w]; ok {
			return s, true
		}
	}
	return "", false
}

// CanonicalSpecies maps a species label from any source to dog, cat or
// other. Empty input stays empty.
func CanonicalSpecies(v string) string {
	if Fold(v) == "" {
		return ""
	}
	if s, ok := DetectSpecies(v); ok {
		return s
	}
	return SpeciesOther
}

// SpeciesLabel is the Spanish word used in replies.
func SpeciesLabel(species string) string {
	switch species {
	case SpeciesDog:
		return "perro"
	case SpeciesCat:
		return "gato"
	default:
		return "mascota"
	}
}
