package classifier

import (
	"errors"
	"regexp"
	"strings"
)

// ErrSuspiciousInput is returned instead of calling the model when the
// message looks like an attempt to steer it.
var ErrSuspiciousInput = errors.New("classifier: suspicious input withheld from model")

const guardBlockScore = 0.7

type guardPattern struct {
	re     *regexp.Regexp
	reason string
	weight float64
}

var guardPatterns = []guardPattern{
	{regexp.MustCompile(`(?i)(ignora|olvida|descarta)\s+(todas\s+)?(las\s+)?(tus\s+)?(instrucciones|reglas|indicaciones)(\s+anteriores|\s+previas)?`), "override:es", 0.9},
	{regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|rules?|prompts?)`), "override:en", 0.9},
	{regexp.MustCompile(`(?i)(ahora\s+eres|act[uú]a\s+como|you\s+are\s+now)\s+(un|una|a|an|my|mi)\s+`), "role_reassignment", 0.7},
	{regexp.MustCompile(`(?i)(muestra|revela|dime|repite|reveal|show|print)\s+(tu|tus|el|your)?\s*(prompt|instrucciones|system\s+prompt|mensaje\s+del\s+sistema)`), "exfiltration", 0.8},
	{regexp.MustCompile(`(?i)jailbreak|modo\s+desarrollador|developer\s+mode|DAN\s+mode`), "jailbreak", 0.9},
	{regexp.MustCompile(`(?i)responde\s+(siempre|solo)\s+(con\s+)?"?intent"?|"intent"\s*:\s*"EMERGENCY"`), "forced_label", 0.8},
}

// Special tokens and role markers some models treat as structure.
var strippedMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|(system|user|assistant)\|>`),
	regexp.MustCompile(`(?i)###\s*(system|sistema|instruction|assistant|asistente|user|usuario)\s*:`),
	regexp.MustCompile(`<\s*(script|iframe|object|embed|style|svg)\b[^>]*>`),
}

// GuardResult is the outcome of screening a message before it reaches a model.
type GuardResult struct {
	Blocked   bool
	Score     float64
	Reasons   []string
	Sanitized string
}

// Screen scores text against known injection phrasings. The strongest
// signal sets the score and each extra signal adds 0.1, capped at 1.
func Screen(text string) GuardResult {
	res := GuardResult{Sanitized: text}
	if strings.TrimSpace(text) == "" {
		return res
	}
	for _, p := range guardPatterns {
		if !p.re.MatchString(text) {
			continue
		}
		res.Reasons = append(res.Reasons, p.reason)
		if p.weight > res.Score {
			res.Score = p.weight
		}
	}
	if n := len(res.Reasons); n > 1 {
		res.Score = min(1, res.Score+float64(n-1)*0.1)
	}
	res.Blocked = res.Score >= guardBlockScore
	cleaned := text
	for _, re := range strippedMarkers {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	res.Sanitized = strings.TrimSpace(cleaned)
	return res
}
