package archive

import (
	"crypto/sha256"
	"fmt"
	"regexp"
)

var (
	emailRe    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// +57 mobiles and landlines, with or without the country code and separators.
	phoneRe    = regexp.MustCompile(`(\+?\d{1,3}[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`)
	// Colombian identity documents: "CC 80123456", "cédula es 1.020.304.050".
	documentRe = regexp.MustCompile(`(?i)\b(?:c\.?c\.?|c[eé]dula|documento)(?:\s+es)?[\s:#.]*\d[\d.]{5,12}\d`)
)

// HashPhone returns the hex-encoded SHA-256 hash of a phone number.
func HashPhone(phone string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(phone)))
}

// ScrubPII replaces identity documents with [DOCUMENTO], emails with
// [EMAIL] and phone numbers with [PHONE]. Pet and client names stay.
func ScrubPII(text string) string {
	text = documentRe.ReplaceAllString(text, "[DOCUMENTO]")
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	return phoneRe.ReplaceAllString(text, "[PHONE]")
}

func scrubMessages(msgs []Message) {
	for i := range msgs {
		msgs[i].Content = ScrubPII(msgs[i].Content)
	}
}
