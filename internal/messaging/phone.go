package messaging

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), whatsAppPrefix))
	if value == "" {
		return ""
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// SplitAddress strips a Twilio "whatsapp:" prefix and reports which delivery
// channel the address belongs to.
func SplitAddress(addr string) (phone, channel string) {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(strings.ToLower(addr), whatsAppPrefix) {
		return NormalizeE164(addr[len(whatsAppPrefix):]), ChannelWhatsApp
	}
	return NormalizeE164(addr), ChannelSMS
}

func sanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	return strings.Join(phoneDigitsRe.FindAllString(value, -1), "")
}
