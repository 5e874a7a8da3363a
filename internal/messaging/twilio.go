package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ValidateTwilioSignature validates that a request came from Twilio.
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}

	if err := r.ParseForm(); err != nil {
		return false
	}

	payload := buildSignaturePayload(webhookURL, r.PostForm)

	expected := computeSignature(payload, authToken)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// buildSignaturePayload creates the payload string for signature verification
func buildSignaturePayload(url string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(url)

	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}

	return payload.String()
}

// computeSignature computes the HMAC-SHA1 signature
func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// TwilioWebhookRequest represents an incoming Twilio webhook. Messaging,
// voice and status callbacks share one form shape.
type TwilioWebhookRequest struct {
	MessageSid    string
	CallSid       string
	AccountSid    string
	From          string
	To            string
	Body          string
	NumMedia      string
	SpeechResult  string
	Confidence    float64
	RecordingURL  string
	MessageStatus string
	ErrorCode     string
}

// ParseTwilioWebhook parses a Twilio webhook request.
func ParseTwilioWebhook(r *http.Request) (*TwilioWebhookRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse form: %w", err)
	}

	req := &TwilioWebhookRequest{
		MessageSid:    r.FormValue("MessageSid"),
		CallSid:       r.FormValue("CallSid"),
		AccountSid:    r.FormValue("AccountSid"),
		From:          r.FormValue("From"),
		To:            r.FormValue("To"),
		Body:          r.FormValue("Body"),
		NumMedia:      r.FormValue("NumMedia"),
		SpeechResult:  strings.TrimSpace(r.FormValue("SpeechResult")),
		RecordingURL:  r.FormValue("RecordingUrl"),
		MessageStatus: strings.ToLower(r.FormValue("MessageStatus")),
		ErrorCode:     r.FormValue("ErrorCode"),
	}
	if raw := r.FormValue("Confidence"); raw != "" {
		if c, err := strconv.ParseFloat(raw, 64); err == nil {
			req.Confidence = c
		}
	}

	return req, nil
}

// buildAbsoluteURL reconstructs the public URL Twilio signed, honoring proxy headers.
func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
