// Package classifier turns free text into an intent record. Every
// implementation is fallible; Safe wraps a chain so callers always get a
// usable Result.
package classifier

import (
	"context"
	"strings"
)

// Intent is the coarse purpose of a message.
type Intent string

const (
	IntentSchedule     Intent = "SCHEDULE"
	IntentEmergency    Intent = "EMERGENCY"
	IntentQuestion     Intent = "QUESTION"
	IntentConfirmation Intent = "CONFIRMATION"
	IntentRejection    Intent = "REJECTION"
	IntentGreeting     Intent = "GREETING"
	IntentUnclear      Intent = "UNCLEAR"
)

// ParseIntent accepts any casing; unknown values are rejected.
func ParseIntent(v string) (Intent, bool) {
	switch i := Intent(strings.ToUpper(strings.TrimSpace(v))); i {
	case IntentSchedule, IntentEmergency, IntentQuestion, IntentConfirmation,
		IntentRejection, IntentGreeting, IntentUnclear:
		return i, true
	}
	return "", false
}

// Urgency grades an emergency.
type Urgency string

const (
	UrgencyNone     Urgency = "none"
	UrgencyLow      Urgency = "low"
	UrgencyModerate Urgency = "moderate"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// ParseUrgency maps unknown values to none.
func ParseUrgency(v string) Urgency {
	switch u := Urgency(strings.ToLower(strings.TrimSpace(v))); u {
	case UrgencyLow, UrgencyModerate, UrgencyHigh, UrgencyCritical:
		return u
	}
	return UrgencyNone
}

// Severe reports whether the urgency preempts the normal flow.
func (u Urgency) Severe() bool {
	return u == UrgencyHigh || u == UrgencyCritical
}

// Extracted carries the structured bits a classifier pulled out.
type Extracted struct {
	Species       string   `json:"species,omitempty"`
	PetName       string   `json:"pet_name,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	PreferredDate string   `json:"preferred_date,omitempty"`
	PreferredTime string   `json:"preferred_time,omitempty"`
	ClientName    string   `json:"client_name,omitempty"`
	Symptoms      []string `json:"symptoms,omitempty"`
	Topic         string   `json:"topic,omitempty"`
}

// Result is the classifier contract.
type Result struct {
	Intent      Intent    `json:"intent"`
	Confidence  float64   `json:"confidence"`
	IsEmergency bool      `json:"is_emergency"`
	Urgency     Urgency   `json:"urgency_level"`
	Keywords    []string  `json:"keywords,omitempty"`
	Data        Extracted `json:"extracted_data"`
}

// Preempts reports whether the result forces the emergency flow.
func (r Result) Preempts() bool {
	return r.IsEmergency && r.Urgency.Severe()
}

// Unclear is the result used whenever classification fails.
func Unclear() Result {
	return Result{Intent: IntentUnclear, Confidence: 0.5, Urgency: UrgencyNone}
}

// Message is one history entry, oldest first.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Classifier labels a message given recent history.
type Classifier interface {
	Classify(ctx context.Context, text string, history []Message) (Result, error)
}

// Func adapts a function to Classifier.
type Func func(ctx context.Context, text string, history []Message) (Result, error)

func (f Func) Classify(ctx context.Context, text string, history []Message) (Result, error) {
	return f(ctx, text, history)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
