package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("vetclinic.internal.classifier")

// HistoryLimit bounds how many prior messages reach the model.
const HistoryLimit = 10

// ErrMalformed reports a model answer that does not fit the contract.
var ErrMalformed = errors.New("classifier: malformed model output")

const systemPrompt = `Eres un clasificador de intenciones para una clínica veterinaria en Colombia.
Analiza el último mensaje del usuario, usando el historial solo como contexto.

Intenciones:
- SCHEDULE: quiere agendar, modificar o cancelar una cita
- EMERGENCY: reporta una situación de emergencia con su mascota
- QUESTION: pregunta general sobre la clínica o servicios
- CONFIRMATION: responde que sí o acepta
- REJECTION: responde que no o rechaza
- GREETING: solo saluda
- UNCLEAR: no está claro

Nivel de urgencia:
- critical: dificultad para respirar, sangrado abundante, convulsiones, pérdida de consciencia, envenenamiento, trauma severo
- high: vómito o diarrea persistente, no puede caminar, dolor intenso, abdomen hinchado, fiebre muy alta
- moderate: vómito ocasional, cojera, no quiere comer (menos de 24h), tos persistente
- low o none: vacunación, chequeo, preguntas generales

Fecha de hoy: %s.

Responde ÚNICAMENTE con un JSON válido:
{
  "intent": "SCHEDULE|EMERGENCY|QUESTION|CONFIRMATION|REJECTION|GREETING|UNCLEAR",
  "confidence": 0.0-1.0,
  "is_emergency": true/false,
  "urgency_level": "critical|high|moderate|low|none",
  "extracted_data": {
    "species": "dog|cat|other o null",
    "pet_name": "nombre o null",
    "reason": "motivo de la consulta o null",
    "preferred_date": "YYYY-MM-DD o null",
    "preferred_time": "HH:MM o null",
    "client_name": "nombre del cliente o null",
    "symptoms": ["síntomas si hay"],
    "topic": "tema de la pregunta si aplica"
  }
}`

// LLMClassifier asks a language model for a JSON classification.
type LLMClassifier struct {
	client  LLMClient
	model   string
	timeout time.Duration
	now     func() time.Time
}

// NewLLMClassifier builds a classifier over client. timeout bounds each call.
func NewLLMClassifier(client LLMClient, model string, timeout time.Duration) *LLMClassifier {
	if client == nil {
		panic("classifier: llm client cannot be nil")
	}
	return &LLMClassifier{client: client, model: model, timeout: timeout, now: time.Now}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string, history []Message) (Result, error) {
	ctx, span := tracer.Start(ctx, "classifier.llm")
	defer span.End()
	screened := Screen(text)
	if screened.Blocked {
		span.SetAttributes(attribute.StringSlice("guard.reasons", screened.Reasons))
		return Result{}, ErrSuspiciousInput
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}
	messages := make([]ChatMessage, 0, len(history)+1)
	for _, m := range history {
		role := ChatRoleUser
		if m.Role == ChatRoleAssistant {
			role = ChatRoleAssistant
		}
		messages = append(messages, ChatMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: screened.Sanitized})

	resp, err := c.client.Complete(ctx, LLMRequest{
		Model:       c.model,
		System:      []string{fmt.Sprintf(systemPrompt, c.now().Format("2006-01-02 (Monday)"))},
		Messages:    messages,
		MaxTokens:   400,
		Temperature: 0.1,
	})
	if err != nil {
		return Result{}, err
	}
	res, err := ParseResult(resp.Text)
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(attribute.String("intent", string(res.Intent)), attribute.Bool("is_emergency", res.IsEmergency))
	return res, nil
}

type wireResult struct {
	Intent      string          `json:"intent"`
	Confidence  *float64        `json:"confidence"`
	IsEmergency bool            `json:"is_emergency"`
	Urgency     string          `json:"urgency_level"`
	Data        json.RawMessage `json:"extracted_data"`
}

type wireExtracted struct {
	Species       *string  `json:"species"`
	PetType       *string  `json:"pet_type"`
	PetName       *string  `json:"pet_name"`
	Reason        *string  `json:"reason"`
	PreferredDate *string  `json:"preferred_date"`
	PreferredTime *string  `json:"preferred_time"`
	ClientName    *string  `json:"client_name"`
	Symptoms      []string `json:"symptoms"`
	Topic         *string  `json:"topic"`
}

// ParseResult decodes a model answer. Code fences and prose around the JSON
// object are tolerated; an unknown intent is not.
func ParseResult(raw string) (Result, error) {
	body := strings.TrimSpace(raw)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("%w: no json object", ErrMalformed)
	}

	var w wireResult
	if err := json.Unmarshal([]byte(body[start:end+1]), &w); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	intent, ok := ParseIntent(w.Intent)
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown intent %q", ErrMalformed, w.Intent)
	}

	res := Result{Intent: intent, Confidence: 0.5, IsEmergency: w.IsEmergency, Urgency: ParseUrgency(w.Urgency)}
	if w.Confidence != nil {
		res.Confidence = clamp01(*w.Confidence)
	}
	if intent == IntentEmergency && res.Urgency == UrgencyNone {
		res.IsEmergency = true
		res.Urgency = UrgencyHigh
	}

	if len(w.Data) > 0 && string(w.Data) != "null" {
		var d wireExtracted
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return Result{}, fmt.Errorf("%w: extracted_data: %v", ErrMalformed, err)
		}
		res.Data = Extracted{
			Species:       firstString(d.Species, d.PetType),
			PetName:       str(d.PetName),
			Reason:        str(d.Reason),
			PreferredDate: str(d.PreferredDate),
			PreferredTime: str(d.PreferredTime),
			ClientName:    str(d.ClientName),
			Symptoms:      d.Symptoms,
			Topic:         str(d.Topic),
		}
		res.Keywords = d.Symptoms
	}
	return res, nil
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	v := strings.TrimSpace(*p)
	if strings.EqualFold(v, "null") {
		return ""
	}
	return v
}

func firstString(ps ...*string) string {
	for _, p := range ps {
		if v := str(p); v != "" {
			return v
		}
	}
	return ""
}
