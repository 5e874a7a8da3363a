package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLM struct {
	text string
	err  error
	req  LLMRequest
}

func (s *stubLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.req = req
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return LLMResponse{Text: s.text}, nil
}

func TestParseResult(t *testing.T) {
	res, err := ParseResult("```json\n{\"intent\":\"schedule\",\"confidence\":0.92,\"is_emergency\":false,\"urgency_level\":\"none\",\"extracted_data\":{\"pet_type\":\"cat\",\"preferred_date\":\"2026-10-16\",\"reason\":null}}\n```")
	require.NoError(t, err)
	assert.Equal(t, IntentSchedule, res.Intent)
	assert.InDelta(t, 0.92, res.Confidence, 1e-9)
	assert.Equal(t, "cat", res.Data.Species)
	assert.Equal(t, "2026-10-16", res.Data.PreferredDate)
	assert.Empty(t, res.Data.Reason)
}

func TestParseResultEmergencyWithoutUrgency(t *testing.T) {
	res, err := ParseResult(`{"intent":"EMERGENCY","confidence":3}`)
	require.NoError(t, err)
	assert.True(t, res.Preempts())
	assert.Equal(t, 1.0, res.Confidence)
}

func TestParseResultRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"",
		"lo siento, no puedo ayudar",
		`{"intent":"BOOK_NOW"}`,
		`{"intent":"SCHEDULE","extracted_data":"perro"}`,
		`{"intent":`,
	} {
		_, err := ParseResult(raw)
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestLLMClassifierTrimsHistory(t *testing.T) {
	llm := &stubLLM{text: `{"intent":"GREETING","confidence":0.8}`}
	c := NewLLMClassifier(llm, "model-x", time.Second)
	history := make([]Message, 15)
	for i := range history {
		history[i] = Message{Role: ChatRoleUser, Content: "m"}
	}

	res, err := c.Classify(context.Background(), "hola", history)
	require.NoError(t, err)
	assert.Equal(t, IntentGreeting, res.Intent)
	assert.Len(t, llm.req.Messages, HistoryLimit+1)
	assert.Equal(t, "hola", llm.req.Messages[HistoryLimit].Content)
	assert.Equal(t, "model-x", llm.req.Model)
}

func TestSafeTurnsFailuresIntoUnclear(t *testing.T) {
	failing := NewLLMClassifier(&stubLLM{err: errors.New("throttled")}, "m", 0)
	malformed := NewLLMClassifier(&stubLLM{text: "not json"}, "m", 0)
	panicking := Func(func(context.Context, string, []Message) (Result, error) { panic("boom") })

	for name, inner := range map[string]Classifier{"error": failing, "malformed": malformed, "panic": panicking} {
		t.Run(name, func(t *testing.T) {
			res, err := NewSafe(inner, nil, nil).Classify(context.Background(), "x", nil)
			require.NoError(t, err)
			assert.Equal(t, Unclear(), res)
		})
	}
}

func TestChainFallsThroughToKeywords(t *testing.T) {
	chain := NewChain(nil, nil,
		Stage{Name: "bedrock", Classifier: NewLLMClassifier(&stubLLM{err: errors.New("down")}, "m", 0)},
		Stage{Name: "gemini", Classifier: nil},
		Stage{Name: "keyword", Classifier: NewKeywordClassifier()},
	)
	res, err := chain.Classify(context.Background(), "mi gato no respira", nil)
	require.NoError(t, err)
	assert.Equal(t, IntentEmergency, res.Intent)
	assert.Equal(t, UrgencyCritical, res.Urgency)
}

func TestFallbackLLMClient(t *testing.T) {
	primary := &stubLLM{err: errors.New("primary down")}
	fallback := &stubLLM{text: "ok"}
	resp, err := NewFallbackLLMClient(primary, fallback, nil).Complete(context.Background(), LLMRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)

	_, err = NewFallbackLLMClient(primary, nil, nil).Complete(context.Background(), LLMRequest{})
	assert.EqualError(t, err, "primary down")
}
