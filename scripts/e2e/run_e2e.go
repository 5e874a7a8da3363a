// Package main drives scripted conversations against a running API through
// the webchat HTTP endpoint and reports which scenarios behaved.
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 CLINIC_ID=clinic-1 go run scripts/e2e/run_e2e.go
//	API_BASE_URL=... go run scripts/e2e/run_e2e.go booking   # runs one
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"
)

type reply struct {
	SessionID       string `json:"session_id"`
	Reply           string `json:"reply"`
	State           string `json:"state"`
	EndConversation bool   `json:"end_conversation"`
}

type session struct {
	client   *http.Client
	base     string
	clinicID string
	phone    string
	id       string
}

func (s *session) say(text string) (reply, error) {
	body, _ := json.Marshal(map[string]string{
		"clinic_id":  s.clinicID,
		"phone":      s.phone,
		"session_id": s.id,
		"text":       text,
	})
	resp, err := s.client.Post(s.base+"/webchat/message", "application/json", bytes.NewReader(body))
	if err != nil {
		return reply{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return reply{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	var out reply
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return reply{}, err
	}
	s.id = out.SessionID
	fmt.Printf("    > %s\n    < [%s] %s\n", text, out.State, out.Reply)
	return out, nil
}

// step is one client message and the states the conversation may land in.
type step struct {
	say    string
	states []string
}

type scenario struct {
	name  string
	steps []step
}

var scenarios = []scenario{
	{name: "greeting", steps: []step{
		{say: "hola", states: []string{"GREETING", "INTENT_DETECTION"}},
	}},
	{name: "booking", steps: []step{
		{say: "hola", states: []string{"GREETING", "INTENT_DETECTION"}},
		{say: "quiero una cita para vacunar a mi perro Max", states: []string{"ASK_REASON", "OFFER_SLOTS", "AWAIT_SELECTION"}},
		{say: "la primera", states: []string{"CONFIRM_BOOKING", "AWAIT_SELECTION", "COMPLETED"}},
	}},
	{name: "emergency", steps: []step{
		{say: "mi gato está convulsionando y no respira bien", states: []string{"CONFIRM_EMERGENCY", "ESCALATE"}},
		{say: "sí, es una emergencia", states: []string{"ESCALATE", "COMPLETED"}},
	}},
	{name: "cancel-emergency", steps: []step{
		{say: "mi perro sangra mucho", states: []string{"CONFIRM_EMERGENCY", "ESCALATE"}},
		{say: "no, ya está mejor", states: []string{"INTENT_DETECTION", "COMPLETED", "CLOSED"}},
	}},
}

func run(base, clinicID string, sc scenario) bool {
	s := &session{
		client:   &http.Client{Timeout: 30 * time.Second},
		base:     base,
		clinicID: clinicID,
		// A fresh number per scenario keeps conversations apart.
		phone: fmt.Sprintf("+57300%07d", rand.Intn(10_000_000)),
	}
	fmt.Printf("== %s (%s)\n", sc.name, s.phone)
	for _, st := range sc.steps {
		out, err := s.say(st.say)
		if err != nil {
			fmt.Printf("    FAIL: %v\n", err)
			return false
		}
		if strings.TrimSpace(out.Reply) == "" {
			fmt.Println("    FAIL: empty reply")
			return false
		}
		if !contains(st.states, out.State) {
			fmt.Printf("    FAIL: state %s, want one of %v\n", out.State, st.states)
			return false
		}
	}
	fmt.Println("    PASS")
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func main() {
	base := strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if base == "" {
		base = "http://localhost:8080"
	}
	clinicID := os.Getenv("CLINIC_ID")
	if clinicID == "" {
		clinicID = "clinic-1"
	}
	only := ""
	if len(os.Args) > 1 {
		only = os.Args[1]
	}

	failed := 0
	for _, sc := range scenarios {
		if only != "" && sc.name != only {
			continue
		}
		if !run(base, clinicID, sc) {
			failed++
		}
	}
	if failed > 0 {
		fmt.Printf("%d scenario(s) failed\n", failed)
		os.Exit(1)
	}
}
