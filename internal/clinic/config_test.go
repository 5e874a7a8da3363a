package clinic

import (
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestIsOpenAt(t *testing.T) {
	cfg := DefaultConfig("clinic-1")
	loc := cfg.Location()

	// 2026-10-12 is a Monday.
	if !cfg.IsOpenAt(time.Date(2026, 10, 12, 10, 0, 0, 0, loc)) {
		t.Error("expected clinic to be open Monday 10:00")
	}
	if cfg.IsOpenAt(time.Date(2026, 10, 12, 7, 59, 0, 0, loc)) {
		t.Error("expected clinic to be closed before opening")
	}
	if !cfg.IsOpenAt(time.Date(2026, 10, 17, 13, 30, 0, 0, loc)) {
		t.Error("expected clinic to be open Saturday 13:30")
	}
	if cfg.IsOpenAt(time.Date(2026, 10, 17, 14, 0, 0, 0, loc)) {
		t.Error("expected clinic to be closed Saturday at 14:00")
	}
	if cfg.IsOpenAt(time.Date(2026, 10, 18, 10, 0, 0, 0, loc)) {
		t.Error("expected clinic to be closed Sunday")
	}
}

func TestSortContactsByPriority(t *testing.T) {
	contacts := []Contact{
		{Name: "sin prioridad"},
		{Name: "segundo", Priority: intPtr(2)},
		{Name: "primero", Priority: intPtr(1)},
		{Name: "también segundo", Priority: intPtr(2)},
	}
	sorted := SortContacts(contacts)
	want := []string{"primero", "segundo", "también segundo", "sin prioridad"}
	for i, name := range want {
		if sorted[i].Name != name {
			t.Fatalf("position %d: expected %q, got %q", i, name, sorted[i].Name)
		}
	}
	if contacts[0].Name != "sin prioridad" {
		t.Fatalf("SortContacts must not reorder its input")
	}
}

func TestValidateRejectsInvertedHours(t *testing.T) {
	cfg := DefaultConfig("clinic-1")
	cfg.BusinessHours.Monday = &DayHours{Open: "18:00", Close: "08:00"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for inverted hours")
	}
}

func TestValidateRejectsMismatchedProtocol(t *testing.T) {
	cfg := DefaultConfig("clinic-1")
	cfg.FollowUpProtocols = []FollowUpProtocol{{AppointmentType: "surgery", ScheduleHours: []int{24, 48}, MessageTemplates: []string{"hola"}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for protocol length mismatch")
	}
}

func TestProtocolForSkipsDisabled(t *testing.T) {
	cfg := DefaultConfig("clinic-1")
	if _, ok := cfg.ProtocolFor("surgery"); !ok {
		t.Fatal("expected default surgery protocol")
	}
	for i := range cfg.FollowUpProtocols {
		cfg.FollowUpProtocols[i].Disabled = true
	}
	if _, ok := cfg.ProtocolFor("surgery"); ok {
		t.Fatal("disabled protocol must not be returned")
	}
}
