package followup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
)

func TestSchedulerPlansSurgeryProtocol(t *testing.T) {
	store := NewMemoryStore()
	s := NewScheduler(store, nil)
	completed := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	appt := calendar.Appointment{
		ID:          "appt-1",
		ClinicID:    "clinic-1",
		ClientPhone: "+573001112233",
		PetName:     "Luna",
		Type:        calendar.TypeSurgery,
		CompletedAt: &completed,
	}

	require.NoError(t, s.AppointmentCompleted(context.Background(), clinic.DefaultConfig("clinic-1"), appt))

	items, err := store.ListByAppointment(context.Background(), "clinic-1", "appt-1")
	require.NoError(t, err)
	require.Len(t, items, 4)
	wantHours := []int{24, 48, 72, 168}
	for i, f := range items {
		assert.Equal(t, i+1, f.Step)
		assert.Equal(t, StatusPending, f.Status)
		assert.Equal(t, completed.Add(time.Duration(wantHours[i])*time.Hour), f.DueAt)
		assert.Contains(t, f.Template, "{pet_name}")
		assert.Contains(t, f.EscalationKeywords, "fiebre")
	}
}

func TestSchedulerSkipsTypesWithoutProtocol(t *testing.T) {
	store := NewMemoryStore()
	s := NewScheduler(store, nil)
	appt := calendar.Appointment{ID: "appt-2", ClinicID: "clinic-1", Type: calendar.TypeGrooming}

	require.NoError(t, s.AppointmentCompleted(context.Background(), clinic.DefaultConfig("clinic-1"), appt))

	items, err := store.ListByAppointment(context.Background(), "clinic-1", "appt-2")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPlanReusesLastTemplate(t *testing.T) {
	protocol := clinic.FollowUpProtocol{
		Name:             "custom",
		ScheduleHours:    []int{12, 0, 36},
		MessageTemplates: []string{"uno", "dos"},
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := Plan(protocol, calendar.Appointment{ID: "a"}, now)

	require.Len(t, items, 2)
	assert.Equal(t, "uno", items[0].Template)
	assert.Equal(t, "dos", items[1].Template)
	assert.Equal(t, 3, items[1].Step)
	assert.Equal(t, now.Add(36*time.Hour), items[1].DueAt)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "¿Cómo sigue Luna?", Render("¿Cómo sigue {pet_name}?", "Luna"))
	assert.Equal(t, "¿Cómo sigue tu mascota?", Render("¿Cómo sigue {pet_name}?", " "))
}
