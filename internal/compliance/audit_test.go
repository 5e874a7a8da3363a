package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_LogEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)
	event := NewEvent(EventEmergencyFalseAlarm, "clinic-1", "ev-1", "staff@clinic", AuditDetails{Notes: "solo ladraba"})

	mock.ExpectExec("INSERT INTO compliance_audit_events").
		WithArgs(sqlmock.AnyArg(), EventEmergencyFalseAlarm, "clinic-1", nil, "ev-1", "staff@clinic",
			[]byte(`{"notes":"solo ladraba"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, service.LogEvent(context.Background(), event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_LogEventError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO compliance_audit_events").WillReturnError(errors.New("connection refused"))

	err = NewAuditService(db).LogEvent(context.Background(), AuditEvent{EventType: EventAccessCleared, ClinicID: "clinic-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to log audit event")
}

func TestAuditService_QueryEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "event_type", "clinic_id", "conversation_id", "subject_id", "actor", "details", "created_at"}).
		AddRow("a-1", EventAccessRevoked, "clinic-1", nil, "client-9", nil, []byte(`{"threshold":2}`), now)

	mock.ExpectQuery("SELECT (.+) FROM compliance_audit_events WHERE clinic_id").
		WithArgs("clinic-1", "client-9").
		WillReturnRows(rows)

	events, err := NewAuditService(db).QueryEvents(context.Background(), AuditFilter{ClinicID: "clinic-1", SubjectID: "client-9", Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventAccessRevoked, events[0].EventType)
	assert.Empty(t, events[0].Actor)
	assert.JSONEq(t, `{"threshold":2}`, string(events[0].Details))
	require.NoError(t, mock.ExpectationsWereMet())
}
