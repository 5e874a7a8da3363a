package emergency

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresUpdateEventNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE emergency_events").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM emergency_events").
		WithArgs("clinic-1", "ev-1").
		WillReturnError(pgx.ErrNoRows)

	err = NewPostgresStore(mock).UpdateEvent(context.Background(), &Event{ID: "ev-1", ClinicID: "clinic-1", Status: StatusResolved}, StatusActive)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateEventOnlyFromExpectedStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ev := &Event{ID: "ev-1", ClinicID: "clinic-1", Status: StatusFalseAlarm}
	mock.ExpectExec("AND status = \\$9").
		WithArgs("clinic-1", "ev-1", "false_alarm", "", pgxmock.AnyArg(), "", pgxmock.AnyArg(), "", "active").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM emergency_events").
		WithArgs("clinic-1", "ev-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("resolved"))

	err = NewPostgresStore(mock).UpdateEvent(context.Background(), ev, StatusActive)
	assert.ErrorIs(t, err, ErrStatusChanged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkAlertDelivered(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE emergency_alerts SET status = 'delivered'").
		WithArgs("alert-1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewPostgresStore(mock).MarkAlertDelivered(context.Background(), "alert-1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}
