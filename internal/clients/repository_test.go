package clients

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetOrCreateIsKeyedByClinicAndPhone(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	a, err := repo.GetOrCreate(ctx, "clinic-1", "+573001112233", "")
	require.NoError(t, err)
	b, err := repo.GetOrCreate(ctx, "clinic-1", "+573001112233", "Ana")
	require.NoError(t, err)
	other, err := repo.GetOrCreate(ctx, "clinic-2", "+573001112233", "")
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "Ana", b.Name)
	assert.NotEqual(t, a.ID, other.ID)

	_, err = repo.Get(ctx, "clinic-2", a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryFalseAlarmRevokesAtThreshold(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	c, _ := repo.GetOrCreate(ctx, "clinic-1", "+57300", "")

	c, err := repo.IncrementFalseEmergency(ctx, "clinic-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.FalseEmergencyCount)
	assert.False(t, c.AccessRevoked)

	c, _ = repo.RecordFalseAlarm(ctx, "clinic-1", c.ID, 2)
	assert.False(t, c.AccessRevoked)
	c, _ = repo.RecordFalseAlarm(ctx, "clinic-1", c.ID, 2)
	assert.True(t, c.AccessRevoked)
	assert.Equal(t, 2, c.FalseAlarmCount)
	assert.Equal(t, 3, c.FalseEmergencyCount)

	c, err = repo.ClearAccess(ctx, "clinic-1", c.ID)
	require.NoError(t, err)
	assert.False(t, c.AccessRevoked)
	assert.Zero(t, c.FalseAlarmCount)
	assert.Equal(t, 3, c.FalseEmergencyCount)
}

func TestPostgresRecordFalseAlarm(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("UPDATE clients SET").
		WithArgs("clinic-1", "c-1", 2).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "clinic_id", "phone", "name", "false_emergency_count", "false_alarm_count",
			"emergency_access_revoked", "created_at", "updated_at",
		}).AddRow("c-1", "clinic-1", "+57300", "", 2, 2, true, now, now))

	c, err := NewPostgresRepository(mock).RecordFalseAlarm(context.Background(), "clinic-1", "c-1", 2)
	require.NoError(t, err)
	assert.True(t, c.AccessRevoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM clients").
		WithArgs("clinic-1", "missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = NewPostgresRepository(mock).Get(context.Background(), "clinic-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
