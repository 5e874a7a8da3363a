package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConversationID = "6a2f41a0-8d5c-4c1e-9a4b-2f0e8c7d1b35"

func TestPostgresGetRejectsMalformedID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresStore(mock).Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateMissingRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE conversations").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	conv := &Conversation{ID: testConversationID, State: StateAskReason, Status: StatusActive}
	err = NewPostgresStore(mock).Update(context.Background(), conv)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindTurn(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("LEFT JOIN conversation_messages r").
		WithArgs("clinic-1", "SM1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "state", "content"}).
			AddRow(testConversationID, "OFFER_SLOTS", "Tengo disponibilidad"))
	mock.ExpectQuery("LEFT JOIN conversation_messages r").
		WithArgs("clinic-1", "SM2").
		WillReturnError(pgx.ErrNoRows)

	store := NewPostgresStore(mock)
	turn, err := store.FindTurn(context.Background(), "clinic-1", "SM1")
	require.NoError(t, err)
	assert.Equal(t, StateOfferSlots, turn.State)
	assert.Equal(t, "Tengo disponibilidad", turn.Reply)

	_, err = store.FindTurn(context.Background(), "clinic-1", "SM2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.FindTurn(context.Background(), "clinic-1", "")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAtomicCommitsAndRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewPostgresStore(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE conversations").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = store.Atomic(context.Background(), func(ctx context.Context) error {
		return store.Update(ctx, &Conversation{ID: testConversationID, State: StateGreeting, Status: StatusActive})
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversation_messages").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectRollback()

	err = store.Atomic(context.Background(), func(ctx context.Context) error {
		if err := store.AppendMessage(ctx, &Message{ConversationID: testConversationID, Role: RoleUser, Content: "hola"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
