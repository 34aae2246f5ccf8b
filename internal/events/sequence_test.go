package events

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestSequenceStoreNext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSequenceStore(db)

	mock.ExpectQuery(`INSERT INTO event_sequence`).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"last_sequence"}).AddRow(int64(4)))

	seq, err := store.Next(context.Background(), "order-1")
	require.NoError(t, err)
	require.EqualValues(t, 4, seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSequenceStoreNext_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSequenceStore(db)

	mock.ExpectQuery(`INSERT INTO event_sequence`).
		WithArgs("order-1").
		WillReturnError(errors.New("connection reset"))

	_, err = store.Next(context.Background(), "order-1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
