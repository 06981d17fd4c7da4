package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentEventStore_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("first delivery", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewPaymentEventStore(db)
		store.now = fixedNow
		event := succeededEvent()
		event.Payload = []byte(`{"ok":true}`)

		mock.ExpectExec(`INSERT INTO payment_events`).
			WithArgs("paystack", "ref-1", "payment.succeeded", "b1", 10000, "NGN", true, `{"ok":true}`, testNow).
			WillReturnResult(sqlmock.NewResult(1, 1))

		recorded, err := store.Record(ctx, event)
		require.NoError(t, err)
		assert.True(t, recorded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redelivery", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewPaymentEventStore(db)

		mock.ExpectExec(`ON CONFLICT \(provider, reference, event_type\) DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		recorded, err := store.Record(ctx, succeededEvent())
		require.NoError(t, err)
		assert.False(t, recorded)
	})
}

func TestPaymentEventStore_MarkProcessed(t *testing.T) {
	ctx := context.Background()

	t.Run("success clears the error", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewPaymentEventStore(db)
		store.now = fixedNow

		mock.ExpectExec(`UPDATE payment_events SET processed_at = \$1, processing_error = \$2`).
			WithArgs(testNow, nil, "paystack", "ref-1", "payment.succeeded").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.MarkProcessed(ctx, succeededEvent(), nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stores only the client message", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewPaymentEventStore(db)
		store.now = fixedNow

		mock.ExpectExec(`UPDATE payment_events`).
			WithArgs(testNow, MsgInternal, "paystack", "ref-1", "payment.succeeded").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.MarkProcessed(ctx, succeededEvent(), errors.New("pq: connection reset")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
