package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/gigbook/backend/internal/models"
)

// PaymentEventStore keeps the log of authenticated provider events.
type PaymentEventStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPaymentEventStore(db *sql.DB) *PaymentEventStore {
	return &PaymentEventStore{db: db, now: time.Now}
}

// Record stores an event. It reports false when the same provider event was
// already recorded.
func (s *PaymentEventStore) Record(ctx context.Context, e *models.PaymentEvent) (bool, error) {
	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_events (provider, reference, event_type, booking_id, amount, currency,
			signature_valid, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider, reference, event_type) DO NOTHING`,
		e.Provider, e.Reference, string(e.Type), nullString(e.BookingID), e.Amount,
		nullString(e.Currency), e.SignatureValid, payload, s.now())
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

// MarkProcessed stamps the outcome of applying an event. processErr is stored
// as its client-safe message.
func (s *PaymentEventStore) MarkProcessed(ctx context.Context, e *models.PaymentEvent, processErr error) error {
	var msg any
	if processErr != nil {
		m := ClientMessage(processErr)
		if m == "" {
			m = MsgInternal
		}
		msg = m
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE payment_events SET processed_at = $1, processing_error = $2
		WHERE provider = $3 AND reference = $4 AND event_type = $5`,
		s.now(), msg, e.Provider, e.Reference, string(e.Type))
	return err
}
