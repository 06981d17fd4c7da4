package audit

import (
	"time"

	"go.uber.org/zap"
)

type Event struct {
	Timestamp      time.Time `json:"timestamp"`
	EventType      string    `json:"event_type"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	EscrowID       string    `json:"escrow_id,omitempty"`
	BookingID      string    `json:"booking_id,omitempty"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency,omitempty"`
	Applied        bool      `json:"applied"`
	Status         string    `json:"status"`
	Details        string    `json:"details,omitempty"`
}

// Logger writes audit events for balance-affecting operations. Events go to a
// dedicated named logger so they can be routed separately from app logs.
type Logger struct {
	log *zap.Logger
	now func() time.Time
}

func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("audit"), now: time.Now}
}

func (a *Logger) LogMutation(op, key, userID, escrowID string, amount int64, currency string, applied bool) {
	status := "APPLIED"
	if !applied {
		status = "DUPLICATE"
	}
	a.write(Event{
		EventType:      op,
		IdempotencyKey: key,
		UserID:         userID,
		EscrowID:       escrowID,
		Amount:         amount,
		Currency:       currency,
		Applied:        applied,
		Status:         status,
	})
}

func (a *Logger) LogTransition(bookingID, escrowID, from, to, actor string) {
	a.write(Event{
		EventType: "ESCROW_TRANSITION",
		BookingID: bookingID,
		EscrowID:  escrowID,
		UserID:    actor,
		Applied:   true,
		Status:    "SUCCESS",
		Details:   from + "->" + to,
	})
}

func (a *Logger) write(e Event) {
	if a == nil {
		return
	}
	e.Timestamp = a.now()
	a.log.Info("AUDIT",
		zap.Time("timestamp", e.Timestamp),
		zap.String("event_type", e.EventType),
		zap.String("idempotency_key", e.IdempotencyKey),
		zap.String("user_id", e.UserID),
		zap.String("escrow_id", e.EscrowID),
		zap.String("booking_id", e.BookingID),
		zap.Int64("amount", e.Amount),
		zap.String("currency", e.Currency),
		zap.Bool("applied", e.Applied),
		zap.String("status", e.Status),
		zap.String("details", e.Details),
	)
}
