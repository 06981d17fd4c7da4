package models

import "time"

type PaymentEventType string

const (
	PaymentSucceeded PaymentEventType = "payment.succeeded"
	PaymentFailedEvt PaymentEventType = "payment.failed"
)

// PaymentEvent is a provider callback normalized to the fields the escrow
// engine needs.
type PaymentEvent struct {
	Provider       string           `json:"provider"`
	Type           PaymentEventType `json:"event"`
	Reference      string           `json:"reference"`
	BookingID      string           `json:"bookingId"`
	Amount         int64            `json:"amount"`
	Currency       string           `json:"currency"`
	SignatureValid bool             `json:"-"`
	Payload        []byte           `json:"-"`
}

// Withdrawal is a musician payout moving available funds to a bank account.
type Withdrawal struct {
	ID             string     `json:"id" db:"id"`
	UserID         string     `json:"user_id" db:"user_id"`
	Amount         int64      `json:"amount" db:"amount"`
	Currency       string     `json:"currency" db:"currency"`
	BankCode       string     `json:"bank_code" db:"bank_code"`
	AccountNumber  string     `json:"account_number" db:"account_number"`
	AccountName    string     `json:"account_name" db:"account_name"`
	Status         string     `json:"status" db:"status"`
	IdempotencyKey string     `json:"idempotency_key" db:"idempotency_key"`
	MessageID      *string    `json:"message_id,omitempty" db:"message_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	SettledAt      *time.Time `json:"settled_at,omitempty" db:"settled_at"`
}

const (
	WithdrawalPending  = "pending"
	WithdrawalSettled  = "settled"
	WithdrawalRejected = "rejected"
)
