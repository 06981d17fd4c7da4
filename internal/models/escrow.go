package models

import "time"

type EscrowState string

const (
	EscrowHeld     EscrowState = "held"
	EscrowReleased EscrowState = "released"
	EscrowRefunded EscrowState = "refunded"
)

type ReleaseReason string

const (
	ReleaseManual ReleaseReason = "manual"
	ReleaseAuto   ReleaseReason = "auto"
	ReleaseRefund ReleaseReason = "refund"
)

// EscrowEntry holds a booking's payment until it is released or refunded.
type EscrowEntry struct {
	ID                string         `json:"id" db:"id"`
	BookingID         string         `json:"booking_id" db:"booking_id"`
	MusicianID        string         `json:"musician_id" db:"musician_id"`
	ClientID          string         `json:"client_id" db:"client_id"`
	GrossAmount       int64          `json:"gross_amount" db:"gross_amount"`
	PlatformFee       int64          `json:"platform_fee" db:"platform_fee"`
	NetAmount         int64          `json:"net_amount" db:"net_amount"`
	Currency          string         `json:"currency" db:"currency"`
	State             EscrowState    `json:"state" db:"state"`
	ProviderReference string         `json:"provider_reference" db:"provider_reference"`
	ReleaseReason     *ReleaseReason `json:"release_reason,omitempty" db:"release_reason"`
	ReleasedBy        *string        `json:"released_by,omitempty" db:"released_by"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	ReleasedAt        *time.Time     `json:"released_at,omitempty" db:"released_at"`
}

// IsTerminal reports whether the entry can no longer change state.
func (e *EscrowEntry) IsTerminal() bool {
	return e.State == EscrowReleased || e.State == EscrowRefunded
}

// RefundObligation is a refund the payment provider must carry out because
// the client has no wallet to credit.
type RefundObligation struct {
	ID                string    `json:"id" db:"id"`
	EscrowID          string    `json:"escrow_id" db:"escrow_id"`
	BookingID         string    `json:"booking_id" db:"booking_id"`
	ClientID          string    `json:"client_id" db:"client_id"`
	Amount            int64     `json:"amount" db:"amount"`
	Currency          string    `json:"currency" db:"currency"`
	ProviderReference string    `json:"provider_reference" db:"provider_reference"`
	Status            string    `json:"status" db:"status"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}
