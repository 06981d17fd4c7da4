package models

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

// Booking is a client's engagement of a musician for one event.
type Booking struct {
	ID               string        `json:"id" db:"id"`
	MusicianID       string        `json:"musician_id" db:"musician_id"`
	ClientID         string        `json:"client_id" db:"client_id"`
	EventID          string        `json:"event_id" db:"event_id"`
	Amount           int64         `json:"amount" db:"amount"` // minor units
	Currency         string        `json:"currency" db:"currency"`
	Status           BookingStatus `json:"status" db:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status" db:"payment_status"`
	EventStart       time.Time     `json:"event_start" db:"event_start"`
	MarkedCompleteAt *time.Time    `json:"marked_complete_at,omitempty" db:"marked_complete_at"`
	FundsReleasedAt  *time.Time    `json:"funds_released_at,omitempty" db:"funds_released_at"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

type Role string

const (
	RoleClient   Role = "CLIENT"
	RoleMusician Role = "MUSICIAN"
)

type CancellationCategory string

const (
	CategoryClientRequest   CancellationCategory = "client_request"
	CategoryMusicianRequest CancellationCategory = "musician_request"
	CategoryNoShow          CancellationCategory = "no_show"
)

// Cancellation records who cancelled a booking and what it cost them.
type Cancellation struct {
	ID                 string               `json:"id" db:"id"`
	BookingID          string               `json:"booking_id" db:"booking_id"`
	CancelledBy        string               `json:"cancelled_by" db:"cancelled_by"`
	Role               Role                 `json:"role" db:"role"`
	Category           CancellationCategory `json:"category" db:"category"`
	Reason             string               `json:"reason" db:"reason"`
	IsLateCancellation bool                 `json:"is_late_cancellation" db:"is_late_cancellation"`
	PenaltyApplied     bool                 `json:"penalty_applied" db:"penalty_applied"`
	RefundIssued       bool                 `json:"refund_issued" db:"refund_issued"`
	RefundAmount       int64                `json:"refund_amount" db:"refund_amount"`
	CreatedAt          time.Time            `json:"created_at" db:"created_at"`
}
