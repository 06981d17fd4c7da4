package services

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrTransientProvider = errors.New("transient provider error")
	ErrForbidden         = errors.New("forbidden")
)

// Client-facing messages. Raw provider and database errors never reach clients.
const (
	MsgInsufficientFunds    = "Insufficient wallet balance"
	MsgAlreadyPaid          = "Booking already paid"
	MsgCompleteBeforeEvent  = "Cannot mark complete before event date"
	MsgBookingNotFound      = "Booking not found"
	MsgEscrowNotFound       = "Escrow entry not found"
	MsgWalletNotFound       = "Wallet not found"
	MsgWithdrawalNotFound   = "Withdrawal not found"
	MsgComplianceNotFound   = "Compliance record not found"
	MsgNotPaid              = "Booking has not been paid"
	MsgAmountMismatch       = "Payment amount does not match booking"
	MsgBookingCancelled     = "Booking already cancelled"
	MsgBookingCompleted     = "Completed bookings cannot be cancelled"
	MsgCannotComplete       = "Booking cannot be completed"
	MsgNotEligible          = "Funds are not yet eligible for release"
	MsgInvalidSignature     = "Invalid signature"
	MsgUnknownProvider      = "Unknown payment provider"
	MsgProviderUnavailable  = "Payment verification unavailable, please retry"
	MsgReferenceReused      = "Payment reference already used"
	MsgNotYourBooking       = "You are not a party to this booking"
	MsgCategoryRoleMismatch = "Cancellation category does not match role"
	MsgMusicianUnavailable  = "Musician is not accepting bookings"
	MsgWithdrawalClosed     = "Withdrawal already settled"
	MsgInvalidAmount        = "Amount must be greater than zero"
	MsgMissingReference     = "Payment reference is required"
	MsgEventInPast          = "Event start must be in the future"
	MsgUnsupportedCurrency  = "Currency does not match wallet"
	MsgInternal             = "Internal server error"
	MsgMalformedPayment     = "Invalid payment payload"
	MsgPaymentNotFound      = "Payment reference not found"
	MsgUnknownBank          = "Unknown bank code"
	MsgFundsReleased        = "Funds already released"
	MsgNoShowBeforeEvent    = "Cannot report a no-show before the event starts"
)

// ServiceError carries an error kind, a stable client message and the cause.
type ServiceError struct {
	Kind    error
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ServiceError) Is(target error) bool {
	return target == e.Kind
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

func newError(kind error, msg string) *ServiceError {
	return &ServiceError{Kind: kind, Message: msg}
}

func validationError(msg string) error { return newError(ErrValidation, msg) }
func conflictError(msg string) error   { return newError(ErrConflict, msg) }
func notFoundError(msg string) error   { return newError(ErrNotFound, msg) }
func forbiddenError(msg string) error  { return newError(ErrForbidden, msg) }
func insufficientFunds() error         { return newError(ErrInsufficientFunds, MsgInsufficientFunds) }
func transientError(cause error) error {
	return &ServiceError{Kind: ErrTransientProvider, Message: MsgProviderUnavailable, Cause: cause}
}

// ClientMessage returns the message safe to show a caller, or "" when err is
// not a ServiceError.
func ClientMessage(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}
