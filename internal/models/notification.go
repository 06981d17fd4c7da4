package models

// Notification is a delivery request handed to the notification collaborator.
type Notification struct {
	UserID  string         `json:"userId"`
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

const (
	NotifyPaymentReceived    = "payment_received"
	NotifyBookingConfirmed   = "booking_confirmed"
	NotifyFundsReleased      = "funds_released"
	NotifyBookingCompleted   = "booking_completed"
	NotifyBookingCancelled   = "booking_cancelled"
	NotifyRefundIssued       = "refund_issued"
	NotifyCompletionReminder = "completion_reminder"
	NotifyComplianceWarning  = "compliance_warning"
	NotifySuspension         = "account_suspended"
	NotifyWithdrawal         = "withdrawal_update"
)
