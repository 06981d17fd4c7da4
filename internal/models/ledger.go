package models

import (
	"time"
)

// JournalOperation names a balance-affecting operation recorded in the journal.
type JournalOperation string

const (
	OpPayment           JournalOperation = "payment"
	OpWalletPayment     JournalOperation = "wallet_payment"
	OpRelease           JournalOperation = "release"
	OpRefund            JournalOperation = "refund"
	OpRefundCredit      JournalOperation = "refund_credit"
	OpWithdrawal        JournalOperation = "withdrawal"
	OpWithdrawalSettled JournalOperation = "withdrawal_settled"
	OpWithdrawalReverse JournalOperation = "withdrawal_reversed"
)

// JournalEntry is an immutable record of one wallet mutation.
type JournalEntry struct {
	ID                    int64            `json:"id" db:"id"`
	IdempotencyKey        string           `json:"idempotency_key" db:"idempotency_key"`
	UserID                string           `json:"user_id" db:"user_id"`
	EscrowID              *string          `json:"escrow_id,omitempty" db:"escrow_id"`
	Operation             JournalOperation `json:"operation" db:"operation"`
	Amount                int64            `json:"amount" db:"amount"` // minor units
	Currency              string           `json:"currency" db:"currency"`
	LedgerBalanceAfter    int64            `json:"ledger_balance_after" db:"ledger_balance_after"`
	AvailableBalanceAfter int64            `json:"available_balance_after" db:"available_balance_after"`
	CreatedAt             time.Time        `json:"created_at" db:"created_at"`
}

// Wallet holds a user's balances in minor units.
type Wallet struct {
	UserID             string    `json:"user_id" db:"user_id"`
	Currency           string    `json:"currency" db:"currency"`
	LedgerBalance      int64     `json:"ledger_balance" db:"ledger_balance"`
	AvailableBalance   int64     `json:"available_balance" db:"available_balance"`
	TotalEarnings      int64     `json:"total_earnings" db:"total_earnings"`
	TotalWithdrawn     int64     `json:"total_withdrawn" db:"total_withdrawn"`
	PendingWithdrawals int64     `json:"pending_withdrawals" db:"pending_withdrawals"`
	Version            int       `json:"version" db:"version"` // for optimistic locking
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}
