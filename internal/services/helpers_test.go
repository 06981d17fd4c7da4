package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gigbook/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

var (
	bookingCols = []string{"id", "musician_id", "client_id", "event_id", "amount", "currency", "status",
		"payment_status", "event_start", "marked_complete_at", "funds_released_at", "created_at", "updated_at"}
	escrowCols = []string{"id", "booking_id", "musician_id", "client_id", "gross_amount", "platform_fee",
		"net_amount", "currency", "state", "provider_reference", "release_reason", "released_by", "created_at", "released_at"}
	walletCols = []string{"user_id", "currency", "ledger_balance", "available_balance", "total_earnings",
		"total_withdrawn", "pending_withdrawals", "version", "updated_at"}
	complianceCols = []string{"musician_id", "late_cancellations", "no_shows", "complaints", "status",
		"warned_at", "suspended_at", "updated_at"}
	withdrawalCols = []string{"id", "user_id", "amount", "currency", "bank_code", "account_number", "account_name",
		"status", "idempotency_key", "message_id", "created_at", "settled_at"}
)

// Regexes for the statements most tests walk through.
const (
	qLockBooking   = `FROM bookings WHERE id = \$1 FOR UPDATE`
	qLockEscrow    = `FROM escrow_entries WHERE booking_id = \$1 FOR UPDATE`
	qLockWallet    = `FROM wallets WHERE user_id = \$1 FOR UPDATE`
	qLockWallets   = `WHERE user_id = ANY\(\$1\)`
	qEnsureWallet  = `INSERT INTO wallets`
	qJournal       = `INSERT INTO wallet_journal`
	qUpdateWallet  = `UPDATE wallets`
	qInsertEscrow  = `INSERT INTO escrow_entries`
	qEscrowState   = `UPDATE escrow_entries`
	qWalletCurrncy = `SELECT currency FROM wallets WHERE user_id = \$1`
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func testBooking() *models.Booking {
	return &models.Booking{
		ID:            "b1",
		MusicianID:    "m1",
		ClientID:      "c1",
		EventID:       "evt-1",
		Amount:        10000,
		Currency:      "NGN",
		Status:        models.BookingConfirmed,
		PaymentStatus: models.PaymentPaid,
		EventStart:    testNow.Add(72 * time.Hour),
		CreatedAt:     testNow.Add(-48 * time.Hour),
		UpdatedAt:     testNow.Add(-48 * time.Hour),
	}
}

func testEscrow() *models.EscrowEntry {
	return &models.EscrowEntry{
		ID:                "e1",
		BookingID:         "b1",
		MusicianID:        "m1",
		ClientID:          "c1",
		GrossAmount:       10000,
		PlatformFee:       1000,
		NetAmount:         9000,
		Currency:          "NGN",
		State:             models.EscrowHeld,
		ProviderReference: "ref-1",
		CreatedAt:         testNow.Add(-24 * time.Hour),
	}
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func bookingRows(b *models.Booking) *sqlmock.Rows {
	return sqlmock.NewRows(bookingCols).AddRow(b.ID, b.MusicianID, b.ClientID, b.EventID, b.Amount, b.Currency,
		string(b.Status), string(b.PaymentStatus), b.EventStart, nullableTime(b.MarkedCompleteAt),
		nullableTime(b.FundsReleasedAt), b.CreatedAt, b.UpdatedAt)
}

func escrowRows(e *models.EscrowEntry) *sqlmock.Rows {
	var reason, releasedBy any
	if e.ReleaseReason != nil {
		reason = string(*e.ReleaseReason)
	}
	if e.ReleasedBy != nil {
		releasedBy = *e.ReleasedBy
	}
	return sqlmock.NewRows(escrowCols).AddRow(e.ID, e.BookingID, e.MusicianID, e.ClientID, e.GrossAmount,
		e.PlatformFee, e.NetAmount, e.Currency, string(e.State), e.ProviderReference, reason, releasedBy,
		e.CreatedAt, nullableTime(e.ReleasedAt))
}

func walletRows(w models.Wallet) *sqlmock.Rows {
	return sqlmock.NewRows(walletCols).AddRow(w.UserID, w.Currency, w.LedgerBalance, w.AvailableBalance,
		w.TotalEarnings, w.TotalWithdrawn, w.PendingWithdrawals, w.Version, testNow)
}

func newTestLedger(db *sql.DB) *LedgerService {
	l := NewLedgerService(db, nil, nil)
	l.now = fixedNow
	return l
}

func newTestEscrow(db *sql.DB, notifier Notifier) *EscrowService {
	s := NewEscrowService(db, newTestLedger(db), notifier, nil, nil, EscrowConfig{
		FeeRate:          decimal.RequireFromString("0.10"),
		AutoReleaseAfter: 24 * time.Hour,
	})
	s.now = fixedNow
	return s
}

func newTestCompliance(db *sql.DB, notifier Notifier) *ComplianceService {
	s := NewComplianceService(db, DefaultComplianceThresholds(), notifier, nil)
	s.now = fixedNow
	return s
}

// expectMutation expects one applied ApplyTx against a wallet already locked
// with the given balances.
func expectMutation(mock sqlmock.Sqlmock, before models.Wallet, key string) {
	mock.ExpectQuery(qLockWallet).
		WithArgs(before.UserID).
		WillReturnRows(walletRows(before))
	mock.ExpectExec(qJournal).
		WithArgs(key, before.UserID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(qUpdateWallet).
		WillReturnResult(sqlmock.NewResult(0, 1))
}
