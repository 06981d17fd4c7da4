package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gigbook/backend/internal/audit"
	"github.com/gigbook/backend/internal/models"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const walletColumns = `user_id, currency, ledger_balance, available_balance, total_earnings,
	total_withdrawn, pending_withdrawals, version, updated_at`

// LedgerService is the only writer of wallet balances. Every mutation locks
// the wallet row, appends a journal entry keyed by an idempotency key and
// updates the balances in the same transaction.
type LedgerService struct {
	db    *sql.DB
	audit *audit.Logger
	log   *zap.Logger
	now   func() time.Time
}

func NewLedgerService(db *sql.DB, auditLog *audit.Logger, log *zap.Logger) *LedgerService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerService{
		db:    db,
		audit: auditLog,
		log:   log.Named("ledger"),
		now:   time.Now,
	}
}

// Mutation describes one journaled change. Balance fields are deltas.
type Mutation struct {
	UserID    string
	Currency  string
	Key       string
	EscrowID  string
	Operation models.JournalOperation
	Amount    int64

	Ledger    int64
	Available int64
	Earnings  int64
	Withdrawn int64
	Pending   int64

	// CreateWallet opens an empty wallet when the user has none yet.
	CreateWallet bool
}

type MutationResult struct {
	Applied bool
	Wallet  models.Wallet
}

// CreditLedger adds amount to the musician's held balance.
func (s *LedgerService) CreditLedger(ctx context.Context, musicianID string, amount int64, currency, key string) (bool, int64, error) {
	var res *MutationResult
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		res, err = s.CreditLedgerTx(ctx, tx, musicianID, "", amount, currency, key)
		return err
	})
	if err != nil {
		return false, 0, err
	}
	return res.Applied, res.Wallet.LedgerBalance, nil
}

func (s *LedgerService) CreditLedgerTx(ctx context.Context, tx *sql.Tx, musicianID, escrowID string, amount int64, currency, key string) (*MutationResult, error) {
	if amount <= 0 {
		return nil, validationError(MsgInvalidAmount)
	}
	return s.ApplyTx(ctx, tx, Mutation{
		UserID:       musicianID,
		Currency:     currency,
		Key:          key,
		EscrowID:     escrowID,
		Operation:    models.OpPayment,
		Amount:       amount,
		Ledger:       amount,
		CreateWallet: true,
	})
}

// ReleaseToAvailable moves an escrow entry's net amount from the musician's
// held balance to the withdrawable balance.
func (s *LedgerService) ReleaseToAvailable(ctx context.Context, escrowID, key string) (bool, error) {
	var applied bool
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		var entry models.EscrowEntry
		err := tx.QueryRowContext(ctx, `
			SELECT id, musician_id, net_amount, currency
			FROM escrow_entries
			WHERE id = $1`, escrowID).Scan(&entry.ID, &entry.MusicianID, &entry.NetAmount, &entry.Currency)
		if errors.Is(err, sql.ErrNoRows) {
			return notFoundError(MsgEscrowNotFound)
		}
		if err != nil {
			return err
		}

		res, err := s.ReleaseToAvailableTx(ctx, tx, &entry, key)
		if err != nil {
			return err
		}
		applied = res.Applied
		return nil
	})
	return applied, err
}

func (s *LedgerService) ReleaseToAvailableTx(ctx context.Context, tx *sql.Tx, entry *models.EscrowEntry, key string) (*MutationResult, error) {
	return s.ApplyTx(ctx, tx, Mutation{
		UserID:    entry.MusicianID,
		Currency:  entry.Currency,
		Key:       key,
		EscrowID:  entry.ID,
		Operation: models.OpRelease,
		Amount:    entry.NetAmount,
		Ledger:    -entry.NetAmount,
		Available: entry.NetAmount,
		Earnings:  entry.NetAmount,
	})
}

// DebitAvailable removes amount from a withdrawable balance. A replayed key is
// a successful no-op.
func (s *LedgerService) DebitAvailable(ctx context.Context, userID string, amount int64, key string) error {
	return runInTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := s.DebitAvailableTx(ctx, tx, userID, amount, key, models.OpWithdrawal)
		return err
	})
}

func (s *LedgerService) DebitAvailableTx(ctx context.Context, tx *sql.Tx, userID string, amount int64, key string, op models.JournalOperation) (*MutationResult, error) {
	if amount <= 0 {
		return nil, validationError(MsgInvalidAmount)
	}
	return s.ApplyTx(ctx, tx, Mutation{
		UserID:    userID,
		Key:       key,
		Operation: op,
		Amount:    amount,
		Available: -amount,
	})
}

// ApplyTx performs a single journaled wallet mutation inside tx.
//
// The wallet row is locked before the journal insert so concurrent callers
// with the same key queue on the lock and then hit the unique constraint.
func (s *LedgerService) ApplyTx(ctx context.Context, tx *sql.Tx, m Mutation) (*MutationResult, error) {
	if m.Key == "" {
		return nil, fmt.Errorf("ledger mutation for %s has no idempotency key", m.UserID)
	}

	if m.CreateWallet {
		if err := s.ensureWallet(ctx, tx, m.UserID, m.Currency); err != nil {
			return nil, err
		}
	}

	wallet, err := s.lockWallet(ctx, tx, m.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		if m.Available < 0 {
			return nil, insufficientFunds()
		}
		return nil, notFoundError(MsgWalletNotFound)
	}
	if err != nil {
		return nil, err
	}

	if m.Currency != "" && wallet.Currency != m.Currency {
		return nil, validationError(MsgUnsupportedCurrency)
	}

	next := *wallet
	next.LedgerBalance += m.Ledger
	next.AvailableBalance += m.Available
	next.TotalEarnings += m.Earnings
	next.TotalWithdrawn += m.Withdrawn
	next.PendingWithdrawals += m.Pending

	inserted, err := s.appendJournal(ctx, tx, m, wallet.Currency, &next)
	if err != nil {
		return nil, err
	}
	if !inserted {
		s.audit.LogMutation(string(m.Operation), m.Key, m.UserID, m.EscrowID, m.Amount, wallet.Currency, false)
		return &MutationResult{Applied: false, Wallet: *wallet}, nil
	}

	if next.AvailableBalance < 0 {
		return nil, insufficientFunds()
	}
	if next.LedgerBalance < 0 || next.PendingWithdrawals < 0 {
		return nil, fmt.Errorf("ledger invariant violated for wallet %s by %s", m.UserID, m.Key)
	}

	if err := s.updateWallet(ctx, tx, &next, wallet.Version); err != nil {
		return nil, err
	}
	next.Version = wallet.Version + 1

	s.audit.LogMutation(string(m.Operation), m.Key, m.UserID, m.EscrowID, m.Amount, wallet.Currency, true)
	return &MutationResult{Applied: true, Wallet: next}, nil
}

// JournalExists reports whether key has already been applied.
func (s *LedgerService) JournalExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM wallet_journal WHERE idempotency_key = $1)`, key).Scan(&exists)
	return exists, err
}

func (s *LedgerService) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	w, err := scanWallet(s.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError(MsgWalletNotFound)
	}
	return w, err
}

func (s *LedgerService) ListJournal(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idempotency_key, user_id, escrow_id, operation, amount, currency,
			ledger_balance_after, available_balance_after, created_at
		FROM wallet_journal
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.JournalEntry{}
	for rows.Next() {
		var e models.JournalEntry
		var escrowID sql.NullString
		if err := rows.Scan(&e.ID, &e.IdempotencyKey, &e.UserID, &escrowID, &e.Operation, &e.Amount,
			&e.Currency, &e.LedgerBalanceAfter, &e.AvailableBalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		if escrowID.Valid {
			e.EscrowID = &escrowID.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LockWalletsTx locks the given wallets in user_id order so that two
// transactions touching the same pair cannot deadlock.
func (s *LedgerService) LockWalletsTx(ctx context.Context, tx *sql.Tx, userIDs ...string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT user_id FROM wallets
		WHERE user_id = ANY($1)
		ORDER BY user_id
		FOR UPDATE`, pq.Array(userIDs))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *LedgerService) ensureWallet(ctx context.Context, tx *sql.Tx, userID, currency string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, currency, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, currency, s.now())
	return err
}

func (s *LedgerService) lockWallet(ctx context.Context, tx *sql.Tx, userID string) (*models.Wallet, error) {
	return scanWallet(tx.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
}

func (s *LedgerService) appendJournal(ctx context.Context, tx *sql.Tx, m Mutation, currency string, after *models.Wallet) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_journal (idempotency_key, user_id, escrow_id, operation, amount, currency,
			ledger_balance_after, available_balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		m.Key, m.UserID, nullString(m.EscrowID), string(m.Operation), m.Amount, currency,
		after.LedgerBalance, after.AvailableBalance, s.now())
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

func (s *LedgerService) updateWallet(ctx context.Context, tx *sql.Tx, w *models.Wallet, version int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET ledger_balance = $1, available_balance = $2, total_earnings = $3, total_withdrawn = $4,
			pending_withdrawals = $5, version = version + 1, updated_at = $6
		WHERE user_id = $7 AND version = $8`,
		w.LedgerBalance, w.AvailableBalance, w.TotalEarnings, w.TotalWithdrawn,
		w.PendingWithdrawals, s.now(), w.UserID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for wallet %s", w.UserID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.UserID, &w.Currency, &w.LedgerBalance, &w.AvailableBalance, &w.TotalEarnings,
		&w.TotalWithdrawn, &w.PendingWithdrawals, &w.Version, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// runInTx runs fn in a transaction, committing only when fn succeeds.
func runInTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
