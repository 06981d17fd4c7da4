package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gigbook/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const withdrawalColumns = `id, user_id, amount, currency, bank_code, account_number, account_name,
	status, idempotency_key, message_id, created_at, settled_at`

type WithdrawalRequest struct {
	UserID         string `json:"-" validate:"required"`
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	BankCode       string `json:"bankCode" validate:"required,max=35"`
	AccountNumber  string `json:"accountNumber" validate:"required,numeric,min=6,max=34"`
	AccountName    string `json:"accountName" validate:"required,max=140"`
	IdempotencyKey string `json:"idempotencyKey" validate:"required,max=64"`
}

type WithdrawalResult struct {
	Withdrawal *models.Withdrawal `json:"withdrawal"`
	Applied    bool               `json:"applied"`
}

// PayoutService moves available funds out of musician wallets. Requested
// amounts sit in pending_withdrawals until the rail confirms or rejects them.
type PayoutService struct {
	db        *sql.DB
	ledger    *LedgerService
	builder   *ISO20022Builder
	sender    SettlementSender
	banks     *BankDirectory
	notifier  Notifier
	validator *ValidationHelper
	log       *zap.Logger
	now       func() time.Time
}

func NewPayoutService(db *sql.DB, ledger *LedgerService, builder *ISO20022Builder, sender SettlementSender, notifier Notifier, log *zap.Logger) *PayoutService {
	if log == nil {
		log = zap.NewNop()
	}
	if sender == nil {
		sender = NewLogSettlementSender(log)
	}
	return &PayoutService{
		db:        db,
		ledger:    ledger,
		builder:   builder,
		sender:    sender,
		banks:     NewBankDirectory(),
		notifier:  orNopNotifier(notifier),
		validator: NewValidationHelper(),
		log:       log.Named("payouts"),
		now:       time.Now,
	}
}

// Banks lists the institutions withdrawals can be paid to.
func (s *PayoutService) Banks() []Bank {
	return s.banks.List()
}

func WithdrawalKey(userID, key string) string {
	return "withdrawal:" + userID + ":" + key
}

// RequestWithdrawal reserves amount for payout and emits a pacs.008 credit
// transfer. Repeating a request with the same idempotency key returns the
// original withdrawal.
func (s *PayoutService) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResult, error) {
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}
	if _, ok := s.banks.Lookup(req.BankCode); !ok {
		return nil, validationError(MsgUnknownBank)
	}

	key := WithdrawalKey(req.UserID, req.IdempotencyKey)
	var result *WithdrawalResult
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := s.ledger.ApplyTx(ctx, tx, Mutation{
			UserID:    req.UserID,
			Key:       key,
			Operation: models.OpWithdrawal,
			Amount:    req.Amount,
			Available: -req.Amount,
			Pending:   req.Amount,
		})
		if err != nil {
			return err
		}

		if !res.Applied {
			existing, err := s.withdrawalByKey(ctx, tx, key)
			if err != nil {
				return err
			}
			if existing.Amount != req.Amount {
				return conflictError(MsgReferenceReused)
			}
			result = &WithdrawalResult{Withdrawal: existing, Applied: false}
			return nil
		}

		w := &models.Withdrawal{
			ID:             uuid.NewString(),
			UserID:         req.UserID,
			Amount:         req.Amount,
			Currency:       res.Wallet.Currency,
			BankCode:       req.BankCode,
			AccountNumber:  req.AccountNumber,
			AccountName:    req.AccountName,
			Status:         models.WithdrawalPending,
			IdempotencyKey: key,
			CreatedAt:      s.now(),
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO withdrawals (id, user_id, amount, currency, bank_code, account_number, account_name,
				status, idempotency_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			w.ID, w.UserID, w.Amount, w.Currency, w.BankCode, w.AccountNumber, w.AccountName,
			w.Status, w.IdempotencyKey, w.CreatedAt); err != nil {
			return err
		}

		result = &WithdrawalResult{Withdrawal: w, Applied: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied {
		s.submit(ctx, result.Withdrawal)
	}
	return result, nil
}

// submit sends the credit transfer. A failed send leaves the withdrawal
// pending without a message id for an operator to settle or reject.
func (s *PayoutService) submit(ctx context.Context, w *models.Withdrawal) {
	doc := s.builder.Pacs008(w)
	xmlDoc, err := ConvertToXML(doc)
	if err != nil {
		s.log.Error("failed to render pacs.008", zap.String("withdrawal_id", w.ID), zap.Error(err))
		return
	}
	if err := s.sender.Send(ctx, pacs008MessageType, xmlDoc); err != nil {
		s.log.Warn("failed to send pacs.008", zap.String("withdrawal_id", w.ID), zap.Error(err))
		return
	}

	msgID := string(doc.GrpHdr.MsgId)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE withdrawals SET message_id = $1 WHERE id = $2`, msgID, w.ID); err != nil {
		s.log.Warn("failed to store message id", zap.String("withdrawal_id", w.ID), zap.Error(err))
		return
	}
	w.MessageID = &msgID
}

// SettleWithdrawal closes a pending withdrawal. Accepted payouts move from
// pending to total_withdrawn; rejected ones return to the available balance.
func (s *PayoutService) SettleWithdrawal(ctx context.Context, withdrawalID string, accepted bool, actor string) (*WithdrawalResult, error) {
	target := models.WithdrawalRejected
	if accepted {
		target = models.WithdrawalSettled
	}

	var result *WithdrawalResult
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		w, err := scanWithdrawal(tx.QueryRowContext(ctx,
			`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, withdrawalID))
		if errors.Is(err, sql.ErrNoRows) {
			return notFoundError(MsgWithdrawalNotFound)
		}
		if err != nil {
			return err
		}

		if w.Status != models.WithdrawalPending {
			if w.Status == target {
				result = &WithdrawalResult{Withdrawal: w, Applied: false}
				return nil
			}
			return conflictError(MsgWithdrawalClosed)
		}

		m := Mutation{
			UserID:   w.UserID,
			Currency: w.Currency,
			Amount:   w.Amount,
			Pending:  -w.Amount,
		}
		if accepted {
			m.Key = "withdrawal-settled:" + w.ID
			m.Operation = models.OpWithdrawalSettled
			m.Withdrawn = w.Amount
		} else {
			m.Key = "withdrawal-reversed:" + w.ID
			m.Operation = models.OpWithdrawalReverse
			m.Available = w.Amount
		}
		if _, err := s.ledger.ApplyTx(ctx, tx, m); err != nil {
			return err
		}

		now := s.now()
		if _, err := tx.ExecContext(ctx, `
			UPDATE withdrawals SET status = $1, settled_at = $2
			WHERE id = $3 AND status = 'pending'`,
			target, now, w.ID); err != nil {
			return err
		}
		w.Status = target
		w.SettledAt = &now

		result = &WithdrawalResult{Withdrawal: w, Applied: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !result.Applied {
		return result, nil
	}

	status := StatusSettled
	if !accepted {
		status = StatusRejected
	}
	if xmlDoc, err := ConvertToXML(s.builder.Pacs002(result.Withdrawal, status)); err != nil {
		s.log.Error("failed to render pacs.002", zap.String("withdrawal_id", withdrawalID), zap.Error(err))
	} else if err := s.sender.Send(ctx, pacs002MessageType, xmlDoc); err != nil {
		s.log.Warn("failed to send pacs.002", zap.String("withdrawal_id", withdrawalID), zap.Error(err))
	}

	s.log.Info("withdrawal closed",
		zap.String("withdrawal_id", withdrawalID),
		zap.String("status", target),
		zap.String("actor", actor),
	)

	w := result.Withdrawal
	msg := fmt.Sprintf("Your withdrawal of %s has been paid out.", FormatMinor(w.Amount, w.Currency))
	if !accepted {
		msg = fmt.Sprintf("Your withdrawal of %s was rejected and returned to your balance.", FormatMinor(w.Amount, w.Currency))
	}
	notifyAll(ctx, s.notifier, models.Notification{
		UserID:  w.UserID,
		Type:    models.NotifyWithdrawal,
		Title:   "Withdrawal update",
		Message: msg,
		Data:    map[string]any{"withdrawalId": w.ID, "status": w.Status},
	})
	return result, nil
}

func (s *PayoutService) GetWithdrawal(ctx context.Context, withdrawalID string) (*models.Withdrawal, error) {
	w, err := scanWithdrawal(s.db.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, withdrawalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError(MsgWithdrawalNotFound)
	}
	return w, err
}

func (s *PayoutService) withdrawalByKey(ctx context.Context, tx *sql.Tx, key string) (*models.Withdrawal, error) {
	w, err := scanWithdrawal(tx.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE idempotency_key = $1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("journal entry %s has no withdrawal", key)
	}
	return w, err
}

func scanWithdrawal(row rowScanner) (*models.Withdrawal, error) {
	var w models.Withdrawal
	var messageID sql.NullString
	var settledAt sql.NullTime
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Currency, &w.BankCode, &w.AccountNumber, &w.AccountName,
		&w.Status, &w.IdempotencyKey, &messageID, &w.CreatedAt, &settledAt)
	if err != nil {
		return nil, err
	}
	if messageID.Valid {
		w.MessageID = &messageID.String
	}
	w.SettledAt = timePtr(settledAt)
	return &w, nil
}
