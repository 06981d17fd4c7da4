package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gigbook/backend/internal/audit"
	"github.com/gigbook/backend/internal/database"
	"github.com/gigbook/backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EscrowConfig is the escrow engine's slice of the service configuration.
type EscrowConfig struct {
	FeeRate          decimal.Decimal
	AutoReleaseAfter time.Duration
}

// EscrowService owns the booking payment state machine: held funds are either
// released to the musician or refunded, once.
type EscrowService struct {
	db       *sql.DB
	ledger   *LedgerService
	notifier Notifier
	audit    *audit.Logger
	log      *zap.Logger
	cfg      EscrowConfig
	now      func() time.Time
}

func NewEscrowService(db *sql.DB, ledger *LedgerService, notifier Notifier, auditLog *audit.Logger, log *zap.Logger, cfg EscrowConfig) *EscrowService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.AutoReleaseAfter <= 0 {
		cfg.AutoReleaseAfter = 24 * time.Hour
	}
	return &EscrowService{
		db:       db,
		ledger:   ledger,
		notifier: orNopNotifier(notifier),
		audit:    auditLog,
		log:      log.Named("escrow"),
		cfg:      cfg,
		now:      time.Now,
	}
}

// PaymentAcceptance is a verified provider payment for a booking.
type PaymentAcceptance struct {
	BookingID         string
	GrossAmount       int64
	Currency          string
	ProviderReference string
	Provider          string
	// FeeRate overrides the configured platform fee when set.
	FeeRate *decimal.Decimal
}

// EscrowResult is the entry after an operation. Applied is false when the
// call was a replay and changed nothing.
type EscrowResult struct {
	Entry   *models.EscrowEntry `json:"entry"`
	Applied bool                `json:"applied"`
}

type RefundResult struct {
	Entry    *models.EscrowEntry `json:"entry"`
	Applied  bool                `json:"applied"`
	Amount   int64               `json:"amount"`
	ToWallet bool                `json:"to_wallet"`
}

// PaymentKey is the journal idempotency key for a provider payment reference.
func PaymentKey(reference string) string {
	return "payment:" + reference
}

// AcceptPayment moves a verified payment into escrow and credits the
// musician's held balance. Replaying the same payment returns the existing
// entry with Applied=false; a different amount for a paid booking is a
// conflict.
func (s *EscrowService) AcceptPayment(ctx context.Context, p PaymentAcceptance) (*EscrowResult, error) {
	if p.BookingID == "" {
		return nil, validationError(MsgBookingNotFound)
	}
	if p.ProviderReference == "" {
		return nil, validationError(MsgMissingReference)
	}
	if p.GrossAmount <= 0 {
		return nil, validationError(MsgInvalidAmount)
	}

	rate := s.cfg.FeeRate
	if p.FeeRate != nil {
		rate = *p.FeeRate
	}

	var result *EscrowResult
	var booking *models.Booking
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		b, err := lockBookingTx(ctx, tx, p.BookingID)
		if err != nil {
			return err
		}
		booking = b

		existing, err := escrowForBookingTx(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.GrossAmount != p.GrossAmount {
				return conflictError(MsgAlreadyPaid)
			}
			if existing.ProviderReference != p.ProviderReference {
				s.log.Warn("second payment reference for an escrowed booking",
					zap.String("booking_id", b.ID),
					zap.String("escrow_reference", existing.ProviderReference),
					zap.String("reference", p.ProviderReference),
				)
				// The client was charged twice; the second charge goes back
				// through the provider.
				if err := s.recordRefundObligationTx(ctx, tx, refundObligation{
					EscrowID:  existing.ID,
					BookingID: b.ID,
					ClientID:  existing.ClientID,
					Amount:    p.GrossAmount,
					Currency:  existing.Currency,
					Reference: p.ProviderReference,
					Reason:    obligationDuplicateCharge,
				}); err != nil {
					return err
				}
			}
			result = &EscrowResult{Entry: existing, Applied: false}
			return nil
		}

		switch {
		case b.Status == models.BookingCancelled:
			return conflictError(MsgBookingCancelled)
		case b.PaymentStatus == models.PaymentPaid || b.PaymentStatus == models.PaymentRefunded:
			return conflictError(MsgAlreadyPaid)
		case p.GrossAmount != b.Amount:
			return conflictError(MsgAmountMismatch)
		case p.Currency != "" && p.Currency != b.Currency:
			return validationError(MsgUnsupportedCurrency)
		}

		entry, err := s.createEscrowTx(ctx, tx, b, p.GrossAmount, rate, p.ProviderReference, models.OpPayment)
		if err != nil {
			return err
		}
		result = &EscrowResult{Entry: entry, Applied: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied {
		s.audit.LogTransition(booking.ID, result.Entry.ID, "", string(models.EscrowHeld), p.Provider)
		s.log.Info("payment accepted into escrow",
			zap.String("booking_id", booking.ID),
			zap.String("escrow_id", result.Entry.ID),
			zap.Int64("gross", result.Entry.GrossAmount),
			zap.Int64("net", result.Entry.NetAmount),
		)
		notifyAll(ctx, s.notifier, paymentNotifications(booking, result.Entry)...)
	}
	return result, nil
}

// PayFromWallet pays a booking out of the client's available balance. The
// debit and the escrow entry commit together or not at all.
func (s *EscrowService) PayFromWallet(ctx context.Context, clientID, bookingID string, amount int64) (*EscrowResult, error) {
	if amount <= 0 {
		return nil, validationError(MsgInvalidAmount)
	}

	var result *EscrowResult
	var booking *models.Booking
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		b, err := lockBookingTx(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		booking = b

		if b.ClientID != clientID {
			return forbiddenError(MsgNotYourBooking)
		}

		existing, err := escrowForBookingTx(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		switch {
		case existing != nil, b.PaymentStatus == models.PaymentPaid, b.PaymentStatus == models.PaymentRefunded:
			return conflictError(MsgAlreadyPaid)
		case b.Status == models.BookingCancelled:
			return conflictError(MsgBookingCancelled)
		case amount != b.Amount:
			return validationError(MsgAmountMismatch)
		}

		if err := s.ledger.LockWalletsTx(ctx, tx, clientID, b.MusicianID); err != nil {
			return err
		}

		reference := "wallet:" + b.ID
		debit, err := s.ledger.ApplyTx(ctx, tx, Mutation{
			UserID:    clientID,
			Currency:  b.Currency,
			Key:       "wallet-payment:" + b.ID,
			Operation: models.OpWalletPayment,
			Amount:    amount,
			Available: -amount,
		})
		if err != nil {
			return err
		}
		if !debit.Applied {
			return conflictError(MsgAlreadyPaid)
		}

		entry, err := s.createEscrowTx(ctx, tx, b, amount, s.cfg.FeeRate, reference, models.OpPayment)
		if err != nil {
			return err
		}
		result = &EscrowResult{Entry: entry, Applied: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogTransition(booking.ID, result.Entry.ID, "", string(models.EscrowHeld), clientID)
	notifyAll(ctx, s.notifier, paymentNotifications(booking, result.Entry)...)
	return result, nil
}

// Release moves a held entry's net amount to the musician's available balance.
// Releasing an entry that is already released or refunded succeeds without
// changing anything.
func (s *EscrowService) Release(ctx context.Context, escrowID, releasedBy string, reason models.ReleaseReason) (*EscrowResult, error) {
	var bookingID string
	err := s.db.QueryRowContext(ctx,
		`SELECT booking_id FROM escrow_entries WHERE id = $1`, escrowID).Scan(&bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError(MsgEscrowNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.ReleaseForBooking(ctx, bookingID, releasedBy, reason, false)
}

// ReleaseForBooking releases the booking's escrow entry. Manual releases come
// from the booking's client (or an admin) and ignore the event date; automatic
// releases require the booking to have been marked complete long enough ago.
func (s *EscrowService) ReleaseForBooking(ctx context.Context, bookingID, releasedBy string, reason models.ReleaseReason, asAdmin bool) (*EscrowResult, error) {
	if reason != models.ReleaseManual && reason != models.ReleaseAuto {
		return nil, validationError("Invalid release reason")
	}

	var result *EscrowResult
	var booking *models.Booking
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		b, err := lockBookingTx(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		booking = b

		entry, err := escrowForBookingTx(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if entry == nil {
			return notFoundError(MsgEscrowNotFound)
		}
		if reason == models.ReleaseManual && !asAdmin && releasedBy != b.ClientID {
			return forbiddenError(MsgNotYourBooking)
		}
		if entry.IsTerminal() {
			result = &EscrowResult{Entry: entry, Applied: false}
			return nil
		}
		if reason == models.ReleaseAuto && !s.autoReleaseDue(b) {
			return validationError(MsgNotEligible)
		}
		if b.PaymentStatus != models.PaymentPaid {
			return conflictError(MsgNotPaid)
		}

		res, err := s.ledger.ReleaseToAvailableTx(ctx, tx, entry, "release:"+entry.ID)
		if err != nil {
			return err
		}
		if !res.Applied {
			s.log.Warn("release journal entry already present for held escrow", zap.String("escrow_id", entry.ID))
		}

		now := s.now()
		if err := s.transitionTx(ctx, tx, entry, models.EscrowReleased, reason, releasedBy, now); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE bookings SET funds_released_at = $1, updated_at = $1
			WHERE id = $2 AND funds_released_at IS NULL`,
			now, b.ID); err != nil {
			return err
		}

		result = &EscrowResult{Entry: entry, Applied: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied {
		s.audit.LogTransition(booking.ID, result.Entry.ID, string(models.EscrowHeld), string(models.EscrowReleased), releasedBy)
		notifyAll(ctx, s.notifier, models.Notification{
			UserID:  booking.MusicianID,
			Type:    models.NotifyFundsReleased,
			Title:   "Funds released",
			Message: fmt.Sprintf("%s is now available to withdraw.", FormatMinor(result.Entry.NetAmount, result.Entry.Currency)),
			Data: map[string]any{
				"bookingId": booking.ID,
				"escrowId":  result.Entry.ID,
				"reason":    string(reason),
			},
		})
	}
	return result, nil
}

// Refund reverses a held payment. The client's wallet is credited with the
// gross amount when it exists; otherwise a provider refund obligation is
// recorded.
func (s *EscrowService) Refund(ctx context.Context, bookingID, actor string) (*RefundResult, error) {
	var result *RefundResult
	var booking *models.Booking
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		b, err := lockBookingTx(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		booking = b

		result, err = s.refundTx(ctx, tx, b, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Applied {
		notifyAll(ctx, s.notifier, refundNotification(booking, result))
	}
	return result, nil
}

// refundTx refunds a booking already locked by the caller.
func (s *EscrowService) refundTx(ctx context.Context, tx *sql.Tx, b *models.Booking, actor string) (*RefundResult, error) {
	entry, err := escrowForBookingTx(ctx, tx, b.ID)
	if err != nil {
		return nil, err
	}

	if b.PaymentStatus == models.PaymentRefunded || (entry != nil && entry.IsTerminal()) {
		return &RefundResult{Entry: entry, Applied: false}, nil
	}
	if b.PaymentStatus != models.PaymentPaid {
		return nil, conflictError(MsgNotPaid)
	}
	if entry == nil {
		return nil, notFoundError(MsgEscrowNotFound)
	}

	clientCurrency, hasWallet, err := s.walletCurrencyTx(ctx, tx, entry.ClientID)
	if err != nil {
		return nil, err
	}
	toWallet := hasWallet && clientCurrency == entry.Currency

	lockIDs := []string{entry.MusicianID}
	if toWallet {
		lockIDs = append(lockIDs, entry.ClientID)
	}
	if err := s.ledger.LockWalletsTx(ctx, tx, lockIDs...); err != nil {
		return nil, err
	}

	if _, err := s.ledger.ApplyTx(ctx, tx, Mutation{
		UserID:    entry.MusicianID,
		Currency:  entry.Currency,
		Key:       "refund:" + entry.ID,
		EscrowID:  entry.ID,
		Operation: models.OpRefund,
		Amount:    entry.NetAmount,
		Ledger:    -entry.NetAmount,
	}); err != nil {
		return nil, err
	}

	if toWallet {
		if _, err := s.ledger.ApplyTx(ctx, tx, Mutation{
			UserID:    entry.ClientID,
			Currency:  entry.Currency,
			Key:       "refund-credit:" + entry.ID,
			EscrowID:  entry.ID,
			Operation: models.OpRefundCredit,
			Amount:    entry.GrossAmount,
			Available: entry.GrossAmount,
		}); err != nil {
			return nil, err
		}
	} else {
		if err := s.recordRefundObligationTx(ctx, tx, refundObligation{
			EscrowID:  entry.ID,
			BookingID: b.ID,
			ClientID:  entry.ClientID,
			Amount:    entry.GrossAmount,
			Currency:  entry.Currency,
			Reference: entry.ProviderReference,
			Reason:    obligationCancellation,
		}); err != nil {
			return nil, err
		}
	}

	now := s.now()
	if err := s.transitionTx(ctx, tx, entry, models.EscrowRefunded, models.ReleaseRefund, actor, now); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE bookings SET payment_status = 'refunded', updated_at = $1
		WHERE id = $2`,
		now, b.ID); err != nil {
		return nil, err
	}
	b.PaymentStatus = models.PaymentRefunded

	s.audit.LogTransition(b.ID, entry.ID, string(models.EscrowHeld), string(models.EscrowRefunded), actor)
	return &RefundResult{Entry: entry, Applied: true, Amount: entry.GrossAmount, ToWallet: toWallet}, nil
}

// MarkPaymentFailed records a provider failure. Bookings that are already
// paid or refunded keep their status; no wallet is touched.
func (s *EscrowService) MarkPaymentFailed(ctx context.Context, bookingID, reference string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bookings SET payment_status = 'failed', updated_at = $1
		WHERE id = $2 AND payment_status IN ('unpaid', 'failed')`,
		s.now(), bookingID)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rowsAffected == 0 {
		if _, err := getBooking(ctx, s.db, bookingID); err != nil {
			return false, err
		}
		s.log.Info("ignoring failed payment for settled booking",
			zap.String("booking_id", bookingID), zap.String("reference", reference))
		return false, nil
	}
	return true, nil
}

// FindByReference returns the escrow entry created for a provider reference,
// or nil when the reference has not been applied.
func (s *EscrowService) FindByReference(ctx context.Context, reference string) (*models.EscrowEntry, error) {
	entry, err := scanEscrow(s.db.QueryRowContext(ctx, `
		SELECT `+escrowColumns+`
		FROM escrow_entries
		WHERE id = (SELECT escrow_id FROM wallet_journal WHERE idempotency_key = $1)`,
		PaymentKey(reference)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

func (s *EscrowService) GetEscrowByBooking(ctx context.Context, bookingID string) (*models.EscrowEntry, error) {
	entry, err := scanEscrow(s.db.QueryRowContext(ctx,
		`SELECT `+escrowColumns+` FROM escrow_entries WHERE booking_id = $1`, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError(MsgEscrowNotFound)
	}
	return entry, err
}

func (s *EscrowService) autoReleaseDue(b *models.Booking) bool {
	if b.Status != models.BookingCompleted || b.MarkedCompleteAt == nil {
		return false
	}
	return s.now().Sub(*b.MarkedCompleteAt) >= s.cfg.AutoReleaseAfter
}

func (s *EscrowService) createEscrowTx(ctx context.Context, tx *sql.Tx, b *models.Booking, gross int64, rate decimal.Decimal, reference string, op models.JournalOperation) (*models.EscrowEntry, error) {
	fee, net := SplitFee(gross, rate)
	entry := &models.EscrowEntry{
		ID:                uuid.NewString(),
		BookingID:         b.ID,
		MusicianID:        b.MusicianID,
		ClientID:          b.ClientID,
		GrossAmount:       gross,
		PlatformFee:       fee,
		NetAmount:         net,
		Currency:          b.Currency,
		State:             models.EscrowHeld,
		ProviderReference: reference,
		CreatedAt:         s.now(),
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO escrow_entries (id, booking_id, musician_id, client_id, gross_amount, platform_fee,
			net_amount, currency, state, provider_reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.BookingID, entry.MusicianID, entry.ClientID, entry.GrossAmount, entry.PlatformFee,
		entry.NetAmount, entry.Currency, string(entry.State), entry.ProviderReference, entry.CreatedAt); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, conflictError(MsgAlreadyPaid)
		}
		return nil, err
	}

	credit, err := s.ledger.ApplyTx(ctx, tx, Mutation{
		UserID:       b.MusicianID,
		Currency:     b.Currency,
		Key:          PaymentKey(reference),
		EscrowID:     entry.ID,
		Operation:    op,
		Amount:       net,
		Ledger:       net,
		CreateWallet: true,
	})
	if err != nil {
		return nil, err
	}
	if !credit.Applied {
		return nil, conflictError(MsgReferenceReused)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET payment_status = 'paid',
			status = CASE WHEN status = 'pending' THEN 'confirmed' ELSE status END,
			updated_at = $1
		WHERE id = $2`,
		entry.CreatedAt, b.ID); err != nil {
		return nil, err
	}
	b.PaymentStatus = models.PaymentPaid
	if b.Status == models.BookingPending {
		b.Status = models.BookingConfirmed
	}
	return entry, nil
}

// transitionTx moves a held entry to a terminal state. The state guard in the
// WHERE clause makes a lost race visible as zero rows.
func (s *EscrowService) transitionTx(ctx context.Context, tx *sql.Tx, entry *models.EscrowEntry, to models.EscrowState, reason models.ReleaseReason, actor string, at time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE escrow_entries
		SET state = $1, release_reason = $2, released_by = $3, released_at = $4
		WHERE id = $5 AND state = 'held'`,
		string(to), string(reason), nullString(actor), at, entry.ID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("escrow %s left held state concurrently", entry.ID)
	}

	entry.State = to
	entry.ReleaseReason = &reason
	if actor != "" {
		entry.ReleasedBy = &actor
	}
	entry.ReleasedAt = &at
	return nil
}

const (
	obligationCancellation    = "cancellation"
	obligationDuplicateCharge = "duplicate_charge"
)

// refundObligation is money owed back to a client through the payment
// provider rather than through their wallet.
type refundObligation struct {
	EscrowID  string
	BookingID string
	ClientID  string
	Amount    int64
	Currency  string
	Reference string
	Reason    string
}

// recordRefundObligationTx writes at most one obligation per provider
// reference.
func (s *EscrowService) recordRefundObligationTx(ctx context.Context, tx *sql.Tx, o refundObligation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO refund_obligations (id, escrow_id, booking_id, client_id, amount, currency,
			provider_reference, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider_reference) DO NOTHING`,
		uuid.NewString(), o.EscrowID, o.BookingID, o.ClientID, o.Amount, o.Currency,
		o.Reference, o.Reason, s.now())
	return err
}

func (s *EscrowService) walletCurrencyTx(ctx context.Context, tx *sql.Tx, userID string) (string, bool, error) {
	var currency string
	err := tx.QueryRowContext(ctx, `SELECT currency FROM wallets WHERE user_id = $1`, userID).Scan(&currency)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return currency, true, nil
}

func paymentNotifications(b *models.Booking, e *models.EscrowEntry) []models.Notification {
	data := map[string]any{"bookingId": b.ID, "escrowId": e.ID}
	return []models.Notification{
		{
			UserID:  b.MusicianID,
			Type:    models.NotifyPaymentReceived,
			Title:   "Payment received",
			Message: fmt.Sprintf("%s is held in escrow for your booking.", FormatMinor(e.NetAmount, e.Currency)),
			Data:    data,
		},
		{
			UserID:  b.ClientID,
			Type:    models.NotifyBookingConfirmed,
			Title:   "Booking paid",
			Message: fmt.Sprintf("Your payment of %s is held until the gig is complete.", FormatMinor(e.GrossAmount, e.Currency)),
			Data:    data,
		},
	}
}

func refundNotification(b *models.Booking, r *RefundResult) models.Notification {
	msg := fmt.Sprintf("%s has been returned to your wallet.", FormatMinor(r.Amount, r.Entry.Currency))
	if !r.ToWallet {
		msg = fmt.Sprintf("A refund of %s has been sent to your payment method.", FormatMinor(r.Amount, r.Entry.Currency))
	}
	return models.Notification{
		UserID:  b.ClientID,
		Type:    models.NotifyRefundIssued,
		Title:   "Refund issued",
		Message: msg,
		Data:    map[string]any{"bookingId": b.ID, "escrowId": r.Entry.ID},
	}
}
