package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gigbook/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateBookingRequest struct {
	ClientID   string    `json:"-"`
	MusicianID string    `json:"musicianId" validate:"required"`
	EventID    string    `json:"eventId" validate:"max=64"`
	Amount     int64     `json:"amount" validate:"required,gt=0"`
	Currency   string    `json:"currency" validate:"omitempty,len=3"`
	EventStart time.Time `json:"eventStart" validate:"required"`
}

type CancellationRequest struct {
	BookingID   string                      `json:"bookingId" validate:"required"`
	CancelledBy string                      `json:"cancelledBy" validate:"required"`
	Role        models.Role                 `json:"role" validate:"required,oneof=CLIENT MUSICIAN"`
	Reason      string                      `json:"reason" validate:"max=500"`
	Category    models.CancellationCategory `json:"category" validate:"required,oneof=client_request musician_request no_show"`
}

type CompletionResult struct {
	Booking       *models.Booking `json:"booking"`
	AutoReleaseAt time.Time       `json:"auto_release_at"`
}

type BookingConfig struct {
	Currency         string
	AutoReleaseAfter time.Duration
	LateCancelWindow time.Duration
}

// BookingService drives the lifecycle events that move money: cancellation
// and completion. Each runs in one transaction with the escrow and
// compliance updates it causes.
type BookingService struct {
	db         *sql.DB
	escrow     *EscrowService
	compliance *ComplianceService
	notifier   Notifier
	validator  *ValidationHelper
	log        *zap.Logger
	cfg        BookingConfig
	now        func() time.Time
}

func NewBookingService(db *sql.DB, escrow *EscrowService, compliance *ComplianceService, notifier Notifier, log *zap.Logger, cfg BookingConfig) *BookingService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.AutoReleaseAfter <= 0 {
		cfg.AutoReleaseAfter = 24 * time.Hour
	}
	if cfg.LateCancelWindow <= 0 {
		cfg.LateCancelWindow = 24 * time.Hour
	}
	return &BookingService{
		db:         db,
		escrow:     escrow,
		compliance: compliance,
		notifier:   orNopNotifier(notifier),
		validator:  NewValidationHelper(),
		log:        log.Named("bookings"),
		cfg:        cfg,
		now:        time.Now,
	}
}

func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}
	if req.ClientID == "" {
		return nil, forbiddenError(MsgNotYourBooking)
	}
	if req.ClientID == req.MusicianID {
		return nil, validationError("Cannot book yourself")
	}

	now := s.now()
	if !req.EventStart.After(now) {
		return nil, validationError(MsgEventInPast)
	}

	var available bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_available FROM musicians WHERE id = $1`, req.MusicianID).Scan(&available)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Profiles live in another service; no row means no restriction.
	case err != nil:
		return nil, err
	case !available:
		return nil, conflictError(MsgMusicianUnavailable)
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.cfg.Currency
	}

	b := &models.Booking{
		ID:            uuid.NewString(),
		MusicianID:    req.MusicianID,
		ClientID:      req.ClientID,
		EventID:       req.EventID,
		Amount:        req.Amount,
		Currency:      currency,
		Status:        models.BookingPending,
		PaymentStatus: models.PaymentUnpaid,
		EventStart:    req.EventStart.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, musician_id, client_id, event_id, amount, currency, status, payment_status,
			event_start, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.MusicianID, b.ClientID, b.EventID, b.Amount, b.Currency, string(b.Status),
		string(b.PaymentStatus), b.EventStart, b.CreatedAt, b.UpdatedAt); err != nil {
		return nil, err
	}
	return b, nil
}

// GetBooking returns a booking visible to userID. Admins see every booking.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, userID string, asAdmin bool) (*models.Booking, error) {
	b, err := getBooking(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if !asAdmin && userID != b.ClientID && userID != b.MusicianID {
		// Hide existence from non-parties.
		return nil, notFoundError(MsgBookingNotFound)
	}
	return b, nil
}

// CancelBooking cancels a booking, refunds any held payment and records a
// compliance violation when the musician is at fault.
func (s *BookingService) CancelBooking(ctx context.Context, req CancellationRequest) (*models.Cancellation, error) {
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}
	if !categoryAllowed(req.Role, req.Category) {
		return nil, validationError(MsgCategoryRoleMismatch)
	}

	var (
		cancellation *models.Cancellation
		booking      *models.Booking
		refund       *RefundResult
		transition   *ComplianceTransition
	)
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		b, err := lockBookingTx(ctx, tx, req.BookingID)
		if err != nil {
			return err
		}
		booking = b

		if !isParty(b, req.Role, req.CancelledBy) {
			return forbiddenError(MsgNotYourBooking)
		}
		switch {
		case b.Status == models.BookingCancelled:
			return conflictError(MsgBookingCancelled)
		case b.Status == models.BookingCompleted:
			return conflictError(MsgBookingCompleted)
		case b.FundsReleasedAt != nil:
			return conflictError(MsgFundsReleased)
		}

		now := s.now()
		if req.Category == models.CategoryNoShow && now.Before(b.EventStart) {
			return validationError(MsgNoShowBeforeEvent)
		}
		late := IsLateCancellation(b.EventStart, now, s.cfg.LateCancelWindow)
		kind, penalised := ViolationFor(req.Category, late)

		c := &models.Cancellation{
			ID:                 uuid.NewString(),
			BookingID:          b.ID,
			CancelledBy:        req.CancelledBy,
			Role:               req.Role,
			Category:           req.Category,
			Reason:             req.Reason,
			IsLateCancellation: late,
			PenaltyApplied:     penalised,
			CreatedAt:          now,
		}

		if b.PaymentStatus == models.PaymentPaid {
			refund, err = s.escrow.refundTx(ctx, tx, b, req.CancelledBy)
			if err != nil {
				return err
			}
			if refund.Entry != nil && refund.Entry.State == models.EscrowReleased {
				return conflictError(MsgFundsReleased)
			}
			if refund.Applied {
				c.RefundIssued = true
				c.RefundAmount = refund.Amount
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cancellations (id, booking_id, cancelled_by, role, category, reason,
				is_late_cancellation, penalty_applied, refund_issued, refund_amount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			c.ID, c.BookingID, c.CancelledBy, string(c.Role), string(c.Category), c.Reason,
			c.IsLateCancellation, c.PenaltyApplied, c.RefundIssued, c.RefundAmount, c.CreatedAt); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE bookings SET status = 'cancelled', updated_at = $1 WHERE id = $2`,
			now, b.ID); err != nil {
			return err
		}
		b.Status = models.BookingCancelled

		if penalised {
			transition, err = s.compliance.RecordViolationTx(ctx, tx, ViolationInput{
				MusicianID:     b.MusicianID,
				Kind:           kind,
				BookingID:      b.ID,
				CancellationID: c.ID,
			})
			if err != nil {
				return err
			}
		}

		cancellation = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking cancelled",
		zap.String("booking_id", booking.ID),
		zap.String("category", string(req.Category)),
		zap.Bool("late", cancellation.IsLateCancellation),
		zap.Bool("refund_issued", cancellation.RefundIssued),
	)

	notes := cancellationNotifications(booking, cancellation)
	if refund != nil && refund.Applied {
		notes = append(notes, refundNotification(booking, refund))
	}
	notifyAll(ctx, s.notifier, notes...)
	s.compliance.Announce(ctx, transition)
	return cancellation, nil
}

// MarkComplete records that the gig happened. Funds become eligible for
// automatic release once the auto-release delay has passed.
func (s *BookingService) MarkComplete(ctx context.Context, bookingID, musicianID string) (*CompletionResult, error) {
	var result *CompletionResult
	var changed bool
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		b, err := lockBookingTx(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if b.MusicianID != musicianID {
			return forbiddenError(MsgNotYourBooking)
		}
		if b.PaymentStatus != models.PaymentPaid {
			return validationError(MsgNotPaid)
		}

		now := s.now()
		if now.Before(b.EventStart) {
			return validationError(MsgCompleteBeforeEvent)
		}

		if b.Status == models.BookingCompleted && b.MarkedCompleteAt != nil {
			result = &CompletionResult{Booking: b, AutoReleaseAt: b.MarkedCompleteAt.Add(s.cfg.AutoReleaseAfter)}
			return nil
		}
		if b.Status != models.BookingConfirmed {
			return conflictError(MsgCannotComplete)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE bookings SET status = 'completed', marked_complete_at = $1, updated_at = $1
			WHERE id = $2`,
			now, b.ID); err != nil {
			return err
		}
		b.Status = models.BookingCompleted
		b.MarkedCompleteAt = &now
		b.UpdatedAt = now

		result = &CompletionResult{Booking: b, AutoReleaseAt: now.Add(s.cfg.AutoReleaseAfter)}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		notifyAll(ctx, s.notifier, models.Notification{
			UserID:  result.Booking.ClientID,
			Type:    models.NotifyBookingCompleted,
			Title:   "Gig marked complete",
			Message: fmt.Sprintf("Funds will be released to the musician at %s unless you release them sooner.", result.AutoReleaseAt.UTC().Format(time.RFC1123)),
			Data: map[string]any{
				"bookingId":     result.Booking.ID,
				"autoReleaseAt": result.AutoReleaseAt,
			},
		})
	}
	return result, nil
}

func categoryAllowed(role models.Role, category models.CancellationCategory) bool {
	switch category {
	case models.CategoryClientRequest, models.CategoryNoShow:
		return role == models.RoleClient
	case models.CategoryMusicianRequest:
		return role == models.RoleMusician
	}
	return false
}

func isParty(b *models.Booking, role models.Role, userID string) bool {
	switch role {
	case models.RoleClient:
		return b.ClientID == userID
	case models.RoleMusician:
		return b.MusicianID == userID
	}
	return false
}

func cancellationNotifications(b *models.Booking, c *models.Cancellation) []models.Notification {
	data := map[string]any{
		"bookingId":          b.ID,
		"cancellationId":     c.ID,
		"category":           string(c.Category),
		"isLateCancellation": c.IsLateCancellation,
	}
	counterpart := b.MusicianID
	if c.Role == models.RoleMusician {
		counterpart = b.ClientID
	}
	return []models.Notification{
		{
			UserID:  counterpart,
			Type:    models.NotifyBookingCancelled,
			Title:   "Booking cancelled",
			Message: "A booking you were part of has been cancelled.",
			Data:    data,
		},
		{
			UserID:  c.CancelledBy,
			Type:    models.NotifyBookingCancelled,
			Title:   "Cancellation confirmed",
			Message: "Your cancellation has been recorded.",
			Data:    data,
		},
	}
}
