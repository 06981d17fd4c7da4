package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gigbook/backend/internal/models"
)

const bookingColumns = `id, musician_id, client_id, event_id, amount, currency, status, payment_status,
	event_start, marked_complete_at, funds_released_at, created_at, updated_at`

const escrowColumns = `id, booking_id, musician_id, client_id, gross_amount, platform_fee, net_amount,
	currency, state, provider_reference, release_reason, released_by, created_at, released_at`

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var markedComplete, fundsReleased sql.NullTime
	err := row.Scan(&b.ID, &b.MusicianID, &b.ClientID, &b.EventID, &b.Amount, &b.Currency, &b.Status,
		&b.PaymentStatus, &b.EventStart, &markedComplete, &fundsReleased, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.MarkedCompleteAt = timePtr(markedComplete)
	b.FundsReleasedAt = timePtr(fundsReleased)
	return &b, nil
}

func scanEscrow(row rowScanner) (*models.EscrowEntry, error) {
	var e models.EscrowEntry
	var reason, releasedBy sql.NullString
	var releasedAt sql.NullTime
	err := row.Scan(&e.ID, &e.BookingID, &e.MusicianID, &e.ClientID, &e.GrossAmount, &e.PlatformFee,
		&e.NetAmount, &e.Currency, &e.State, &e.ProviderReference, &reason, &releasedBy, &e.CreatedAt, &releasedAt)
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		r := models.ReleaseReason(reason.String)
		e.ReleaseReason = &r
	}
	if releasedBy.Valid {
		e.ReleasedBy = &releasedBy.String
	}
	e.ReleasedAt = timePtr(releasedAt)
	return &e, nil
}

// lockBookingTx loads a booking and holds its row lock until tx ends. Every
// operation that touches a booking and its escrow entry locks the booking
// first.
func lockBookingTx(ctx context.Context, tx *sql.Tx, bookingID string) (*models.Booking, error) {
	b, err := scanBooking(tx.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError(MsgBookingNotFound)
	}
	return b, err
}

// escrowForBookingTx returns the booking's escrow entry, locked, or nil when
// none exists.
func escrowForBookingTx(ctx context.Context, tx *sql.Tx, bookingID string) (*models.EscrowEntry, error) {
	e, err := scanEscrow(tx.QueryRowContext(ctx,
		`SELECT `+escrowColumns+` FROM escrow_entries WHERE booking_id = $1 FOR UPDATE`, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func getBooking(ctx context.Context, q queryRower, bookingID string) (*models.Booking, error) {
	b, err := scanBooking(q.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError(MsgBookingNotFound)
	}
	return b, err
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
