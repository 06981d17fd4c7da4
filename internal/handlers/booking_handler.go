package handlers

import (
	"context"
	"net/http"

	"github.com/gigbook/backend/internal/logger"
	mw "github.com/gigbook/backend/internal/middleware"
	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type bookingService interface {
	CreateBooking(ctx context.Context, req services.CreateBookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID, userID string, asAdmin bool) (*models.Booking, error)
	CancelBooking(ctx context.Context, req services.CancellationRequest) (*models.Cancellation, error)
	MarkComplete(ctx context.Context, bookingID, musicianID string) (*services.CompletionResult, error)
}

type escrowService interface {
	Release(ctx context.Context, escrowID, releasedBy string, reason models.ReleaseReason) (*services.EscrowResult, error)
	ReleaseForBooking(ctx context.Context, bookingID, releasedBy string, reason models.ReleaseReason, asAdmin bool) (*services.EscrowResult, error)
	PayFromWallet(ctx context.Context, clientID, bookingID string, amount int64) (*services.EscrowResult, error)
	Refund(ctx context.Context, bookingID, actor string) (*services.RefundResult, error)
	GetEscrowByBooking(ctx context.Context, bookingID string) (*models.EscrowEntry, error)
}

type BookingHandler struct {
	bookings bookingService
	escrow   escrowService
	log      *zap.Logger
}

func NewBookingHandler(bookings bookingService, escrow escrowService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, escrow: escrow, log: logger.OrNop(log).Named("http.bookings")}
}

// CreateBooking creates an unpaid booking for the caller
// @Summary Create booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateBookingRequest true "Booking"
// @Success 201 {object} models.Booking
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /bookings [post]
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req services.CreateBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ClientID = mw.UserID(r.Context())

	booking, err := h.bookings.CreateBooking(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// GetBooking returns a booking the caller is party to
// @Summary Get booking
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Failure 404 {object} services.ErrorResponse
// @Router /bookings/{bookingId} [get]
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	booking, err := h.bookings.GetBooking(ctx, chi.URLParam(r, "bookingId"), mw.UserID(ctx), mw.IsAdmin(ctx))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// GetEscrow returns the escrow entry of a booking the caller is party to
// @Summary Get booking escrow
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Success 200 {object} models.EscrowEntry
// @Failure 404 {object} services.ErrorResponse
// @Router /bookings/{bookingId}/escrow [get]
func (h *BookingHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	booking, err := h.bookings.GetBooking(ctx, chi.URLParam(r, "bookingId"), mw.UserID(ctx), mw.IsAdmin(ctx))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	entry, err := h.escrow.GetEscrowByBooking(ctx, booking.ID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type cancelBookingRequest struct {
	Role     models.Role                 `json:"role"`
	Category models.CancellationCategory `json:"category"`
	Reason   string                      `json:"reason"`
}

// CancelBooking cancels a booking and refunds any held payment
// @Summary Cancel booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Param request body cancelBookingRequest true "Cancellation"
// @Success 200 {object} models.Cancellation
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /bookings/{bookingId}/cancel [post]
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var body cancelBookingRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	cancellation, err := h.bookings.CancelBooking(r.Context(), services.CancellationRequest{
		BookingID:   chi.URLParam(r, "bookingId"),
		CancelledBy: mw.UserID(r.Context()),
		Role:        body.Role,
		Reason:      body.Reason,
		Category:    body.Category,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, cancellation)
}

// MarkComplete records that the gig took place
// @Summary Mark booking complete
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Success 200 {object} services.CompletionResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /bookings/{bookingId}/complete [post]
func (h *BookingHandler) MarkComplete(w http.ResponseWriter, r *http.Request) {
	result, err := h.bookings.MarkComplete(r.Context(), chi.URLParam(r, "bookingId"), mw.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ReleaseFunds releases held funds to the musician ahead of auto-release
// @Summary Release escrow
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Success 200 {object} services.EscrowResult
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /bookings/{bookingId}/release [post]
func (h *BookingHandler) ReleaseFunds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.escrow.ReleaseForBooking(ctx, chi.URLParam(r, "bookingId"), mw.UserID(ctx), models.ReleaseManual, mw.IsAdmin(ctx))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ReleaseEscrow releases an escrow entry by id. Only the booking's client may
// release early.
// @Summary Release escrow entry
// @Tags Bookings
// @Produce json
// @Security BearerAuth
// @Param escrowId path string true "Escrow entry ID"
// @Success 200 {object} services.EscrowResult
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /escrow/{escrowId}/release [post]
func (h *BookingHandler) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	result, err := h.escrow.Release(r.Context(), chi.URLParam(r, "escrowId"), mw.UserID(r.Context()), models.ReleaseManual)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type payFromWalletRequest struct {
	Amount int64 `json:"amount"`
}

// PayFromWallet pays a booking from the caller's available balance
// @Summary Pay booking from wallet
// @Tags Bookings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Param request body payFromWalletRequest true "Amount in minor units"
// @Success 200 {object} services.EscrowResult
// @Failure 402 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /bookings/{bookingId}/pay-from-wallet [post]
func (h *BookingHandler) PayFromWallet(w http.ResponseWriter, r *http.Request) {
	var body payFromWalletRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := h.escrow.PayFromWallet(r.Context(), mw.UserID(r.Context()), chi.URLParam(r, "bookingId"), body.Amount)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
