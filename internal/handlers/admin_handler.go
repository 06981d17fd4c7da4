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

type complianceAdmin interface {
	RecordComplaint(ctx context.Context, musicianID, bookingID string) (*services.ComplianceTransition, error)
	GetRecord(ctx context.Context, musicianID string) (*models.ComplianceRecord, error)
	Reset(ctx context.Context, musicianID, actor string) error
}

// AdminHandler serves operator endpoints. Routes are mounted behind
// RequireRole(admin).
type AdminHandler struct {
	escrow     escrowService
	compliance complianceAdmin
	payouts    payoutService
	log        *zap.Logger
}

func NewAdminHandler(escrow escrowService, compliance complianceAdmin, payouts payoutService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		escrow:     escrow,
		compliance: compliance,
		payouts:    payouts,
		log:        logger.OrNop(log).Named("http.admin"),
	}
}

// RefundBooking refunds a held payment without cancelling through the booking flow
// @Summary Refund booking
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Booking ID"
// @Success 200 {object} services.RefundResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/bookings/{id}/refund [post]
func (h *AdminHandler) RefundBooking(w http.ResponseWriter, r *http.Request) {
	result, err := h.escrow.Refund(r.Context(), chi.URLParam(r, "id"), mw.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type complaintRequest struct {
	MusicianID string `json:"musicianId"`
	BookingID  string `json:"bookingId"`
}

// RecordComplaint adds a complaint to a musician's record
// @Summary Record complaint
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body complaintRequest true "Complaint"
// @Success 200 {object} object{transition=services.ComplianceTransition}
// @Router /admin/complaints [post]
func (h *AdminHandler) RecordComplaint(w http.ResponseWriter, r *http.Request) {
	var req complaintRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	transition, err := h.compliance.RecordComplaint(r.Context(), req.MusicianID, req.BookingID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "transition": transition})
}

// GetCompliance returns a musician's compliance record
// @Summary Get compliance record
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param musicianId path string true "Musician ID"
// @Success 200 {object} models.ComplianceRecord
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/compliance/{musicianId} [get]
func (h *AdminHandler) GetCompliance(w http.ResponseWriter, r *http.Request) {
	record, err := h.compliance.GetRecord(r.Context(), chi.URLParam(r, "musicianId"))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ResetCompliance clears a musician's counters and restores availability
// @Summary Reset compliance record
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param musicianId path string true "Musician ID"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/compliance/{musicianId}/reset [post]
func (h *AdminHandler) ResetCompliance(w http.ResponseWriter, r *http.Request) {
	if err := h.compliance.Reset(r.Context(), chi.URLParam(r, "musicianId"), mw.UserID(r.Context())); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type settleWithdrawalRequest struct {
	Accepted bool `json:"accepted"`
}

// SettleWithdrawal records the rail's outcome for a pending withdrawal
// @Summary Settle withdrawal
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Withdrawal ID"
// @Param request body settleWithdrawalRequest true "Outcome"
// @Success 200 {object} services.WithdrawalResult
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/withdrawals/{id}/settle [post]
func (h *AdminHandler) SettleWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req settleWithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.payouts.SettleWithdrawal(r.Context(), chi.URLParam(r, "id"), req.Accepted, mw.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
