package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gigbook/backend/internal/logger"
	"github.com/gigbook/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type paymentGateway interface {
	HandleWebhook(ctx context.Context, provider string, payload []byte, header http.Header) (*services.GatewayResult, error)
	VerifyPayment(ctx context.Context, provider, reference string) (*services.GatewayResult, error)
}

type PaymentHandler struct {
	gateway paymentGateway
	log     *zap.Logger
}

func NewPaymentHandler(gateway paymentGateway, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{gateway: gateway, log: logger.OrNop(log).Named("http.payments")}
}

type verifyPaymentRequest struct {
	Provider  string `json:"provider"`
	Reference string `json:"reference"`
}

// VerifyPayment asks the provider for the outcome of a payment reference
// @Summary Verify payment
// @Description Client-polled verification. Safe to repeat.
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body verifyPaymentRequest true "Provider and reference"
// @Success 200 {object} services.GatewayResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /payments/verify [post]
func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Provider == "" || req.Reference == "" {
		services.SendErrorResponse(w, "provider and reference are required", http.StatusBadRequest, nil)
		return
	}

	result, err := h.gateway.VerifyPayment(r.Context(), req.Provider, req.Reference)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Webhook receives provider callbacks
// @Summary Payment webhook
// @Tags Payments
// @Accept json
// @Produce json
// @Param provider path string true "Provider name"
// @Success 200 {object} services.GatewayResult
// @Failure 400 {object} services.ErrorResponse
// @Router /webhooks/payments/{provider} [post]
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	result, err := h.gateway.HandleWebhook(r.Context(), chi.URLParam(r, "provider"), payload, r.Header)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
