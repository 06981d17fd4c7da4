package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gigbook/backend/internal/logger"
	mw "github.com/gigbook/backend/internal/middleware"
	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/services"
	"go.uber.org/zap"
)

type walletReader interface {
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
	ListJournal(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error)
}

type statementRenderer interface {
	WalletStatement(ctx context.Context, userID string) ([]byte, error)
}

type payoutService interface {
	RequestWithdrawal(ctx context.Context, req services.WithdrawalRequest) (*services.WithdrawalResult, error)
	SettleWithdrawal(ctx context.Context, withdrawalID string, accepted bool, actor string) (*services.WithdrawalResult, error)
	Banks() []services.Bank
}

type WalletHandler struct {
	wallets    walletReader
	statements statementRenderer
	payouts    payoutService
	log        *zap.Logger
}

func NewWalletHandler(wallets walletReader, statements statementRenderer, payouts payoutService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{
		wallets:    wallets,
		statements: statements,
		payouts:    payouts,
		log:        logger.OrNop(log).Named("http.wallet"),
	}
}

// GetWallet returns the caller's balances
// @Summary Get wallet
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Wallet
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet [get]
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.wallets.GetWallet(r.Context(), mw.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// ListJournal returns the caller's most recent journal entries
// @Summary Wallet journal
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max entries (default 100, max 500)"
// @Success 200 {array} models.JournalEntry
// @Router /wallet/journal [get]
func (h *WalletHandler) ListJournal(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			services.SendErrorResponse(w, "Invalid limit", http.StatusBadRequest, nil)
			return
		}
		limit = n
	}

	entries, err := h.wallets.ListJournal(r.Context(), mw.UserID(r.Context()), limit)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Statement renders the caller's wallet statement as PDF
// @Summary Wallet statement
// @Tags Wallet
// @Produce application/pdf
// @Security BearerAuth
// @Success 200 {file} binary
// @Router /wallet/statement [get]
func (h *WalletHandler) Statement(w http.ResponseWriter, r *http.Request) {
	pdf, err := h.statements.WalletStatement(r.Context(), mw.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="wallet-statement.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// ListBanks returns the institutions withdrawals can be paid to
// @Summary List payout banks
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {array} services.Bank
// @Router /banks [get]
func (h *WalletHandler) ListBanks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=86400")
	writeJSON(w, http.StatusOK, h.payouts.Banks())
}

// RequestWithdrawal pays out part of the caller's available balance
// @Summary Request withdrawal
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Used when the body has no idempotencyKey"
// @Param request body services.WithdrawalRequest true "Withdrawal"
// @Success 201 {object} services.WithdrawalResult
// @Success 200 {object} services.WithdrawalResult "Replayed request"
// @Failure 402 {object} services.ErrorResponse
// @Router /wallet/withdrawals [post]
func (h *WalletHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req services.WithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.UserID = mw.UserID(r.Context())
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	result, err := h.payouts.RequestWithdrawal(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	status := http.StatusCreated
	if !result.Applied {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}
