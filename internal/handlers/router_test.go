package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mw "github.com/gigbook/backend/internal/middleware"
	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/services"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret       = "handler-test-secret"
	testSchedulerSecret = "cron-secret"
)

type testAPI struct {
	handler    http.Handler
	bookings   *mockBookings
	escrow     *mockEscrow
	gateway    *mockGateway
	wallets    *mockWallets
	statements *mockStatements
	payouts    *mockPayouts
	compliance *mockCompliance
	scheduler  *mockScheduler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	hash, err := mw.HashSecret(testSchedulerSecret)
	require.NoError(t, err)

	api := &testAPI{
		bookings:   &mockBookings{},
		escrow:     &mockEscrow{},
		gateway:    &mockGateway{},
		wallets:    &mockWallets{},
		statements: &mockStatements{},
		payouts:    &mockPayouts{},
		compliance: &mockCompliance{},
		scheduler:  &mockScheduler{},
	}
	api.handler = NewRouter(RouterConfig{
		Bookings:            NewBookingHandler(api.bookings, api.escrow, nil),
		Payments:            NewPaymentHandler(api.gateway, nil),
		Wallet:              NewWalletHandler(api.wallets, api.statements, api.payouts, nil),
		Admin:               NewAdminHandler(api.escrow, api.compliance, api.payouts, nil),
		Scheduler:           NewSchedulerHandler(api.scheduler, nil),
		JWTSecret:           testJWTSecret,
		SchedulerSecretHash: hash,
	})
	return api
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

// do serves one request. auth is a full Authorization header value.
func (a *testAPI) do(method, path, auth, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, reader)
	if auth != "" {
		r.Header.Set("Authorization", auth)
	}
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func svcErr(kind error, msg string) error {
	return &services.ServiceError{Kind: kind, Message: msg}
}

func TestRouter_Basics(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = api.do(http.MethodGet, "/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found", decodeBody(t, w)["error"])

	w = api.do(http.MethodGet, "/api/v1/wallet", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBookingHandler(t *testing.T) {
	client := bearer(t, "c1", string(models.RoleClient))
	musician := bearer(t, "m1", string(models.RoleMusician))

	t.Run("create uses the caller as client", func(t *testing.T) {
		api := newTestAPI(t)
		api.bookings.On("CreateBooking", mock.Anything, mock.MatchedBy(func(req services.CreateBookingRequest) bool {
			return req.ClientID == "c1" && req.MusicianID == "m1" && req.Amount == 10000
		})).Return(&models.Booking{ID: "b1", ClientID: "c1", MusicianID: "m1", Amount: 10000}, nil)

		w := api.do(http.MethodPost, "/api/v1/bookings", client,
			`{"musicianId":"m1","amount":10000,"currency":"NGN","eventStart":"2026-12-01T20:00:00Z"}`)
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "b1", decodeBody(t, w)["id"])
		api.bookings.AssertExpectations(t)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/v1/bookings", client, `{"musicianId":"m1","clientId":"c2"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		api.bookings.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})

	t.Run("field validation details", func(t *testing.T) {
		api := newTestAPI(t)
		invalid := services.NewValidationHelper().ValidateStruct(&services.CreateBookingRequest{})
		api.bookings.On("CreateBooking", mock.Anything, mock.Anything).Return(nil, invalid)

		w := api.do(http.MethodPost, "/api/v1/bookings", client, `{"musicianId":""}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "Validation failed", body["error"])
		assert.Contains(t, body["details"], "MusicianID")
	})

	t.Run("get is scoped to the caller", func(t *testing.T) {
		api := newTestAPI(t)
		api.bookings.On("GetBooking", mock.Anything, "b9", "c1", false).
			Return(nil, svcErr(services.ErrNotFound, services.MsgBookingNotFound))

		w := api.do(http.MethodGet, "/api/v1/bookings/b9", client, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, services.MsgBookingNotFound, decodeBody(t, w)["error"])
	})

	t.Run("cancel by a non-party", func(t *testing.T) {
		api := newTestAPI(t)
		api.bookings.On("CancelBooking", mock.Anything, services.CancellationRequest{
			BookingID:   "b1",
			CancelledBy: "m1",
			Role:        models.RoleMusician,
			Category:    models.CategoryMusicianRequest,
			Reason:      "sick",
		}).Return(nil, svcErr(services.ErrForbidden, "Not a party to this booking"))

		w := api.do(http.MethodPost, "/api/v1/bookings/b1/cancel", musician,
			`{"role":"MUSICIAN","category":"musician_request","reason":"sick"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
		api.bookings.AssertExpectations(t)
	})

	t.Run("complete", func(t *testing.T) {
		api := newTestAPI(t)
		api.bookings.On("MarkComplete", mock.Anything, "b1", "m1").
			Return(&services.CompletionResult{Booking: &models.Booking{ID: "b1", Status: models.BookingCompleted}}, nil)

		w := api.do(http.MethodPost, "/api/v1/bookings/b1/complete", musician, "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("release is manual", func(t *testing.T) {
		api := newTestAPI(t)
		api.escrow.On("ReleaseForBooking", mock.Anything, "b1", "c1", models.ReleaseManual, false).
			Return(&services.EscrowResult{Applied: true}, nil)

		w := api.do(http.MethodPost, "/api/v1/bookings/b1/release", client, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decodeBody(t, w)["applied"])
	})

	t.Run("escrow of own booking", func(t *testing.T) {
		api := newTestAPI(t)
		api.bookings.On("GetBooking", mock.Anything, "b1", "c1", false).Return(&models.Booking{ID: "b1"}, nil)
		api.escrow.On("GetEscrowByBooking", mock.Anything, "b1").
			Return(&models.EscrowEntry{ID: "e1", BookingID: "b1", State: models.EscrowHeld}, nil)

		w := api.do(http.MethodGet, "/api/v1/bookings/b1/escrow", client, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "e1", decodeBody(t, w)["id"])
	})

	t.Run("escrow of someone else's booking", func(t *testing.T) {
		api := newTestAPI(t)
		api.bookings.On("GetBooking", mock.Anything, "b2", "c1", false).
			Return(nil, svcErr(services.ErrNotFound, services.MsgBookingNotFound))

		w := api.do(http.MethodGet, "/api/v1/bookings/b2/escrow", client, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		api.escrow.AssertNotCalled(t, "GetEscrowByBooking", mock.Anything, mock.Anything)
	})

	t.Run("release by escrow id", func(t *testing.T) {
		api := newTestAPI(t)
		api.escrow.On("Release", mock.Anything, "e1", "c1", models.ReleaseManual).
			Return(&services.EscrowResult{Applied: false}, nil)

		w := api.do(http.MethodPost, "/api/v1/escrow/e1/release", client, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, decodeBody(t, w)["applied"])
	})

	t.Run("wallet payment without funds", func(t *testing.T) {
		api := newTestAPI(t)
		api.escrow.On("PayFromWallet", mock.Anything, "c1", "b1", int64(10000)).
			Return(nil, svcErr(services.ErrInsufficientFunds, services.MsgInsufficientFunds))

		w := api.do(http.MethodPost, "/api/v1/bookings/b1/pay-from-wallet", client, `{"amount":10000}`)
		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		assert.Equal(t, services.MsgInsufficientFunds, decodeBody(t, w)["error"])
	})

	t.Run("raw errors are not leaked", func(t *testing.T) {
		api := newTestAPI(t)
		api.bookings.On("GetBooking", mock.Anything, "b1", "c1", false).
			Return(nil, errors.New("pq: password authentication failed"))

		w := api.do(http.MethodGet, "/api/v1/bookings/b1", client, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, services.MsgInternal, decodeBody(t, w)["error"])
	})
}

func TestPaymentHandler(t *testing.T) {
	t.Run("webhook needs no bearer token", func(t *testing.T) {
		api := newTestAPI(t)
		payload := `{"event":"payment.succeeded","reference":"ref-1"}`
		api.gateway.On("HandleWebhook", mock.Anything, "paystack", []byte(payload), mock.Anything).
			Return(&services.GatewayResult{Provider: "paystack", Reference: "ref-1", Status: services.GatewayRejected,
				Error: services.MsgAmountMismatch}, nil)

		w := api.do(http.MethodPost, "/webhooks/payments/paystack", "", payload)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, services.GatewayRejected, decodeBody(t, w)["status"])
	})

	t.Run("webhook with bad signature", func(t *testing.T) {
		api := newTestAPI(t)
		api.gateway.On("HandleWebhook", mock.Anything, "stripe", mock.Anything, mock.Anything).
			Return(nil, svcErr(services.ErrValidation, services.MsgInvalidSignature))

		w := api.do(http.MethodPost, "/webhooks/payments/stripe", "", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("verify while provider is down", func(t *testing.T) {
		api := newTestAPI(t)
		api.gateway.On("VerifyPayment", mock.Anything, "paystack", "ref-1").
			Return(nil, &services.ServiceError{Kind: services.ErrTransientProvider,
				Message: services.MsgProviderUnavailable, Cause: errors.New("dial tcp: timeout")})

		w := api.do(http.MethodPost, "/api/v1/payments/verify", bearer(t, "c1", "CLIENT"),
			`{"provider":"paystack","reference":"ref-1"}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, services.MsgProviderUnavailable, decodeBody(t, w)["error"])
	})

	t.Run("verify needs both fields", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/v1/payments/verify", bearer(t, "c1", "CLIENT"), `{"provider":"paystack"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		api.gateway.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestWalletHandler(t *testing.T) {
	musician := bearer(t, "m1", "MUSICIAN")

	t.Run("wallet", func(t *testing.T) {
		api := newTestAPI(t)
		api.wallets.On("GetWallet", mock.Anything, "m1").
			Return(&models.Wallet{UserID: "m1", Currency: "NGN", AvailableBalance: 9000}, nil)

		w := api.do(http.MethodGet, "/api/v1/wallet", musician, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(9000), decodeBody(t, w)["available_balance"])
	})

	t.Run("journal limit", func(t *testing.T) {
		api := newTestAPI(t)
		api.wallets.On("ListJournal", mock.Anything, "m1", 20).Return([]models.JournalEntry{}, nil)

		w := api.do(http.MethodGet, "/api/v1/wallet/journal?limit=20", musician, "")
		assert.Equal(t, http.StatusOK, w.Code)

		w = api.do(http.MethodGet, "/api/v1/wallet/journal?limit=lots", musician, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		api.wallets.AssertNumberOfCalls(t, "ListJournal", 1)
	})

	t.Run("statement", func(t *testing.T) {
		api := newTestAPI(t)
		api.statements.On("WalletStatement", mock.Anything, "m1").Return([]byte("%PDF-1.3 test"), nil)

		w := api.do(http.MethodGet, "/api/v1/wallet/statement", musician, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))
	})

	t.Run("banks", func(t *testing.T) {
		api := newTestAPI(t)
		api.payouts.On("Banks").Return([]services.Bank{{Code: "058", Name: "Guaranty Trust Bank"}})

		w := api.do(http.MethodGet, "/api/v1/banks", musician, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "public, max-age=86400", w.Header().Get("Cache-Control"))
		assert.JSONEq(t, `[{"code":"058","name":"Guaranty Trust Bank"}]`, w.Body.String())
	})

	t.Run("withdrawal takes the key from the header", func(t *testing.T) {
		api := newTestAPI(t)
		api.payouts.On("RequestWithdrawal", mock.Anything, services.WithdrawalRequest{
			UserID:         "m1",
			Amount:         5000,
			BankCode:       "058",
			AccountNumber:  "0123456789",
			AccountName:    "Ada Musician",
			IdempotencyKey: "hdr-key",
		}).Return(&services.WithdrawalResult{Withdrawal: &models.Withdrawal{ID: "w1"}, Applied: true}, nil).Once()

		r := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/withdrawals", strings.NewReader(
			`{"amount":5000,"bankCode":"058","accountNumber":"0123456789","accountName":"Ada Musician"}`))
		r.Header.Set("Authorization", musician)
		r.Header.Set("Idempotency-Key", "hdr-key")
		w := httptest.NewRecorder()
		api.handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		api.payouts.AssertExpectations(t)
	})

	t.Run("replayed withdrawal is 200", func(t *testing.T) {
		api := newTestAPI(t)
		api.payouts.On("RequestWithdrawal", mock.Anything, mock.Anything).
			Return(&services.WithdrawalResult{Withdrawal: &models.Withdrawal{ID: "w1"}, Applied: false}, nil)

		w := api.do(http.MethodPost, "/api/v1/wallet/withdrawals", musician,
			`{"amount":5000,"bankCode":"058","accountNumber":"0123456789","accountName":"Ada","idempotencyKey":"k1"}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAdminHandler(t *testing.T) {
	admin := bearer(t, "a1", mw.RoleAdmin)

	t.Run("non-admins are refused", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/v1/admin/bookings/b1/refund", bearer(t, "c1", "CLIENT"), "")
		assert.Equal(t, http.StatusForbidden, w.Code)
		api.escrow.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("refund", func(t *testing.T) {
		api := newTestAPI(t)
		api.escrow.On("Refund", mock.Anything, "b1", "a1").
			Return(&services.RefundResult{Applied: true, Amount: 10000}, nil)

		w := api.do(http.MethodPost, "/api/v1/admin/bookings/b1/refund", admin, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(10000), decodeBody(t, w)["amount"])
	})

	t.Run("complaint", func(t *testing.T) {
		api := newTestAPI(t)
		api.compliance.On("RecordComplaint", mock.Anything, "m1", "b1").
			Return(&services.ComplianceTransition{MusicianID: "m1", From: models.ComplianceNormal, To: models.ComplianceWarned}, nil)

		w := api.do(http.MethodPost, "/api/v1/admin/complaints", admin, `{"musicianId":"m1","bookingId":"b1"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["success"])
		assert.NotNil(t, body["transition"])
	})

	t.Run("compliance record", func(t *testing.T) {
		api := newTestAPI(t)
		api.compliance.On("GetRecord", mock.Anything, "m1").
			Return(&models.ComplianceRecord{MusicianID: "m1", NoShows: 1, Status: models.ComplianceNormal}, nil)

		w := api.do(http.MethodGet, "/api/v1/admin/compliance/m1", admin, "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("reset", func(t *testing.T) {
		api := newTestAPI(t)
		api.compliance.On("Reset", mock.Anything, "m1", "a1").Return(nil)

		w := api.do(http.MethodPost, "/api/v1/admin/compliance/m1/reset", admin, "")
		assert.Equal(t, http.StatusOK, w.Code)
		api.compliance.AssertExpectations(t)
	})

	t.Run("settle closed withdrawal", func(t *testing.T) {
		api := newTestAPI(t)
		api.payouts.On("SettleWithdrawal", mock.Anything, "w1", false, "a1").
			Return(nil, svcErr(services.ErrConflict, services.MsgWithdrawalClosed))

		w := api.do(http.MethodPost, "/api/v1/admin/withdrawals/w1/settle", admin, `{"accepted":false}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestSchedulerHandler(t *testing.T) {
	run := func(api *testAPI, path, secret string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, path, nil)
		if secret != "" {
			r.Header.Set(mw.SchedulerSecretHeader, secret)
		}
		w := httptest.NewRecorder()
		api.handler.ServeHTTP(w, r)
		return w
	}

	t.Run("secret required", func(t *testing.T) {
		api := newTestAPI(t)

		assert.Equal(t, http.StatusUnauthorized, run(api, "/internal/scheduler/run", "").Code)
		assert.Equal(t, http.StatusUnauthorized, run(api, "/internal/scheduler/run", "guess").Code)
		api.scheduler.AssertNotCalled(t, "RunAll", mock.Anything)
	})

	t.Run("run all with a failed sweep", func(t *testing.T) {
		api := newTestAPI(t)
		api.scheduler.On("RunAll", mock.Anything).Return([]*services.SweepReport{
			{Sweep: services.SweepIncompleteBookings, Processed: 1, Successful: 1},
			{Sweep: services.SweepCompliance},
		}, errors.New("auto_release: connection refused"))

		w := run(api, "/internal/scheduler/run", testSchedulerSecret)
		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Len(t, body["reports"], 2)
		assert.Equal(t, services.MsgInternal, body["error"])
	})

	t.Run("run all with nothing to report", func(t *testing.T) {
		api := newTestAPI(t)
		api.scheduler.On("RunAll", mock.Anything).Return(nil, errors.New("connection refused"))

		w := run(api, "/internal/scheduler/run", testSchedulerSecret)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("single sweep", func(t *testing.T) {
		api := newTestAPI(t)
		api.scheduler.On("Run", mock.Anything, services.SweepAutoRelease).
			Return(&services.SweepReport{Sweep: services.SweepAutoRelease, Processed: 2, Successful: 2}, nil)

		w := run(api, "/internal/scheduler/run/auto_release", testSchedulerSecret)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(2), decodeBody(t, w)["successful"])
	})

	t.Run("unknown sweep", func(t *testing.T) {
		api := newTestAPI(t)

		w := run(api, "/internal/scheduler/run/payouts", testSchedulerSecret)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		api.scheduler.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})
}
