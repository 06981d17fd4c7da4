package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type gatewayFixture struct {
	gateway  *PaymentGateway
	provider *MockProvider
	escrow   *MockPaymentProcessor
	events   *MockPaymentEventLog
	slept    []time.Duration
}

func newGatewayFixture() *gatewayFixture {
	f := &gatewayFixture{
		provider: &MockProvider{name: "paystack"},
		escrow:   &MockPaymentProcessor{},
		events:   &MockPaymentEventLog{},
	}
	f.gateway = NewPaymentGateway(providers.NewRegistry(f.provider), f.escrow, f.events, nil, GatewayConfig{
		VerifyAttempts: 3,
		VerifyBackoff:  time.Millisecond,
	})
	f.gateway.sleep = func(_ context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return nil
	}
	return f
}

func succeededEvent() *models.PaymentEvent {
	return &models.PaymentEvent{
		Provider:       "paystack",
		Type:           models.PaymentSucceeded,
		Reference:      "ref-1",
		BookingID:      "b1",
		Amount:         10000,
		Currency:       "NGN",
		SignatureValid: true,
	}
}

func acceptanceFor(e *models.PaymentEvent) PaymentAcceptance {
	return PaymentAcceptance{
		BookingID:         e.BookingID,
		GrossAmount:       e.Amount,
		Currency:          e.Currency,
		ProviderReference: e.Reference,
		Provider:          e.Provider,
	}
}

func TestPaymentGateway_HandleWebhook(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{"event":"payment.succeeded"}`)
	header := http.Header{}

	t.Run("successful payment is escrowed", func(t *testing.T) {
		f := newGatewayFixture()
		event := succeededEvent()

		f.provider.On("ParseWebhook", payload, mock.Anything).Return(event, nil)
		f.events.On("Record", mock.Anything, event).Return(true, nil)
		f.escrow.On("AcceptPayment", mock.Anything, acceptanceFor(event)).
			Return(&EscrowResult{Entry: testEscrow(), Applied: true}, nil)
		f.events.On("MarkProcessed", mock.Anything, event, nil).Return(nil)

		result, err := f.gateway.HandleWebhook(ctx, "paystack", payload, header)
		require.NoError(t, err)
		assert.Equal(t, GatewayEscrowed, result.Status)
		assert.True(t, result.Applied)
		assert.Equal(t, "e1", result.Escrow.ID)
		f.escrow.AssertExpectations(t)
		f.events.AssertExpectations(t)
	})

	t.Run("redelivery is a duplicate", func(t *testing.T) {
		f := newGatewayFixture()
		event := succeededEvent()

		f.provider.On("ParseWebhook", payload, mock.Anything).Return(event, nil)
		f.events.On("Record", mock.Anything, event).Return(false, nil)
		f.escrow.On("AcceptPayment", mock.Anything, acceptanceFor(event)).
			Return(&EscrowResult{Entry: testEscrow(), Applied: false}, nil)
		f.events.On("MarkProcessed", mock.Anything, event, nil).Return(nil)

		result, err := f.gateway.HandleWebhook(ctx, "paystack", payload, header)
		require.NoError(t, err)
		assert.Equal(t, GatewayDuplicate, result.Status)
		assert.False(t, result.Applied)
	})

	t.Run("bad signature is rejected before any write", func(t *testing.T) {
		f := newGatewayFixture()

		f.provider.On("ParseWebhook", payload, mock.Anything).Return(nil, providers.ErrInvalidSignature)

		_, err := f.gateway.HandleWebhook(ctx, "paystack", payload, header)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Equal(t, MsgInvalidSignature, ClientMessage(err))
		f.events.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
		f.escrow.AssertNotCalled(t, "AcceptPayment", mock.Anything, mock.Anything)
	})

	t.Run("unknown provider", func(t *testing.T) {
		f := newGatewayFixture()

		_, err := f.gateway.HandleWebhook(ctx, "paypal", payload, header)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Equal(t, MsgUnknownProvider, ClientMessage(err))
	})

	t.Run("amount mismatch is reported, not retried", func(t *testing.T) {
		f := newGatewayFixture()
		event := succeededEvent()

		f.provider.On("ParseWebhook", payload, mock.Anything).Return(event, nil)
		f.events.On("Record", mock.Anything, event).Return(true, nil)
		f.escrow.On("AcceptPayment", mock.Anything, acceptanceFor(event)).
			Return(nil, conflictError(MsgAmountMismatch))
		f.events.On("MarkProcessed", mock.Anything, event, mock.Anything).Return(nil)

		result, err := f.gateway.HandleWebhook(ctx, "paystack", payload, header)
		require.NoError(t, err)
		assert.Equal(t, GatewayRejected, result.Status)
		assert.Equal(t, MsgAmountMismatch, result.Error)
		f.events.AssertExpectations(t)
	})

	t.Run("internal failure surfaces so the provider retries", func(t *testing.T) {
		f := newGatewayFixture()
		event := succeededEvent()

		f.provider.On("ParseWebhook", payload, mock.Anything).Return(event, nil)
		f.events.On("Record", mock.Anything, event).Return(true, nil)
		f.escrow.On("AcceptPayment", mock.Anything, acceptanceFor(event)).
			Return(nil, errors.New("connection reset"))
		f.events.On("MarkProcessed", mock.Anything, event, mock.Anything).Return(nil)

		_, err := f.gateway.HandleWebhook(ctx, "paystack", payload, header)
		assert.Error(t, err)
	})

	t.Run("failed payment is recorded", func(t *testing.T) {
		f := newGatewayFixture()
		event := succeededEvent()
		event.Type = models.PaymentFailedEvt

		f.provider.On("ParseWebhook", payload, mock.Anything).Return(event, nil)
		f.events.On("Record", mock.Anything, event).Return(true, nil)
		f.escrow.On("MarkPaymentFailed", mock.Anything, "b1", "ref-1").Return(true, nil)
		f.events.On("MarkProcessed", mock.Anything, event, nil).Return(nil)

		result, err := f.gateway.HandleWebhook(ctx, "paystack", payload, header)
		require.NoError(t, err)
		assert.Equal(t, GatewayFailed, result.Status)
		f.escrow.AssertNotCalled(t, "AcceptPayment", mock.Anything, mock.Anything)
	})
}

func TestPaymentGateway_VerifyPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("applied reference skips the provider", func(t *testing.T) {
		f := newGatewayFixture()

		f.escrow.On("FindByReference", mock.Anything, "ref-1").Return(testEscrow(), nil)

		result, err := f.gateway.VerifyPayment(ctx, "paystack", "ref-1")
		require.NoError(t, err)
		assert.Equal(t, GatewayDuplicate, result.Status)
		assert.Equal(t, "b1", result.BookingID)
		f.provider.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("transient errors are retried with backoff", func(t *testing.T) {
		f := newGatewayFixture()
		event := succeededEvent()

		f.escrow.On("FindByReference", mock.Anything, "ref-1").Return(nil, nil)
		f.provider.On("Verify", mock.Anything, "ref-1").Return(nil, providers.ErrTransient).Twice()
		f.provider.On("Verify", mock.Anything, "ref-1").Return(event, nil).Once()
		f.events.On("Record", mock.Anything, event).Return(true, nil)
		f.escrow.On("AcceptPayment", mock.Anything, acceptanceFor(event)).
			Return(&EscrowResult{Entry: testEscrow(), Applied: true}, nil)
		f.events.On("MarkProcessed", mock.Anything, event, nil).Return(nil)

		result, err := f.gateway.VerifyPayment(ctx, "paystack", "ref-1")
		require.NoError(t, err)
		assert.Equal(t, GatewayEscrowed, result.Status)
		assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, f.slept)
		f.provider.AssertNumberOfCalls(t, "Verify", 3)
	})

	t.Run("provider outage is transient, not a failed payment", func(t *testing.T) {
		f := newGatewayFixture()

		f.escrow.On("FindByReference", mock.Anything, "ref-1").Return(nil, nil)
		f.provider.On("Verify", mock.Anything, "ref-1").Return(nil, providers.ErrTransient)

		_, err := f.gateway.VerifyPayment(ctx, "paystack", "ref-1")
		assert.True(t, errors.Is(err, ErrTransientProvider))
		f.provider.AssertNumberOfCalls(t, "Verify", 3)
		f.escrow.AssertNotCalled(t, "MarkPaymentFailed", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown reference is not retried", func(t *testing.T) {
		f := newGatewayFixture()

		f.escrow.On("FindByReference", mock.Anything, "ref-9").Return(nil, nil)
		f.provider.On("Verify", mock.Anything, "ref-9").Return(nil, providers.ErrNotFound)

		_, err := f.gateway.VerifyPayment(ctx, "paystack", "ref-9")
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Equal(t, MsgPaymentNotFound, ClientMessage(err))
		f.provider.AssertNumberOfCalls(t, "Verify", 1)
	})

	t.Run("reference is required", func(t *testing.T) {
		f := newGatewayFixture()

		_, err := f.gateway.VerifyPayment(ctx, "paystack", "")
		assert.True(t, errors.Is(err, ErrValidation))
	})
}
