package handlers

import (
	"context"
	"net/http"

	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/services"
	"github.com/stretchr/testify/mock"
)

type mockBookings struct{ mock.Mock }

func (m *mockBookings) CreateBooking(ctx context.Context, req services.CreateBookingRequest) (*models.Booking, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookings) GetBooking(ctx context.Context, bookingID, userID string, asAdmin bool) (*models.Booking, error) {
	args := m.Called(ctx, bookingID, userID, asAdmin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookings) CancelBooking(ctx context.Context, req services.CancellationRequest) (*models.Cancellation, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Cancellation), args.Error(1)
}

func (m *mockBookings) MarkComplete(ctx context.Context, bookingID, musicianID string) (*services.CompletionResult, error) {
	args := m.Called(ctx, bookingID, musicianID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CompletionResult), args.Error(1)
}

type mockEscrow struct{ mock.Mock }

func (m *mockEscrow) Release(ctx context.Context, escrowID, releasedBy string, reason models.ReleaseReason) (*services.EscrowResult, error) {
	args := m.Called(ctx, escrowID, releasedBy, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.EscrowResult), args.Error(1)
}

func (m *mockEscrow) GetEscrowByBooking(ctx context.Context, bookingID string) (*models.EscrowEntry, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EscrowEntry), args.Error(1)
}

func (m *mockEscrow) ReleaseForBooking(ctx context.Context, bookingID, releasedBy string, reason models.ReleaseReason, asAdmin bool) (*services.EscrowResult, error) {
	args := m.Called(ctx, bookingID, releasedBy, reason, asAdmin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.EscrowResult), args.Error(1)
}

func (m *mockEscrow) PayFromWallet(ctx context.Context, clientID, bookingID string, amount int64) (*services.EscrowResult, error) {
	args := m.Called(ctx, clientID, bookingID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.EscrowResult), args.Error(1)
}

func (m *mockEscrow) Refund(ctx context.Context, bookingID, actor string) (*services.RefundResult, error) {
	args := m.Called(ctx, bookingID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RefundResult), args.Error(1)
}

type mockGateway struct{ mock.Mock }

func (m *mockGateway) HandleWebhook(ctx context.Context, provider string, payload []byte, header http.Header) (*services.GatewayResult, error) {
	args := m.Called(ctx, provider, payload, header)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.GatewayResult), args.Error(1)
}

func (m *mockGateway) VerifyPayment(ctx context.Context, provider, reference string) (*services.GatewayResult, error) {
	args := m.Called(ctx, provider, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.GatewayResult), args.Error(1)
}

type mockWallets struct{ mock.Mock }

func (m *mockWallets) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *mockWallets) ListJournal(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.JournalEntry), args.Error(1)
}

type mockStatements struct{ mock.Mock }

func (m *mockStatements) WalletStatement(ctx context.Context, userID string) ([]byte, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockPayouts struct{ mock.Mock }

func (m *mockPayouts) RequestWithdrawal(ctx context.Context, req services.WithdrawalRequest) (*services.WithdrawalResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.WithdrawalResult), args.Error(1)
}

func (m *mockPayouts) SettleWithdrawal(ctx context.Context, withdrawalID string, accepted bool, actor string) (*services.WithdrawalResult, error) {
	args := m.Called(ctx, withdrawalID, accepted, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.WithdrawalResult), args.Error(1)
}

func (m *mockPayouts) Banks() []services.Bank {
	return m.Called().Get(0).([]services.Bank)
}

type mockCompliance struct{ mock.Mock }

func (m *mockCompliance) RecordComplaint(ctx context.Context, musicianID, bookingID string) (*services.ComplianceTransition, error) {
	args := m.Called(ctx, musicianID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ComplianceTransition), args.Error(1)
}

func (m *mockCompliance) GetRecord(ctx context.Context, musicianID string) (*models.ComplianceRecord, error) {
	args := m.Called(ctx, musicianID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ComplianceRecord), args.Error(1)
}

func (m *mockCompliance) Reset(ctx context.Context, musicianID, actor string) error {
	return m.Called(ctx, musicianID, actor).Error(0)
}

type mockScheduler struct{ mock.Mock }

func (m *mockScheduler) Run(ctx context.Context, name services.SweepName) (*services.SweepReport, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SweepReport), args.Error(1)
}

func (m *mockScheduler) RunAll(ctx context.Context) ([]*services.SweepReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*services.SweepReport), args.Error(1)
}
