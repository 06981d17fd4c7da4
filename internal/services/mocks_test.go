package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gigbook/backend/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockProvider struct {
	mock.Mock
	name string
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) ParseWebhook(payload []byte, header http.Header) (*models.PaymentEvent, error) {
	args := m.Called(payload, header)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentEvent), args.Error(1)
}

func (m *MockProvider) Verify(ctx context.Context, reference string) (*models.PaymentEvent, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentEvent), args.Error(1)
}

type MockPaymentProcessor struct {
	mock.Mock
}

func (m *MockPaymentProcessor) AcceptPayment(ctx context.Context, p PaymentAcceptance) (*EscrowResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*EscrowResult), args.Error(1)
}

func (m *MockPaymentProcessor) MarkPaymentFailed(ctx context.Context, bookingID, reference string) (bool, error) {
	args := m.Called(ctx, bookingID, reference)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentProcessor) FindByReference(ctx context.Context, reference string) (*models.EscrowEntry, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EscrowEntry), args.Error(1)
}

type MockPaymentEventLog struct {
	mock.Mock
}

func (m *MockPaymentEventLog) Record(ctx context.Context, e *models.PaymentEvent) (bool, error) {
	args := m.Called(ctx, e)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentEventLog) MarkProcessed(ctx context.Context, e *models.PaymentEvent, processErr error) error {
	args := m.Called(ctx, e, processErr)
	return args.Error(0)
}

type MockEscrowReleaser struct {
	mock.Mock
}

func (m *MockEscrowReleaser) ReleaseForBooking(ctx context.Context, bookingID, releasedBy string, reason models.ReleaseReason, asAdmin bool) (*EscrowResult, error) {
	args := m.Called(ctx, bookingID, releasedBy, reason, asAdmin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*EscrowResult), args.Error(1)
}

type MockComplianceEnforcer struct {
	mock.Mock
}

func (m *MockComplianceEnforcer) EnforcementCandidates(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockComplianceEnforcer) Enforce(ctx context.Context, musicianID string) (*ComplianceTransition, error) {
	args := m.Called(ctx, musicianID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ComplianceTransition), args.Error(1)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type MockSettlementSender struct {
	mock.Mock
}

func (m *MockSettlementSender) Send(ctx context.Context, messageType, xmlDoc string) error {
	args := m.Called(ctx, messageType, xmlDoc)
	return args.Error(0)
}

// recordingNotifier keeps every notification it is handed.
type recordingNotifier struct {
	mu    sync.Mutex
	notes []models.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *recordingNotifier) sent() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.Notification, len(n.notes))
	copy(out, n.notes)
	return out
}
