package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/providers"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Gateway outcomes reported in GatewayResult.Status.
const (
	GatewayEscrowed  = "escrowed"
	GatewayDuplicate = "duplicate"
	GatewayFailed    = "failed_recorded"
	GatewayIgnored   = "ignored"
	GatewayRejected  = "rejected"
)

type paymentProcessor interface {
	AcceptPayment(ctx context.Context, p PaymentAcceptance) (*EscrowResult, error)
	MarkPaymentFailed(ctx context.Context, bookingID, reference string) (bool, error)
	FindByReference(ctx context.Context, reference string) (*models.EscrowEntry, error)
}

type paymentEventLog interface {
	Record(ctx context.Context, e *models.PaymentEvent) (bool, error)
	MarkProcessed(ctx context.Context, e *models.PaymentEvent, processErr error) error
}

type GatewayConfig struct {
	VerifyAttempts int
	VerifyBackoff  time.Duration
	VerifyRPS      float64
}

type GatewayResult struct {
	Provider  string                  `json:"provider"`
	Reference string                  `json:"reference"`
	BookingID string                  `json:"booking_id,omitempty"`
	Event     models.PaymentEventType `json:"event,omitempty"`
	Status    string                  `json:"status"`
	Applied   bool                    `json:"applied"`
	Escrow    *models.EscrowEntry     `json:"escrow,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// PaymentGateway turns provider callbacks and verify-by-reference lookups
// into escrow operations. Every path is safe to repeat.
type PaymentGateway struct {
	providers providers.Registry
	escrow    paymentProcessor
	events    paymentEventLog
	limiter   *rate.Limiter
	cfg       GatewayConfig
	log       *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewPaymentGateway(registry providers.Registry, escrow paymentProcessor, events paymentEventLog, log *zap.Logger, cfg GatewayConfig) *PaymentGateway {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.VerifyAttempts <= 0 {
		cfg.VerifyAttempts = 4
	}
	if cfg.VerifyBackoff <= 0 {
		cfg.VerifyBackoff = 500 * time.Millisecond
	}
	limit := rate.Inf
	if cfg.VerifyRPS > 0 {
		limit = rate.Limit(cfg.VerifyRPS)
	}
	return &PaymentGateway{
		providers: registry,
		escrow:    escrow,
		events:    events,
		limiter:   rate.NewLimiter(limit, 1),
		cfg:       cfg,
		log:       log.Named("gateway"),
		sleep:     sleepContext,
	}
}

// HandleWebhook authenticates and applies a provider callback. Business
// rejections (amount mismatch, unknown booking) are recorded and reported in
// the result rather than as an error, so the provider stops redelivering.
func (g *PaymentGateway) HandleWebhook(ctx context.Context, providerName string, payload []byte, header http.Header) (*GatewayResult, error) {
	provider, ok := g.providers.Get(providerName)
	if !ok {
		return nil, notFoundError(MsgUnknownProvider)
	}

	event, err := provider.ParseWebhook(payload, header)
	if err != nil {
		g.log.Warn("rejected webhook", zap.String("provider", providerName), zap.Error(err))
		return nil, providerError(err)
	}

	result, err := g.process(ctx, event)
	if err != nil && isBusinessRejection(err) {
		return &GatewayResult{
			Provider:  event.Provider,
			Reference: event.Reference,
			BookingID: event.BookingID,
			Event:     event.Type,
			Status:    GatewayRejected,
			Error:     ClientMessage(err),
		}, nil
	}
	return result, err
}

// VerifyPayment is the client-polled path: the provider is asked for the
// outcome of reference. A reference that was already applied returns the
// prior result without calling the provider.
func (g *PaymentGateway) VerifyPayment(ctx context.Context, providerName, reference string) (*GatewayResult, error) {
	if reference == "" {
		return nil, validationError(MsgMissingReference)
	}
	provider, ok := g.providers.Get(providerName)
	if !ok {
		return nil, notFoundError(MsgUnknownProvider)
	}

	prior, err := g.escrow.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return &GatewayResult{
			Provider:  providerName,
			Reference: reference,
			BookingID: prior.BookingID,
			Event:     models.PaymentSucceeded,
			Status:    GatewayDuplicate,
			Escrow:    prior,
		}, nil
	}

	event, err := g.verifyWithRetry(ctx, provider, reference)
	if err != nil {
		return nil, err
	}
	return g.process(ctx, event)
}

func (g *PaymentGateway) verifyWithRetry(ctx context.Context, provider providers.Provider, reference string) (*models.PaymentEvent, error) {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.VerifyAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, transientError(err)
		}

		event, err := provider.Verify(ctx, reference)
		if err == nil {
			return event, nil
		}
		if !errors.Is(err, providers.ErrTransient) {
			return nil, providerError(err)
		}

		lastErr = err
		g.log.Warn("verify attempt failed",
			zap.String("provider", provider.Name()),
			zap.String("reference", reference),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == g.cfg.VerifyAttempts {
			break
		}
		if err := g.sleep(ctx, time.Duration(attempt)*g.cfg.VerifyBackoff); err != nil {
			return nil, transientError(err)
		}
	}
	return nil, transientError(lastErr)
}

func (g *PaymentGateway) process(ctx context.Context, event *models.PaymentEvent) (*GatewayResult, error) {
	if _, err := g.events.Record(ctx, event); err != nil {
		return nil, err
	}

	result, err := g.apply(ctx, event)
	if markErr := g.events.MarkProcessed(ctx, event, err); markErr != nil {
		g.log.Error("failed to mark payment event processed",
			zap.String("provider", event.Provider),
			zap.String("reference", event.Reference),
			zap.Error(markErr),
		)
	}
	return result, err
}

func (g *PaymentGateway) apply(ctx context.Context, event *models.PaymentEvent) (*GatewayResult, error) {
	result := &GatewayResult{
		Provider:  event.Provider,
		Reference: event.Reference,
		BookingID: event.BookingID,
		Event:     event.Type,
	}
	if event.BookingID == "" {
		return nil, validationError(MsgMalformedPayment)
	}

	switch event.Type {
	case models.PaymentSucceeded:
		res, err := g.escrow.AcceptPayment(ctx, PaymentAcceptance{
			BookingID:         event.BookingID,
			GrossAmount:       event.Amount,
			Currency:          event.Currency,
			ProviderReference: event.Reference,
			Provider:          event.Provider,
		})
		if err != nil {
			return nil, err
		}
		result.Applied = res.Applied
		result.Escrow = res.Entry
		result.Status = GatewayEscrowed
		if !res.Applied {
			result.Status = GatewayDuplicate
		}
	case models.PaymentFailedEvt:
		changed, err := g.escrow.MarkPaymentFailed(ctx, event.BookingID, event.Reference)
		if err != nil {
			return nil, err
		}
		result.Applied = changed
		result.Status = GatewayFailed
		if !changed {
			result.Status = GatewayIgnored
		}
	default:
		return nil, validationError(MsgMalformedPayment)
	}
	return result, nil
}

func providerError(err error) error {
	switch {
	case errors.Is(err, providers.ErrInvalidSignature):
		return validationError(MsgInvalidSignature)
	case errors.Is(err, providers.ErrMalformed):
		return validationError(MsgMalformedPayment)
	case errors.Is(err, providers.ErrNotFound):
		return notFoundError(MsgPaymentNotFound)
	case errors.Is(err, providers.ErrTransient):
		return transientError(err)
	}
	return err
}

func isBusinessRejection(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
