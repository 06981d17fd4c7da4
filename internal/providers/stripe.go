package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gigbook/backend/internal/models"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"
)

const StripeName = "stripe"

const (
	stripeIntentSucceeded = "payment_intent.succeeded"
	stripeIntentFailed    = "payment_intent.payment_failed"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// Stripe maps PaymentIntent events to payment events. The booking id travels
// in the intent's metadata under booking_id.
type Stripe struct {
	cfg     StripeConfig
	intents *paymentintent.Client
}

func NewStripe(cfg StripeConfig, backend stripe.Backend) *Stripe {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Stripe{
		cfg:     cfg,
		intents: &paymentintent.Client{B: backend, Key: cfg.SecretKey},
	}
}

func (s *Stripe) Name() string { return StripeName }

func (s *Stripe) ParseWebhook(payload []byte, header http.Header) (*models.PaymentEvent, error) {
	if s.cfg.WebhookSecret == "" || header == nil {
		return nil, ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, header.Get("Stripe-Signature"), s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var eventType models.PaymentEventType
	switch string(event.Type) {
	case stripeIntentSucceeded:
		eventType = models.PaymentSucceeded
	case stripeIntentFailed:
		eventType = models.PaymentFailedEvt
	default:
		return nil, fmt.Errorf("%w: unsupported event %q", ErrMalformed, event.Type)
	}

	if event.Data == nil {
		return nil, fmt.Errorf("%w: event has no data", ErrMalformed)
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := intentEvent(&intent, payload)
	out.Type = eventType
	if out.BookingID == "" {
		return nil, fmt.Errorf("%w: payment intent %s has no booking_id", ErrMalformed, intent.ID)
	}
	return out, nil
}

func (s *Stripe) Verify(ctx context.Context, reference string) (*models.PaymentEvent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := s.intents.Get(reference, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}

	raw, _ := json.Marshal(intent)
	out := intentEvent(intent, raw)
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		out.Type = models.PaymentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		out.Type = models.PaymentFailedEvt
	default:
		return nil, fmt.Errorf("%w: payment intent %s is %q", ErrTransient, reference, intent.Status)
	}
	return out, nil
}

func intentEvent(intent *stripe.PaymentIntent, payload []byte) *models.PaymentEvent {
	return &models.PaymentEvent{
		Provider:       StripeName,
		Reference:      intent.ID,
		BookingID:      intent.Metadata["booking_id"],
		Amount:         intent.Amount,
		Currency:       strings.ToUpper(string(intent.Currency)),
		SignatureValid: true,
		Payload:        payload,
	}
}

func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	switch {
	case stripeErr.HTTPStatusCode == http.StatusNotFound:
		return ErrNotFound
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests, stripeErr.HTTPStatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrTransient, stripeErr.Msg)
	}
	return fmt.Errorf("stripe: %s", stripeErr.Msg)
}
