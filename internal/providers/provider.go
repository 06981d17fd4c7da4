// Package providers adapts payment provider callbacks and verify-by-reference
// APIs to models.PaymentEvent.
package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gigbook/backend/internal/models"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrTransient        = errors.New("provider temporarily unavailable")
	ErrNotFound         = errors.New("reference not found at provider")
	ErrMalformed        = errors.New("malformed provider payload")
)

// Provider is one payment provider integration.
type Provider interface {
	Name() string
	// ParseWebhook authenticates a callback and normalizes it. Callers must
	// not trust the payload unless err is nil.
	ParseWebhook(payload []byte, header http.Header) (*models.PaymentEvent, error)
	// Verify asks the provider for the outcome of reference. Network failures
	// are reported as ErrTransient, never as a failed payment.
	Verify(ctx context.Context, reference string) (*models.PaymentEvent, error)
}

// Registry looks providers up by name.
type Registry map[string]Provider

func NewRegistry(ps ...Provider) Registry {
	r := make(Registry, len(ps))
	for _, p := range ps {
		r[p.Name()] = p
	}
	return r
}

func (r Registry) Get(name string) (Provider, bool) {
	p, ok := r[name]
	return p, ok
}
