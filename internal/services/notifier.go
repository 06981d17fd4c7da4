package services

import (
	"context"

	"github.com/gigbook/backend/internal/models"
)

// Notifier hands notification requests to the delivery collaborator. It never
// reports failure; implementations log and drop.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, models.Notification) {}

func orNopNotifier(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// notifyAll sends after a committed mutation. The request context may already
// be cancelled by then, so delivery runs detached from it.
func notifyAll(ctx context.Context, n Notifier, notes ...models.Notification) {
	ctx = context.WithoutCancel(ctx)
	for _, note := range notes {
		n.Notify(ctx, note)
	}
}
