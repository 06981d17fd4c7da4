package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gigbook/backend/internal/config"
	"github.com/gigbook/backend/internal/models"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Deliverer sends a notification to its recipient over some channel.
type Deliverer interface {
	Deliver(ctx context.Context, n models.Notification) error
}

// NewServer builds the asynq worker server for the notifications queue.
func NewServer(redisOpt asynq.RedisClientOpt, cfg config.NotificationsConfig, log *zap.Logger) *asynq.Server {
	if log == nil {
		log = zap.NewNop()
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "notifications"
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      log.Named("asynq").Sugar(),
	})
}

func NewServeMux(d Deliverer, log *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSendNotification, HandleSendNotification(d, log))
	return mux
}

// HandleSendNotification decodes and delivers one notification. Undecodable
// payloads are not retried.
func HandleSendNotification(d Deliverer, log *zap.Logger) asynq.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, task *asynq.Task) error {
		var n models.Notification
		if err := json.Unmarshal(task.Payload(), &n); err != nil {
			log.Warn("invalid notification payload", zap.Error(err))
			return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
		}

		if err := d.Deliver(ctx, n); err != nil {
			log.Warn("notification delivery failed",
				zap.String("user_id", n.UserID),
				zap.String("type", n.Type),
				zap.Error(err),
			)
			return err
		}
		return nil
	}
}

// LogDeliverer records deliveries in the log. Push and email channels plug in
// behind Deliverer.
type LogDeliverer struct {
	log *zap.Logger
}

func NewLogDeliverer(log *zap.Logger) *LogDeliverer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogDeliverer{log: log.Named("delivery")}
}

func (l *LogDeliverer) Deliver(_ context.Context, n models.Notification) error {
	l.log.Info("notification delivered",
		zap.String("user_id", n.UserID),
		zap.String("type", n.Type),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
	)
	return nil
}
