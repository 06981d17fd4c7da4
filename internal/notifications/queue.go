package notifications

import (
	"context"

	"github.com/gigbook/backend/internal/config"
	"github.com/gigbook/backend/internal/models"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Enqueuer is the part of *asynq.Client the notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier hands notifications to the worker queue. Enqueue failures
// are logged and dropped; callers have already committed their mutation.
type QueueNotifier struct {
	client Enqueuer
	opts   []asynq.Option
	log    *zap.Logger
}

func NewQueueNotifier(client Enqueuer, cfg config.NotificationsConfig, log *zap.Logger) *QueueNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "notifications"
	}
	opts := []asynq.Option{asynq.Queue(queue)}
	if cfg.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(cfg.MaxRetry))
	}
	return &QueueNotifier{client: client, opts: opts, log: log.Named("notifier")}
}

func (q *QueueNotifier) Notify(ctx context.Context, n models.Notification) {
	task, err := NewNotificationTask(n)
	if err != nil {
		q.log.Warn("failed to encode notification", zap.String("type", n.Type), zap.Error(err))
		return
	}

	info, err := q.client.EnqueueContext(ctx, task, q.opts...)
	if err != nil {
		q.log.Warn("failed to enqueue notification",
			zap.String("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.Error(err),
		)
		return
	}
	q.log.Debug("notification queued", zap.String("task_id", info.ID), zap.String("type", n.Type))
}

// LogNotifier writes notifications to the log. Used when Redis is not
// configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log.Named("notifier")}
}

func (l *LogNotifier) Notify(_ context.Context, n models.Notification) {
	l.log.Info("notification",
		zap.String("user_id", n.UserID),
		zap.String("type", n.Type),
		zap.String("title", n.Title),
	)
}
