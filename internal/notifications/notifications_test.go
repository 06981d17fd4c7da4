package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gigbook/backend/internal/config"
	"github.com/gigbook/backend/internal/models"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

type fakeDeliverer struct {
	delivered []models.Notification
	err       error
}

func (f *fakeDeliverer) Deliver(_ context.Context, n models.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, n)
	return nil
}

func releaseNotice() models.Notification {
	return models.Notification{
		UserID:  "m1",
		Type:    models.NotifyFundsReleased,
		Title:   "Funds released",
		Message: "NGN 90.00 is now available",
		Data:    map[string]any{"bookingId": "b1"},
	}
}

func TestQueueNotifier_Notify(t *testing.T) {
	t.Run("enqueues on the configured queue", func(t *testing.T) {
		client := &fakeEnqueuer{}
		notifier := NewQueueNotifier(client, config.NotificationsConfig{Queue: "alerts", MaxRetry: 5}, nil)

		notifier.Notify(context.Background(), releaseNotice())

		require.Len(t, client.tasks, 1)
		assert.Equal(t, TypeSendNotification, client.tasks[0].Type())

		var decoded models.Notification
		require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &decoded))
		assert.Equal(t, "m1", decoded.UserID)
		assert.Equal(t, models.NotifyFundsReleased, decoded.Type)

		require.Len(t, client.opts[0], 2)
		assert.Equal(t, asynq.QueueOpt, client.opts[0][0].Type())
		assert.Equal(t, "alerts", client.opts[0][0].Value())
		assert.Equal(t, asynq.MaxRetryOpt, client.opts[0][1].Type())
	})

	t.Run("enqueue failure is logged, not raised", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		client := &fakeEnqueuer{err: errors.New("redis down")}
		notifier := NewQueueNotifier(client, config.NotificationsConfig{}, zap.New(core))

		notifier.Notify(context.Background(), releaseNotice())

		assert.Equal(t, 1, logs.FilterMessage("failed to enqueue notification").Len())
	})
}

func TestHandleSendNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers", func(t *testing.T) {
		d := &fakeDeliverer{}
		task, err := NewNotificationTask(releaseNotice())
		require.NoError(t, err)

		require.NoError(t, HandleSendNotification(d, nil)(ctx, task))
		require.Len(t, d.delivered, 1)
		assert.Equal(t, "Funds released", d.delivered[0].Title)
	})

	t.Run("bad payload is not retried", func(t *testing.T) {
		task := asynq.NewTask(TypeSendNotification, []byte("{"))

		err := HandleSendNotification(&fakeDeliverer{}, nil)(ctx, task)
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("delivery failure is retried", func(t *testing.T) {
		d := &fakeDeliverer{err: errors.New("smtp timeout")}
		task, err := NewNotificationTask(releaseNotice())
		require.NoError(t, err)

		err = HandleSendNotification(d, nil)(ctx, task)
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestNewServeMux(t *testing.T) {
	d := &fakeDeliverer{}
	task, err := NewNotificationTask(releaseNotice())
	require.NoError(t, err)

	require.NoError(t, NewServeMux(d, nil).ProcessTask(context.Background(), task))
	assert.Len(t, d.delivered, 1)
}
