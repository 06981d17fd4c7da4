// Package notifications queues user notifications on asynq and delivers them
// from a worker.
package notifications

import (
	"encoding/json"

	"github.com/gigbook/backend/internal/models"
	"github.com/hibiken/asynq"
)

const TypeSendNotification = "notification:send"

func NewNotificationTask(n models.Notification) (*asynq.Task, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSendNotification, b), nil
}
