package delivery

import (
	"context"

	"go.uber.org/zap"

	"mytaskpro/internal/model"
)

// LogPresenter writes notifications to the log. Used when no bot is configured.
type LogPresenter struct {
	log *zap.Logger
}

func NewLogPresenter(log *zap.Logger) *LogPresenter {
	return &LogPresenter{log: log}
}

func (p *LogPresenter) Present(_ context.Context, task *model.Task, payload model.NotificationPayload) error {
	p.log.Info("notification",
		zap.Uint("task_id", task.ID),
		zap.Uint("user_id", task.UserID),
		zap.String("kind", string(payload.Kind)),
		zap.String("title", payload.Title),
		zap.String("body", payload.Body),
		zap.Strings("actions", []string{"complete", "snooze"}))
	return nil
}
