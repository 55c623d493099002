package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lawmakers-app/lawmakers-api/internal/mail"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// NewSendEmailTask constructs an Asynq task carrying a mail message.
func NewSendEmailTask(msg mail.Message) (*asynq.Task, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewSendEmailHandler returns the processor for TaskTypeSendEmail tasks,
// delivering through the given mailer. A malformed payload is dropped; a
// provider failure is returned so asynq retries it.
func NewSendEmailHandler(mailer mail.Mailer, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var msg mail.Message
		if err := json.Unmarshal(t.Payload(), &msg); err != nil {
			logger.Error("malformed mail task payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		if err := mailer.Send(ctx, msg); err != nil {
			logger.Warn("mail delivery failed, will retry", slog.Any("error", err))
			return err
		}
		return nil
	}
}
