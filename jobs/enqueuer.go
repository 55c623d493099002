package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/lawmakers-app/lawmakers-api/internal/mail"
)

// MailEnqueuer implements mail.Mailer by queueing messages for the worker
// instead of sending inline. Delivery becomes at-least-once with asynq
// retries; a slow provider no longer sits on the request path.
type MailEnqueuer struct {
	client *asynq.Client
}

// NewMailEnqueuer constructs a MailEnqueuer.
func NewMailEnqueuer(client *asynq.Client) *MailEnqueuer {
	return &MailEnqueuer{client: client}
}

// Send enqueues the message on the default queue.
func (e *MailEnqueuer) Send(ctx context.Context, msg mail.Message) error {
	task, err := NewSendEmailTask(msg)
	if err != nil {
		return fmt.Errorf("jobs: build mail task: %w", err)
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("jobs: enqueue mail task: %w", err)
	}
	return nil
}

var _ mail.Mailer = (*MailEnqueuer)(nil)
