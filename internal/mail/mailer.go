// Package mail delivers transactional email through the Resend API.
package mail

import "context"

// Message is a single transactional email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Mailer sends transactional email. Implementations: the direct Resend
// client and the asynq-backed enqueuer in the jobs package.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
