// Package ops posts internal alerts to Slack — job dead-letters and
// automation failures an operator should see, as distinct from the
// Slack connector a user might one day grant Alfred access to.
package ops

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier posts dead-letter alerts to a fixed ops channel. If botToken
// is empty it is a noop (logging only), matching the teacher's
// dev-without-Slack posture.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier builds a Notifier. botToken empty disables posting.
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the notifier has a live Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifyDeadLetter posts a one-line alert for a job that exhausted its
// retry budget or failed permanently. Errors posting to Slack are logged,
// never propagated — a missing ops alert must never fail the job engine.
func (n *Notifier) NotifyDeadLetter(ctx context.Context, jobType, jobID, code string) {
	text := fmt.Sprintf(":skull: job dead-lettered — type=%s id=%s code=%s", jobType, jobID, code)

	if !n.IsEnabled() {
		n.logger.Warn("ops notifier disabled, dropping dead-letter alert", "job_type", jobType, "job_id", jobID, "code", code)
		return
	}

	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false)); err != nil {
		n.logger.Error("posting dead-letter alert to slack", "error", err, "job_id", jobID)
	}
}
