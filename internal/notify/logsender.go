package notify

import (
	"context"
	"log/slog"
)

// LogPush stands in for the push gateway when none is configured. Every
// token is reported as delivered to the log.
type LogPush struct{}

func (LogPush) SendMulticast(_ context.Context, msg PushMessage) (PushResult, error) {
	slog.Info("push (log only)", "tokens", len(msg.Tokens), "title", msg.Title, "alert_id", msg.Data["alert_id"])
	return PushResult{SuccessCount: len(msg.Tokens)}, nil
}

type LogSMS struct{}

func (LogSMS) Send(_ context.Context, numbers []string, body string) (map[string]string, error) {
	statuses := make(map[string]string, len(numbers))
	for _, n := range numbers {
		statuses[n] = "sent"
	}
	slog.Info("sms (log only)", "numbers", len(numbers), "body", body)
	return statuses, nil
}

// LogEmail is the only email transport; admin escalations are written to
// the log for the on-call mailbox relay to pick up.
type LogEmail struct{}

func (LogEmail) Send(_ context.Context, to, subject, body string) error {
	slog.Info("email (log only)", "to", to, "subject", subject, "body", body)
	return nil
}
