package notify

import "context"

// PushMessage is one multicast request. Tokens holds at most one batch.
type PushMessage struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
}

// PushResult is the provider's report for a single batch.
type PushResult struct {
	SuccessCount int
	FailureCount int
	Errors       map[string]string // token -> error detail
}

type PushSender interface {
	SendMulticast(ctx context.Context, msg PushMessage) (PushResult, error)
}

// SMSSender returns a delivery status string per phone number.
type SMSSender interface {
	Send(ctx context.Context, numbers []string, body string) (map[string]string, error)
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}
