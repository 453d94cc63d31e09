package ports

import "context"

// EmailMessage is a single outbound email. Kind labels the flow that
// produced it (confirmation, password-reset) for metrics and logging.
type EmailMessage struct {
	To      string
	From    string
	Subject string
	Body    string
	Kind    string
}

// Notifier delivers email. Delivery failures are logged by the caller and
// never propagated to the operation that triggered the send; implementations
// may deliver synchronously or hand the message to a background lane.
type Notifier interface {
	Send(ctx context.Context, msg EmailMessage) error
}
