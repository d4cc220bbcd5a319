package mail

import "context"

// Sender is the interface the worker sends through. The abstraction
// keeps the Gmail API out of the orchestrator and lets tests substitute
// a recording fake.
type Sender interface {
	// Send transmits a base64url-encoded transport envelope.
	Send(ctx context.Context, raw string) error
}
