package mail

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailSender implements Sender using the Gmail API.
type GmailSender struct {
	service *gmail.Service
}

// NewGmailSender creates a GmailSender from an authorized token source.
func NewGmailSender(ctx context.Context, ts oauth2.TokenSource) (*GmailSender, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}
	return &GmailSender{service: svc}, nil
}

// Send sends an already-encoded message as the authorized user.
func (g *GmailSender) Send(ctx context.Context, raw string) error {
	msg := &gmail.Message{Raw: raw}
	if _, err := g.service.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail: failed to send email: %w", err)
	}
	return nil
}
