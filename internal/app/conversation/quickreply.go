package conversation

import (
	"context"

	"github.com/PabloGalante/carebot/internal/domain"
)

const (
	emergencyText    = "This is an emergency"
	emergencyPayload = "/emergency_help"
	feedbackText     = "I want to provide feedback"
	feedbackPayload  = "/provide_feedback"
)

// Select sends a quick reply as if typed: the label becomes the user's
// message body and the payload is what the server receives.
func (c *Conversation) Select(ctx context.Context, qr domain.QuickReply) (*domain.Message, error) {
	return c.Send(ctx, qr.Label, qr.Payload)
}

// SelectButton does the same for a button on a bot message.
func (c *Conversation) SelectButton(ctx context.Context, b domain.Button) (*domain.Message, error) {
	return c.Send(ctx, b.Label, b.Payload)
}

func (c *Conversation) Emergency(ctx context.Context) (*domain.Message, error) {
	return c.Send(ctx, emergencyText, emergencyPayload)
}

func (c *Conversation) Feedback(ctx context.Context) (*domain.Message, error) {
	return c.Send(ctx, feedbackText, feedbackPayload)
}
