// Package channel abstracts the outbound side-effecting calls an executed
// action makes: sending a message, replying to a review, acknowledging an
// alert.
package channel

import "context"

// Sender delivers action side effects to the outside world. Every method
// returns an external reference id on success.
type Sender interface {
	// Send delivers an outbound message (SMS or similar) to an address.
	Send(ctx context.Context, to, body string) (string, error)
	// ReplyReview posts a public reply to a customer review.
	ReplyReview(ctx context.Context, reviewID, body string) (string, error)
	// Ack acknowledges an alert or advisory action without an outbound call.
	Ack(ctx context.Context, kind, message string) (string, error)
}
