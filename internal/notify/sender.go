// Package notify fans out threat alerts over email and signed webhooks.
// All delivery is best effort: a failed alert is logged and reported as
// a bool, never an error that could abort a mitigation run.
package notify

import "context"

// Message is the alert envelope delivered to each email recipient.
// Urgency is the severity tier of the originating threat; senders use it
// to set delivery priority so critical alerts surface first.
type Message struct {
	Subject string
	Body    string
	Urgency string
}

// EmailSender delivers one alert message to one recipient.
type EmailSender interface {
	Send(ctx context.Context, to string, msg Message) error
}
