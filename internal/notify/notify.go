// Package notify delivers lifecycle notifications to interested users.
//
// Delivery is strictly fire-and-forget: a failing sink is logged and
// swallowed, never surfaced to the caller. A status change or decision
// must not fail because a webhook endpoint is down.
package notify

import (
	"context"
	"log"
	"time"
)

// Event classifies what happened to a request.
type Event string

const (
	EventStatusChanged    Event = "status_changed"
	EventDecisionRecorded Event = "decision_recorded"
	EventReviewNeeded     Event = "review_needed"
	EventInfoRequested    Event = "info_requested"
)

// Notification is one message addressed to one user.
type Notification struct {
	Event        Event  `json:"event"`
	RequestID    string `json:"request_id"`
	RequestTitle string `json:"request_title"`
	RecipientID  string `json:"recipient_id"`
	Message      string `json:"message"`
	SentAt       string `json:"sent_at"`
}

// Sink is a delivery channel for notifications.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// For testing: freeze time.
var timeNow = time.Now

// Notifier fans a notification out to every configured sink.
type Notifier struct {
	sinks  []Sink
	logger *log.Logger
}

// New builds a Notifier over the given sinks. A nil logger falls back
// to the process default.
func New(logger *log.Logger, sinks ...Sink) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{sinks: sinks, logger: logger}
}

// Notify stamps and delivers n on every sink. Sink failures are logged
// and dropped.
func (nt *Notifier) Notify(ctx context.Context, n Notification) {
	if n.SentAt == "" {
		n.SentAt = timeNow().UTC().Format(time.RFC3339)
	}
	for _, sink := range nt.sinks {
		if err := sink.Send(ctx, n); err != nil {
			nt.logger.Printf("WARNING: notification %s for request %s not delivered: %v",
				n.Event, n.RequestID, err)
		}
	}
}

// NotifyAll delivers the same notification body to several recipients.
func (nt *Notifier) NotifyAll(ctx context.Context, recipients []string, n Notification) {
	for _, r := range recipients {
		n.RecipientID = r
		nt.Notify(ctx, n)
	}
}
