// Package push delivers device notifications to team members and customers.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"
)

// ErrNoToken is returned when the recipient has no registered device.
var ErrNoToken = errors.New("no push token")

// Notification is one message to one device.
type Notification struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// Notifier sends a notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

// FCM sends notifications through Firebase Cloud Messaging.
type FCM struct {
	client *messaging.Client
}

// NewFCM creates an FCM notifier.
func NewFCM(client *messaging.Client) *FCM {
	return &FCM{client: client}
}

func (f *FCM) Notify(ctx context.Context, n Notification) error {
	if n.Token == "" {
		return ErrNoToken
	}
	id, err := f.client.Send(ctx, &messaging.Message{
		Token: n.Token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
	})
	if err != nil {
		if messaging.IsUnregistered(err) {
			return fmt.Errorf("device unregistered: %w", err)
		}
		return fmt.Errorf("sending fcm message: %w", err)
	}
	slog.Debug("push sent", "message_id", id)
	return nil
}

// Observer records push outcomes.
type Observer interface {
	PushSent(err error)
}

// Instrument wraps n so every attempt is reported to obs.
func Instrument(n Notifier, obs Observer) Notifier {
	return &instrumented{next: n, obs: obs}
}

type instrumented struct {
	next Notifier
	obs  Observer
}

func (i *instrumented) Notify(ctx context.Context, n Notification) error {
	err := i.next.Notify(ctx, n)
	i.obs.PushSent(err)
	return err
}

// Send delivers n and logs any failure. Recipients without a token are
// skipped silently. Push is best effort and never fails the caller.
func Send(ctx context.Context, notifier Notifier, n Notification) {
	if notifier == nil || n.Token == "" {
		return
	}
	if err := notifier.Notify(ctx, n); err != nil {
		slog.Warn("push notification failed",
			"title", n.Title,
			"error", err,
		)
	}
}
