package push

import (
	"context"
	"errors"
	"testing"
)

type recordingNotifier struct {
	sent []Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

type countingObserver struct {
	ok, failed int
}

func (c *countingObserver) PushSent(err error) {
	if err != nil {
		c.failed++
		return
	}
	c.ok++
}

func TestSendSkipsMissingToken(t *testing.T) {
	rec := &recordingNotifier{}
	Send(context.Background(), rec, Notification{Title: "New message"})
	if len(rec.sent) != 0 {
		t.Errorf("expected no delivery, got %v", rec.sent)
	}
	Send(context.Background(), nil, Notification{Token: "t"})
}

func TestSendSwallowsFailures(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("fcm down")}
	obs := &countingObserver{}
	Send(context.Background(), Instrument(rec, obs), Notification{Token: "t", Title: "x"})
	if len(rec.sent) != 1 || obs.failed != 1 {
		t.Errorf("sent=%d failed=%d", len(rec.sent), obs.failed)
	}

	rec.err = nil
	Send(context.Background(), Instrument(rec, obs), Notification{Token: "t", Title: "y"})
	if obs.ok != 1 {
		t.Errorf("ok=%d", obs.ok)
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).Notify(context.Background(), Notification{Token: "t"}); err != nil {
		t.Error(err)
	}
}
