package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
)

type capture struct {
	events []loyalty.Event
	fail   error
}

func (c *capture) Notify(ctx context.Context, ev loyalty.Event) error {
	if c.fail != nil {
		return c.fail
	}
	c.events = append(c.events, ev)
	return nil
}

func TestFanout_DeliversToAllSinks(t *testing.T) {
	a := &capture{}
	b := &capture{}
	f := NewFanout(a, b)

	ev := loyalty.Event{Type: loyalty.EventLowStock, At: time.Now()}
	if err := f.Notify(context.Background(), ev); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("expected both sinks to receive the event, got %d/%d", len(a.events), len(b.events))
	}
}

func TestFanout_FailureDoesNotStopDelivery(t *testing.T) {
	boom := errors.New("sink down")
	broken := &capture{fail: boom}
	working := &capture{}
	f := NewFanout(broken, working)

	err := f.Notify(context.Background(), loyalty.Event{Type: loyalty.EventPointsEarned})

	if !errors.Is(err, boom) {
		t.Errorf("expected the sink error to surface, got %v", err)
	}
	if len(working.events) != 1 {
		t.Error("a failing sink must not block the others")
	}
}

func TestLog_NeverFails(t *testing.T) {
	s := NewLog(nil)
	if err := s.Notify(context.Background(), loyalty.Event{Type: loyalty.EventRequestApproved}); err != nil {
		t.Fatalf("log sink returned error: %v", err)
	}
}
