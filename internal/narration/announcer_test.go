package narration

import (
	"context"
	"sync"
	"testing"
	"time"
)

// collectSink records spoken events and can be told to block until released.
type collectSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (s *collectSink) Speak(_ context.Context, ev Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *collectSink) spoken() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestAnnouncerDeliversInOrder(t *testing.T) {
	sink := &collectSink{}
	a := NewAnnouncer(sink, 8)
	a.Publish(Event{Kind: KindPhase, Detail: "calibrating"})
	a.Publish(Event{Kind: KindPhase, Detail: "measuring"})
	a.Publish(Event{Kind: KindBand, Detail: "good"})
	a.Close()

	got := sink.spoken()
	if len(got) != 3 {
		t.Fatalf("spoke %d events, want 3", len(got))
	}
	if got[0].Detail != "calibrating" || got[2].Detail != "good" {
		t.Errorf("events out of order: %+v", got)
	}
	if a.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", a.Dropped())
	}
}

func TestPublishNeverBlocksOnFullQueue(t *testing.T) {
	sink := &collectSink{block: make(chan struct{})}
	a := NewAnnouncer(sink, 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			a.Publish(Event{Kind: KindBand, Detail: "x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	if a.Dropped() == 0 {
		t.Error("expected drops with a blocked sink and a full queue")
	}
	close(sink.block)
	a.Close()
}

func TestCloseDrainsQueuedEvents(t *testing.T) {
	sink := &collectSink{}
	a := NewAnnouncer(sink, 16)
	for i := 0; i < 10; i++ {
		a.Publish(Event{Kind: KindPhase, Detail: "p"})
	}
	a.Close()

	if got := len(sink.spoken()); got+int(a.Dropped()) != 10 {
		t.Errorf("spoke %d + dropped %d, want total 10", got, a.Dropped())
	}
}

func TestPublishAfterCloseDrops(t *testing.T) {
	a := NewAnnouncer(&collectSink{}, 4)
	a.Close()
	a.Publish(Event{Kind: KindPhase, Detail: "late"})
	if a.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", a.Dropped())
	}
	a.Close() // second close is a no-op
}
