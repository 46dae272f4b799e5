// Package narration delivers spoken-feedback events to a speech sink
// without ever blocking the measurement loop. Events are advisory; losing
// one under load is acceptable, stalling capture is not.
package narration

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Kind labels what an event announces.
type Kind string

const (
	KindPhase      Kind = "phase"      // session entered a new phase
	KindBand       Kind = "band"       // running ROM crossed a band threshold
	KindReposition Kind = "reposition" // subject needs to adjust stance
)

// Event is one narration item. Detail is the text handed to the sink.
type Event struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id"`
	Phase     string    `json:"phase,omitempty"`
	Detail    string    `json:"detail"`
	At        time.Time `json:"at"`
}

// Sink renders an event to the user. Speak may block (speech synthesis
// takes real time); the announcer's worker absorbs that latency.
type Sink interface {
	Speak(ctx context.Context, ev Event) error
}

// LogSink writes events to the process log. Used in dev mode and as a
// fallback when no speech backend is configured.
type LogSink struct{}

func (LogSink) Speak(_ context.Context, ev Event) error {
	log.Printf("narration: [%s] %s", ev.Kind, ev.Detail)
	return nil
}

// Announcer fans events from publishers to a single sink worker through a
// bounded queue. Publish never blocks: when the queue is full the event is
// dropped and counted.
type Announcer struct {
	queue   chan Event
	sink    Sink
	dropped atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// NewAnnouncer creates an announcer with the given queue capacity and
// starts its drain worker.
func NewAnnouncer(sink Sink, capacity int) *Announcer {
	if capacity < 1 {
		capacity = 1
	}
	a := &Announcer{
		queue:  make(chan Event, capacity),
		sink:   sink,
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go a.drain()
	return a
}

// Publish enqueues an event, dropping it if the queue is full or the
// announcer is closed.
func (a *Announcer) Publish(ev Event) {
	select {
	case <-a.closed:
		a.dropped.Add(1)
		return
	default:
	}
	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded due to backpressure.
func (a *Announcer) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events, drains what is already queued, and waits
// for the worker to exit.
func (a *Announcer) Close() {
	a.closeOnce.Do(func() { close(a.closed) })
	<-a.done
}

func (a *Announcer) drain() {
	defer close(a.done)
	for {
		select {
		case ev := <-a.queue:
			a.speak(ev)
		case <-a.closed:
			for {
				select {
				case ev := <-a.queue:
					a.speak(ev)
				default:
					return
				}
			}
		}
	}
}

func (a *Announcer) speak(ev Event) {
	if err := a.sink.Speak(context.Background(), ev); err != nil {
		log.Printf("narration: sink error: %v", err)
	}
}
