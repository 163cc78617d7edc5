// Package notify delivers report lifecycle events to interested consumers:
// an in-process fan-out feeding the SSE endpoint and an AMQP publisher for
// external systems. Delivery is at-most-once; the workflow never blocks on a
// slow consumer.
package notify

import (
	"context"
	"sync"

	"siteops.kr/internal/report"
)

// Stream fan-outs report events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan report.Event
	next int
}

var _ report.Dispatcher = (*Stream)(nil)

// NewStream initialises an empty stream.
func NewStream() *Stream {
	return &Stream{subs: make(map[int]chan report.Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan report.Event {
	ch := make(chan report.Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Dispatch fan-outs the event to all subscribers.
func (s *Stream) Dispatch(ctx context.Context, evt report.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
	return nil
}
