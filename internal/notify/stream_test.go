package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"siteops.kr/internal/report"
)

func TestStreamFanOut(t *testing.T) {
	s := NewStream()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := s.Subscribe(ctx)
	b := s.Subscribe(ctx)

	evt := report.Event{ReportID: "r-1", FromStatus: report.StatusDraft, ToStatus: report.StatusSubmitted}
	if err := s.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	for name, ch := range map[string]<-chan report.Event{"a": a, "b": b} {
		select {
		case got := <-ch:
			if got.ReportID != "r-1" || got.ToStatus != report.StatusSubmitted {
				t.Fatalf("subscriber %s got %+v", name, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s received nothing", name)
		}
	}
}

func TestStreamUnsubscribeOnContextDone(t *testing.T) {
	s := NewStream()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	// The channel closes once the subscription is torn down.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancellation")
		}
	}
}

func TestStreamDropsWhenSubscriberSlow(t *testing.T) {
	s := NewStream()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	// Fill the buffer and keep going; Dispatch must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = s.Dispatch(context.Background(), report.Event{ReportID: "r-1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on a slow subscriber")
	}

	var received int
	for {
		select {
		case <-ch:
			received++
		default:
			if received == 0 || received > 100 {
				t.Fatalf("received = %d", received)
			}
			return
		}
	}
}

type stubDispatcher struct {
	calls int
	err   error
}

func (d *stubDispatcher) Dispatch(ctx context.Context, evt report.Event) error {
	d.calls++
	return d.err
}

func TestMultiDeliversToAllDespiteFailure(t *testing.T) {
	bad := &stubDispatcher{err: errors.New("broker down")}
	good := &stubDispatcher{}
	m := Multi{bad, nil, good}

	err := m.Dispatch(context.Background(), report.Event{ReportID: "r-1"})
	if err == nil || !errors.Is(err, bad.err) {
		t.Fatalf("expected joined failure, got %v", err)
	}
	if good.calls != 1 || bad.calls != 1 {
		t.Fatalf("calls = good %d bad %d, want 1 each", good.calls, bad.calls)
	}
}
