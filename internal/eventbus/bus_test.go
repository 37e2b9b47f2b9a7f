package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestPublishFanOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeClipStarted, Data: "wave"})
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeClipStarted || e.Time.IsZero() {
				t.Fatalf("event = %+v", e)
			}
		default:
			t.Fatal("subscriber missed event")
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if b.Dropped() != 99 {
		t.Fatalf("dropped = %d, want 99", b.Dropped())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open")
	}
	b.Publish(Event{Type: "after"})
}

func TestRecorderRing(t *testing.T) {
	t.Parallel()
	r := NewRecorder(3)
	if got := r.Recent(0); len(got) != 0 {
		t.Fatalf("empty recorder returned %d", len(got))
	}
	for _, typ := range []string{"a", "b", "c", "d"} {
		r.Add(Event{Type: typ})
	}
	got := r.Recent(0)
	if len(got) != 3 || got[0].Type != "b" || got[2].Type != "d" {
		t.Fatalf("Recent(0) = %+v", got)
	}
	if got := r.Recent(2); len(got) != 2 || got[0].Type != "c" || got[1].Type != "d" {
		t.Fatalf("Recent(2) = %+v", got)
	}
}

func TestRecorderRun(t *testing.T) {
	t.Parallel()
	b := New()
	r := NewRecorder(8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx, b)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(r.Recent(0)) == 0 && time.Now().Before(deadline) {
		b.Publish(Event{Type: TypeCueDispatched})
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if len(r.Recent(0)) == 0 {
		t.Fatal("recorder saw no events")
	}
}
