package eventbus

import "testing"

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(1)
	defer unsubA()

	b.Publish(Event{Type: RunCompleted})
	b.Publish(Event{Type: NewsletterCreated})

	if got := (<-a).Type; got != RunCompleted {
		t.Fatalf("first event = %q", got)
	}
	if got := (<-a).Type; got != NewsletterCreated {
		t.Fatalf("second event = %q", got)
	}
	if e := <-c; e.Time.IsZero() {
		t.Fatal("publish should stamp time")
	}
	if b.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", b.Dropped())
	}

	unsubC()
	unsubC()
	b.Publish(Event{Type: TaskStarted})
	if _, ok := <-c; ok {
		t.Fatal("unsubscribed channel should be closed")
	}
}
