package notify

import (
	"testing"
)

func TestBroker_PublishDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	ch := make(chan []byte, 4)
	b.Subscribe("ep-1", "session-1", ch)

	b.Publish("ep-1", []byte(`{"n":1}`))

	select {
	case payload := <-ch:
		if string(payload) != `{"n":1}` {
			t.Fatalf("unexpected payload: %s", payload)
		}
	default:
		t.Fatal("expected payload on subscriber channel")
	}
}

func TestBroker_PublishIsolatedPerEndpoint(t *testing.T) {
	b := NewBroker()
	chX := make(chan []byte, 4)
	b.Subscribe("ep-x", "session-x", chX)

	b.Publish("ep-y", []byte("other"))

	select {
	case payload := <-chX:
		t.Fatalf("unexpected delivery to ep-x subscriber: %s", payload)
	default:
	}
}

func TestBroker_PublishFansOut(t *testing.T) {
	b := NewBroker()
	ch1 := make(chan []byte, 4)
	ch2 := make(chan []byte, 4)
	b.Subscribe("ep-1", "session-1", ch1)
	b.Subscribe("ep-1", "session-2", ch2)

	b.Publish("ep-1", []byte("event"))

	for i, ch := range []chan []byte{ch1, ch2} {
		select {
		case payload := <-ch:
			if string(payload) != "event" {
				t.Fatalf("subscriber %d: unexpected payload %s", i, payload)
			}
		default:
			t.Fatalf("subscriber %d: expected payload", i)
		}
	}
}

func TestBroker_PublishWithoutSubscribersIsNoop(t *testing.T) {
	b := NewBroker()
	// Must not panic or create registry entries.
	b.Publish("ep-unknown", []byte("event"))

	if len(b.subscribers) != 0 {
		t.Fatalf("expected empty registry, got %d entries", len(b.subscribers))
	}
}

func TestBroker_UnsubscribeRemovesAndClosesChannel(t *testing.T) {
	b := NewBroker()
	ch := make(chan []byte, 4)
	b.Subscribe("ep-1", "session-1", ch)

	b.Unsubscribe("session-1")

	if _, open := <-ch; open {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
	if len(b.subscribers) != 0 {
		t.Fatal("expected endpoint key removed when its collection empties")
	}

	// A capture against the former endpoint must not attempt delivery or error.
	b.Publish("ep-1", []byte("late"))
}

func TestBroker_UnsubscribeKeepsOtherSessions(t *testing.T) {
	b := NewBroker()
	ch1 := make(chan []byte, 4)
	ch2 := make(chan []byte, 4)
	b.Subscribe("ep-1", "session-1", ch1)
	b.Subscribe("ep-1", "session-2", ch2)

	b.Unsubscribe("session-1")

	if got := b.Subscribers("ep-1"); got != 1 {
		t.Fatalf("expected 1 remaining subscriber, got %d", got)
	}

	b.Publish("ep-1", []byte("event"))
	select {
	case <-ch2:
	default:
		t.Fatal("expected surviving subscriber to receive payload")
	}
}

func TestBroker_UnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroker()
	ch := make(chan []byte, 4)
	b.Subscribe("ep-1", "session-1", ch)

	b.Unsubscribe("session-1")
	b.Unsubscribe("session-1")
	b.Unsubscribe("session-never-existed")
}

func TestBroker_PublishPrunesFullChannel(t *testing.T) {
	b := NewBroker()
	full := make(chan []byte, 1)
	full <- []byte("backlog")
	healthy := make(chan []byte, 4)
	b.Subscribe("ep-1", "session-full", full)
	b.Subscribe("ep-1", "session-ok", healthy)

	b.Publish("ep-1", []byte("event"))

	if got := b.Subscribers("ep-1"); got != 1 {
		t.Fatalf("expected full subscriber pruned, got %d subscribers", got)
	}

	// The pruned channel is drained of its backlog and then closed.
	<-full
	if _, open := <-full; open {
		t.Fatal("expected pruned channel to be closed")
	}

	select {
	case payload := <-healthy:
		if string(payload) != "event" {
			t.Fatalf("unexpected payload: %s", payload)
		}
	default:
		t.Fatal("expected healthy subscriber to still receive payload")
	}
}

func TestBroker_PruningLastSubscriberRemovesEndpointKey(t *testing.T) {
	b := NewBroker()
	full := make(chan []byte, 1)
	full <- []byte("backlog")
	b.Subscribe("ep-1", "session-full", full)

	b.Publish("ep-1", []byte("event"))

	if len(b.subscribers) != 0 {
		t.Fatal("expected endpoint key removed after pruning last subscriber")
	}
}

func TestBroker_PerSubscriberFIFO(t *testing.T) {
	b := NewBroker()
	ch := make(chan []byte, 8)
	b.Subscribe("ep-1", "session-1", ch)

	for _, payload := range []string{"one", "two", "three"} {
		b.Publish("ep-1", []byte(payload))
	}

	for _, want := range []string{"one", "two", "three"} {
		got := string(<-ch)
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}
