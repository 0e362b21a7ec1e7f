// Package notify implements the process-wide fan-out registry that connects
// the capture path to live viewers. Delivery is best-effort: no retry, no
// replay, at most once per subscriber.
package notify

import "sync"

type subscriber struct {
	sessionID string
	ch        chan []byte
}

// Broker maps an endpoint id to the set of currently-live viewer channels.
// It exclusively owns the subscription registry; all three operations run
// under a single registry-wide mutex, held only for map mutation and scan,
// never across a network or storage call.
type Broker struct {
	mu          sync.Mutex
	subscribers map[string][]subscriber
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string][]subscriber),
	}
}

// Subscribe registers a delivery channel for an endpoint. Duplicate session
// ids are not checked; callers must generate a fresh id per connection.
//
// Ownership of ch passes to the broker: it is closed when the subscription
// is removed, by Unsubscribe or by pruning during Publish.
func (b *Broker) Subscribe(endpointID, sessionID string, ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[endpointID] = append(b.subscribers[endpointID], subscriber{
		sessionID: sessionID,
		ch:        ch,
	})
}

// Unsubscribe removes the subscription with the given session id from
// whichever endpoint holds it and closes its channel. Endpoints left with no
// subscribers are dropped from the registry. Safe to call more than once;
// an already-removed session id is a no-op.
func (b *Broker) Unsubscribe(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for endpointID, subs := range b.subscribers {
		kept := subs[:0]
		for _, sub := range subs {
			if sub.sessionID == sessionID {
				close(sub.ch)
				continue
			}
			kept = append(kept, sub)
		}
		if len(kept) == 0 {
			delete(b.subscribers, endpointID)
		} else {
			b.subscribers[endpointID] = kept
		}
	}
}

// Subscribers reports how many viewers are currently registered for an
// endpoint.
func (b *Broker) Subscribers(endpointID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[endpointID])
}

// Publish attempts a non-blocking send of payload to every subscriber of the
// endpoint. An endpoint with no subscribers is a no-op, not an error. Any
// subscriber whose send fails is treated as disconnected: it is removed and
// its channel closed as part of this call. Delivery failure is the only
// disconnect signal the broker has, so dead viewers are reaped inline rather
// than by a separate pass.
func (b *Broker) Publish(endpointID string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[endpointID]
	if !ok {
		return
	}

	kept := subs[:0]
	for _, sub := range subs {
		select {
		case sub.ch <- payload:
			kept = append(kept, sub)
		default:
			// Full or abandoned channel; indistinguishable from gone.
			close(sub.ch)
		}
	}
	if len(kept) == 0 {
		delete(b.subscribers, endpointID)
	} else {
		b.subscribers[endpointID] = kept
	}
}
