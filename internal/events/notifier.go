package events

import "sync"

// Notifier fans out a wake-up signal to subscribers after events are
// committed. It carries no payload: subscribers re-read the events table from
// their own cursor, so every consumer observes the same durable log whether
// the write happened in this process or another one sharing the database.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan struct{})}
}

// Subscribe returns a signal channel and an unsubscribe func. The channel has
// a buffer of one; coalesced wake-ups are fine since consumers re-read by
// cursor anyway.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	ch := make(chan struct{}, 1)
	n.subs[id] = ch
	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Broadcast wakes every subscriber without blocking.
func (n *Notifier) Broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
