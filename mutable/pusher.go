package mutable

import "sync"

// Pusher collects mutations from any goroutine until the owner takes them.
// Owner is notified through the channel returned by Ready.
type Pusher struct {
	mu        sync.Mutex
	mutations Mutations
	ready     chan struct{}
}

// NewPusher creates new pusher.
func NewPusher() *Pusher {
	return &Pusher{
		ready: make(chan struct{}, 1),
	}
}

// Put mutations to the pusher.
func (p *Pusher) Put(mutations ...Mutation) {
	p.mu.Lock()
	for _, m := range mutations {
		p.mutations = p.mutations.Put(m)
	}
	p.mu.Unlock()
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

// Ready returns channel which receives a value after mutations were put.
func (p *Pusher) Ready() <-chan struct{} {
	return p.ready
}

// Take returns all collected mutations and resets the pusher. Nil is
// returned if there are no mutations.
func (p *Pusher) Take() Mutations {
	p.mu.Lock()
	defer p.mu.Unlock()
	ms := p.mutations
	p.mutations = nil
	return ms
}
