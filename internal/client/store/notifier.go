package store

import (
	"sync"

	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

// Notifier fans out batches of invalidated table names. Publish never
// blocks: a slow subscriber accumulates pending tables and receives them as
// one batch once it catches up.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	mu      sync.Mutex
	pending map[wire.Table]struct{}
	wake    chan struct{}
	out     chan []wire.Table
	done    chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]*subscriber)}
}

// Subscribe registers an observer. The returned cancel func closes the
// channel and must be called to release resources.
func (n *Notifier) Subscribe() (<-chan []wire.Table, func()) {
	s := &subscriber{
		pending: make(map[wire.Table]struct{}),
		wake:    make(chan struct{}, 1),
		out:     make(chan []wire.Table),
		done:    make(chan struct{}),
	}

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = s
	n.mu.Unlock()

	go s.forward()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(s.done)
		})
	}
	return s.out, cancel
}

// Publish delivers tables to every subscriber.
func (n *Notifier) Publish(tables []wire.Table) {
	if len(tables) == 0 {
		return
	}
	n.mu.Lock()
	subs := make([]*subscriber, 0, len(n.subs))
	for _, s := range n.subs {
		subs = append(subs, s)
	}
	n.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		for _, t := range tables {
			s.pending[t] = struct{}{}
		}
		s.mu.Unlock()
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

func (s *subscriber) drain() []wire.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	batch := make([]wire.Table, 0, len(s.pending))
	for t := range s.pending {
		batch = append(batch, t)
	}
	s.pending = make(map[wire.Table]struct{})
	return wire.Ordered(batch)
}

func (s *subscriber) forward() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		batch := s.drain()
		if len(batch) == 0 {
			continue
		}
		select {
		case s.out <- batch:
		case <-s.done:
			return
		}
	}
}
