package local

import (
	"sync"

	"trolley/internal/backend"
)

// hub is the in-process change relay: every committed write broadcasts
// its (table, list) pair to the subscriptions whose scope matches.
type hub struct {
	mu   sync.Mutex
	subs map[int]*hubSub
	next int
}

type hubSub struct {
	hub   *hub
	id    int
	scope backend.Scope
	fn    func()
}

func newHub() *hub {
	return &hub{subs: map[int]*hubSub{}}
}

func (h *hub) subscribe(scope backend.Scope, fn func()) *hubSub {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	s := &hubSub{hub: h, id: h.next, scope: scope, fn: fn}
	h.subs[s.id] = s
	return s
}

// broadcast notifies matching subscribers. Callbacks run on the writer's
// goroutine and must not block; the engine's watcher only flips a
// buffered channel.
func (h *hub) broadcast(table backend.Table, listID string) {
	h.mu.Lock()
	fns := make([]func(), 0, len(h.subs))
	for _, s := range h.subs {
		if s.scope.Table != table {
			continue
		}
		if s.scope.ListID != "" && s.scope.ListID != listID {
			continue
		}
		fns = append(fns, s.fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *hubSub) Unsubscribe() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	delete(s.hub.subs, s.id)
}

// Subscribe implements backend.Realtime.
func (b *Backend) Subscribe(scope backend.Scope, fn func()) (backend.Subscription, error) {
	return b.hub.subscribe(scope, fn), nil
}
