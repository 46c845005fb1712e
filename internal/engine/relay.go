package engine

import (
	"sync"

	"trolley/internal/backend"
)

// Watcher aggregates the change subscriptions of one view into a single
// coalesced signal. Events carry no payload; a receive means "something
// in scope changed, refetch".
type Watcher struct {
	subs []backend.Subscription
	ch   chan struct{}
	done chan struct{}
	once sync.Once
}

// Watch subscribes to every scope and fans the pings into one channel.
func Watch(rt backend.Realtime, scopes ...backend.Scope) (*Watcher, error) {
	w := &Watcher{ch: make(chan struct{}, 1), done: make(chan struct{})}
	for _, sc := range scopes {
		sub, err := rt.Subscribe(sc, w.ping)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.subs = append(w.subs, sub)
	}
	return w, nil
}

func (w *Watcher) ping() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Changes delivers one signal per burst of changes. The channel is
// never closed; listeners that must not outlive the watcher select on
// Done as well.
func (w *Watcher) Changes() <-chan struct{} { return w.ch }

// Done is closed when the watcher is torn down.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Close tears down every subscription. Safe to call more than once.
func (w *Watcher) Close() {
	w.once.Do(func() {
		for _, s := range w.subs {
			s.Unsubscribe()
		}
		close(w.done)
	})
}

// ListsScopes is what the lists screen watches: the lists themselves,
// memberships (lists appearing or going away), and items (the counts).
func ListsScopes() []backend.Scope {
	return []backend.Scope{
		{Table: backend.TableLists},
		{Table: backend.TableMemberships},
		{Table: backend.TableItems},
	}
}

// ItemsScopes is what one list's items screen watches: the list's items
// and the list row itself (rename, media).
func ItemsScopes(listID string) []backend.Scope {
	return []backend.Scope{
		{Table: backend.TableItems, ListID: listID},
		{Table: backend.TableLists, ListID: listID},
	}
}
