package remote

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trolley/internal/api"
	"trolley/internal/backend"
)

var errFeedClosed = errors.New("backend closed")

var wsDialer = &websocket.Dialer{
	Proxy:            http.ProxyFromEnvironment,
	HandshakeTimeout: 10 * time.Second,
}

// feed owns the websocket connection to /v1/realtime and fans incoming
// change frames out to local subscriptions. It holds a connection only
// while at least one subscription exists and a token is present, and
// redials with backoff when the connection drops.
type feed struct {
	b *Backend

	mu      sync.Mutex
	subs    map[int]*feedSub
	next    int
	conn    *websocket.Conn
	running bool
	closed  bool

	kick chan struct{}
	done chan struct{}
}

type feedSub struct {
	f     *feed
	id    int
	scope backend.Scope
	fn    func()
}

func newFeed(b *Backend) *feed {
	return &feed{
		b:    b,
		subs: map[int]*feedSub{},
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (f *feed) subscribe(scope backend.Scope, fn func()) (backend.Subscription, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, errFeedClosed
	}
	s := &feedSub{f: f, id: f.next, scope: scope, fn: fn}
	f.next++
	f.subs[s.id] = s
	if !f.running {
		f.running = true
		go f.run()
	}
	f.mu.Unlock()

	f.wake()
	return s, nil
}

func (s *feedSub) Unsubscribe() {
	f := s.f
	f.mu.Lock()
	delete(f.subs, s.id)
	conn := f.conn
	empty := len(f.subs) == 0
	f.mu.Unlock()

	// Drop the connection when nobody is listening; the run loop parks
	// until the next subscription.
	if empty && conn != nil {
		_ = conn.Close()
	}
}

// wake nudges a parked run loop without touching a live connection. New
// subscriptions need no handshake: the server already sends every event
// the account can see.
func (f *feed) wake() {
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

// poke additionally drops the current connection so the loop redials
// with the current token. Called after every auth state change.
func (f *feed) poke() {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	f.wake()
}

func (f *feed) close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	conn := f.conn
	f.mu.Unlock()

	close(f.done)
	if conn != nil {
		_ = conn.Close()
	}
}

func (f *feed) run() {
	const maxBackoff = 30 * time.Second
	backoff := time.Second

	for {
		select {
		case <-f.done:
			return
		default:
		}

		if f.b.currentToken() == "" || f.subCount() == 0 {
			select {
			case <-f.done:
				return
			case <-f.kick:
			}
			continue
		}

		conn, err := f.dial()
		if err != nil {
			select {
			case <-f.done:
				return
			case <-f.kick:
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		f.setConn(conn)
		f.read(conn)
		f.setConn(nil)
		_ = conn.Close()
	}
}

func (f *feed) dial() (*websocket.Conn, error) {
	h := http.Header{}
	if tok := f.b.currentToken(); tok != "" {
		h.Set("Authorization", "Bearer "+tok)
	}
	conn, res, err := wsDialer.Dial(wsURL(f.b.baseURL)+"/v1/realtime", h)
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
	return conn, err
}

// read consumes change frames until the connection breaks. The server
// sends every event visible to the account; scope filtering happens
// here, at dispatch.
func (f *feed) read(conn *websocket.Conn) {
	for {
		var ev api.ChangeEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		if ev.Type != api.EventTypeChange {
			continue
		}
		f.dispatch(ev)
	}
}

func (f *feed) dispatch(ev api.ChangeEvent) {
	f.mu.Lock()
	fns := make([]func(), 0, len(f.subs))
	for _, s := range f.subs {
		if s.scope.Table != backend.Table(ev.Table) {
			continue
		}
		if s.scope.ListID != "" && s.scope.ListID != ev.ListID {
			continue
		}
		fns = append(fns, s.fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *feed) setConn(conn *websocket.Conn) {
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
}

func (f *feed) subCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// wsURL rewrites an http(s) base URL into its ws(s) form.
func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
