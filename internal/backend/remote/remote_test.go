package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trolley/internal/api"
	"trolley/internal/backend"
	"trolley/internal/model"
)

func newTestBackend(t *testing.T, h http.Handler) (*Backend, *httptest.Server, string) {
	t.Helper()
	t.Setenv("TROLLEY_TOKEN", "")
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	b, err := Open(Config{BaseURL: srv.URL, Dir: dir})
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b, srv, dir
}

// openWithSavedToken seeds a credentials file before opening, as if a
// prior run had signed in.
func openWithSavedToken(t *testing.T, h http.Handler, token string) (*Backend, *httptest.Server, string) {
	t.Helper()
	t.Setenv("TROLLEY_TOKEN", "")
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	if err := saveToken(dir, token, "", nil); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}
	b, err := Open(Config{BaseURL: srv.URL, Dir: dir})
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b, srv, dir
}

func writeWire(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func wireSession(token, accID, email string) api.Session {
	return api.Session{
		Token:   token,
		Account: model.Account{ID: accID, Email: email, CreatedAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)},
	}
}

func TestSignIn_SavesCredentialsAndCachesSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req api.CredentialsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "ada@example.com" || req.Password != "hunter22" {
			writeWire(w, http.StatusUnauthorized, api.Error{Code: api.CodeInvalidCredentials, Message: "wrong email or password"})
			return
		}
		writeWire(w, http.StatusOK, wireSession("tok-1", "acc-1", req.Email))
	})

	b, _, dir := newTestBackend(t, mux)
	ctx := context.Background()

	s, err := b.SignIn(ctx, "ada@example.com", "hunter22")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if s == nil || s.Account.Email != "ada@example.com" || s.AccessToken != "tok-1" {
		t.Fatalf("unexpected session: %+v", s)
	}

	raw, err := os.ReadFile(credFilePath(dir))
	if err != nil {
		t.Fatalf("read credentials: %v", err)
	}
	var sc storedCredentials
	if err := json.Unmarshal(raw, &sc); err != nil {
		t.Fatalf("parse credentials: %v", err)
	}
	if sc.Token != "tok-1" || sc.Email != "ada@example.com" {
		t.Fatalf("stored credentials = %+v", sc)
	}

	// No /v1/auth/session route is registered: a cache miss would 404.
	again, err := b.Session(ctx)
	if err != nil {
		t.Fatalf("session after sign in: %v", err)
	}
	if again == nil || again.Account.ID != "acc-1" {
		t.Fatalf("cached session = %+v", again)
	}
}

func TestSignIn_WrongPassword(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeWire(w, http.StatusUnauthorized, api.Error{Code: api.CodeInvalidCredentials, Message: "wrong email or password"})
	})

	b, _, _ := newTestBackend(t, mux)
	if _, err := b.SignIn(context.Background(), "ada@example.com", "nope"); !errors.Is(err, backend.ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
}

func TestSignUp_ConfirmationPending(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		writeWire(w, http.StatusOK, api.SignupResponse{})
	})

	b, _, dir := newTestBackend(t, mux)
	s, err := b.SignUp(context.Background(), "new@example.com", "hunter22")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if s != nil {
		t.Fatalf("pending signup returned a session: %+v", s)
	}
	if _, err := os.Stat(credFilePath(dir)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("credentials written for a pending signup")
	}
}

func TestSession_ResolvesFromSavedToken(t *testing.T) {
	var sessionCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/auth/session", func(w http.ResponseWriter, r *http.Request) {
		sessionCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-9" {
			writeWire(w, http.StatusUnauthorized, api.Error{Code: api.CodeNotAuthenticated, Message: "not signed in"})
			return
		}
		writeWire(w, http.StatusOK, wireSession("tok-9", "acc-9", "ida@example.com"))
	})

	b, _, _ := openWithSavedToken(t, mux, "tok-9")
	ctx := context.Background()

	s, err := b.Session(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if s == nil || s.Account.Email != "ida@example.com" {
		t.Fatalf("session = %+v", s)
	}
	if _, err := b.Session(ctx); err != nil {
		t.Fatalf("second session: %v", err)
	}
	if n := sessionCalls.Load(); n != 1 {
		t.Fatalf("server session lookups = %d, want 1", n)
	}
}

func TestSession_StaleTokenClearsCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/auth/session", func(w http.ResponseWriter, r *http.Request) {
		writeWire(w, http.StatusUnauthorized, api.Error{Code: api.CodeNotAuthenticated, Message: "not signed in"})
	})

	b, _, dir := openWithSavedToken(t, mux, "tok-stale")

	s, err := b.Session(context.Background())
	if err != nil || s != nil {
		t.Fatalf("stale session: got (%+v, %v), want (nil, nil)", s, err)
	}
	if _, err := os.Stat(credFilePath(dir)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("credentials file still present: %v", err)
	}
}

func TestDataCallUnauthorizedSignsOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/lists", func(w http.ResponseWriter, r *http.Request) {
		writeWire(w, http.StatusUnauthorized, api.Error{Code: api.CodeNotAuthenticated, Message: "not signed in"})
	})

	b, _, dir := openWithSavedToken(t, mux, "tok-dead")

	var sawSignOut bool
	cancel := b.OnSessionChange(func(s *model.Session) {
		if s == nil {
			sawSignOut = true
		}
	})
	defer cancel()

	if _, err := b.Lists(context.Background()); !errors.Is(err, backend.ErrNotAuthenticated) {
		t.Fatalf("got %v, want ErrNotAuthenticated", err)
	}
	if !sawSignOut {
		t.Fatalf("session change callback did not observe the sign-out")
	}
	if _, err := os.Stat(credFilePath(dir)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("credentials survived a rejected token: %v", err)
	}
}

func TestSignOut_ClearsCredentials(t *testing.T) {
	var logoutCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		logoutCalls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	b, _, dir := openWithSavedToken(t, mux, "tok-out")

	var notified []*model.Session
	cancel := b.OnSessionChange(func(s *model.Session) { notified = append(notified, s) })
	defer cancel()

	if err := b.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if n := logoutCalls.Load(); n != 1 {
		t.Fatalf("logout calls = %d, want 1", n)
	}
	if _, err := os.Stat(credFilePath(dir)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("credentials file still present: %v", err)
	}
	if len(notified) != 1 || notified[0] != nil {
		t.Fatalf("session callbacks = %v, want one nil", notified)
	}

	// Already signed out: no second notification.
	if err := b.SignOut(context.Background()); err != nil {
		t.Fatalf("second sign out: %v", err)
	}
	if len(notified) != 1 {
		t.Fatalf("second sign-out notified again")
	}
}

func TestShare_ErrorCodesMapToSentinels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/rpc/share-list", func(w http.ResponseWriter, r *http.Request) {
		var req api.ShareListRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Email {
		case "missing@example.com":
			writeWire(w, http.StatusNotFound, api.Error{Code: api.CodeAccountNotFound, Message: "no account registered under that email"})
		case "outsider@example.com":
			writeWire(w, http.StatusForbidden, api.Error{Code: api.CodeNotAuthorized, Message: "not a member of this list"})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	b, _, _ := openWithSavedToken(t, mux, "tok-sh")
	ctx := context.Background()

	if err := b.ShareList(ctx, "l1", "missing@example.com"); !errors.Is(err, backend.ErrAccountNotFound) {
		t.Fatalf("unknown email: got %v, want ErrAccountNotFound", err)
	}
	if err := b.ShareList(ctx, "l1", "outsider@example.com"); !errors.Is(err, backend.ErrNotAuthorized) {
		t.Fatalf("non-member: got %v, want ErrNotAuthorized", err)
	}
	if err := b.ShareList(ctx, "l1", "friend@example.com"); err != nil {
		t.Fatalf("good share: %v", err)
	}
}

func TestUpsertPositions_SendsTableBatch(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []api.PositionsRequest
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/positions", func(w http.ResponseWriter, r *http.Request) {
		var req api.PositionsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		calls = append(calls, req)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	b, _, _ := openWithSavedToken(t, mux, "tok-up")
	ctx := context.Background()

	if err := b.UpsertPositions(ctx, backend.TableLists, []backend.PositionWrite{{ID: "l2", Position: 0}, {ID: "l1", Position: 1}}); err != nil {
		t.Fatalf("lists upsert: %v", err)
	}
	if err := b.UpsertPositions(ctx, backend.TableItems, []backend.PositionWrite{{ID: "i9", Position: 0}}); err != nil {
		t.Fatalf("items upsert: %v", err)
	}

	mu.Lock()
	got := append([]api.PositionsRequest(nil), calls...)
	mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("batches = %d, want 2", len(got))
	}
	if got[0].Table != "lists" || len(got[0].Writes) != 2 || got[0].Writes[0].ID != "l2" || got[0].Writes[1].Position != 1 {
		t.Fatalf("lists batch = %+v", got[0])
	}
	if got[1].Table != "items" || len(got[1].Writes) != 1 || got[1].Writes[0].ID != "i9" {
		t.Fatalf("items batch = %+v", got[1])
	}

	if err := b.UpsertPositions(ctx, backend.TableMemberships, []backend.PositionWrite{{ID: "x", Position: 0}}); err == nil {
		t.Fatalf("memberships upsert did not fail")
	}

	// Empty batches never reach the network.
	if err := b.UpsertPositions(ctx, backend.TableLists, nil); err != nil {
		t.Fatalf("empty upsert: %v", err)
	}
	mu.Lock()
	n := len(calls)
	mu.Unlock()
	if n != 2 {
		t.Fatalf("empty upsert hit the server")
	}
}

func TestUpload_RawBodyAndPublicURL(t *testing.T) {
	type upload struct {
		bucket, path, body, ctype, auth string
	}
	var (
		mu  sync.Mutex
		got []upload
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/storage/{bucket}/{path...}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, upload{
			bucket: r.PathValue("bucket"),
			path:   r.PathValue("path"),
			body:   string(body),
			ctype:  r.Header.Get("Content-Type"),
			auth:   r.Header.Get("Authorization"),
		})
		mu.Unlock()
		writeWire(w, http.StatusOK, api.UploadResponse{Data: api.UploadResult{Path: r.PathValue("path")}})
	})

	b, srv, _ := openWithSavedToken(t, mux, "tok-fs")

	err := b.Upload(context.Background(), backend.MediaBucket, "l1/icon-abcd1234.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("uploads = %d, want 1", len(got))
	}
	u := got[0]
	if u.bucket != "media" || u.path != "l1/icon-abcd1234.png" || u.body != "png-bytes" {
		t.Fatalf("upload = %+v", u)
	}
	if u.ctype != "application/octet-stream" || u.auth != "Bearer tok-fs" {
		t.Fatalf("upload headers = %+v", u)
	}

	want := srv.URL + "/storage/media/l1/icon-abcd1234.png"
	if got := b.PublicURL(backend.MediaBucket, "l1/icon-abcd1234.png"); got != want {
		t.Fatalf("public url = %q, want %q", got, want)
	}
}

func TestRealtime_DeliversScopedChanges(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var once sync.Once
	connected := make(chan struct{})
	sendFrames := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/realtime", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-rt" {
			writeWire(w, http.StatusUnauthorized, api.Error{Code: api.CodeNotAuthenticated, Message: "not signed in"})
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		once.Do(func() { close(connected) })

		<-sendFrames
		_ = conn.WriteJSON(api.ChangeEvent{Type: api.EventTypeChange, Table: "items", ListID: "l1"})
		_ = conn.WriteJSON(api.ChangeEvent{Type: api.EventTypeChange, Table: "lists"})

		// Hold the connection until the client leaves.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	t.Setenv("TROLLEY_TOKEN", "")
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	b, err := Open(Config{BaseURL: srv.URL, Dir: t.TempDir(), Token: "tok-rt"})
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	ping := func() (chan struct{}, func()) {
		ch := make(chan struct{}, 4)
		return ch, func() {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
	itemsCh, itemsFn := ping()
	otherCh, otherFn := ping()
	listsCh, listsFn := ping()

	scopes := []struct {
		scope backend.Scope
		fn    func()
	}{
		{backend.Scope{Table: backend.TableItems, ListID: "l1"}, itemsFn},
		{backend.Scope{Table: backend.TableItems, ListID: "l2"}, otherFn},
		{backend.Scope{Table: backend.TableLists}, listsFn},
	}
	for _, s := range scopes {
		sub, err := b.Subscribe(s.scope, s.fn)
		if err != nil {
			t.Fatalf("subscribe %+v: %v", s.scope, err)
		}
		defer sub.Unsubscribe()
	}

	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatalf("feed never connected")
	}
	close(sendFrames)

	waitPing(t, itemsCh, "items change for l1")
	waitPing(t, listsCh, "lists change")
	select {
	case <-otherCh:
		t.Fatalf("foreign-list subscription was pinged")
	case <-time.After(100 * time.Millisecond):
	}
}

func waitPing(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
