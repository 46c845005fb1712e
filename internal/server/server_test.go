package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"trolley/internal/backend"
	"trolley/internal/backend/remote"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, err := New(Config{
		JWTSecret:         "test-secret",
		TokenTTLHours:     1,
		SignupAutoConfirm: true,
		DatabaseURL:       filepath.Join(t.TempDir(), "trolley.db"),
		StorageDir:        t.TempDir(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func openClient(t *testing.T, srv *httptest.Server) *remote.Backend {
	t.Helper()
	t.Setenv("TROLLEY_TOKEN", "")
	b, err := remote.Open(remote.Config{BaseURL: srv.URL, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("open client: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func signUp(t *testing.T, srv *httptest.Server, email string) *remote.Backend {
	t.Helper()
	b := openClient(t, srv)
	sess, err := b.SignUp(context.Background(), email, "hunter22")
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	if sess == nil {
		t.Fatalf("sign up %s: expected an immediate session", email)
	}
	return b
}

func TestSignup_DuplicateEmailIsDistinct(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	signUp(t, srv, "ada@example.com")

	b := openClient(t, srv)
	if _, err := b.SignUp(ctx, "ada@example.com", "another-pass"); !errors.Is(err, backend.ErrEmailTaken) {
		t.Fatalf("duplicate signup err = %v, want ErrEmailTaken", err)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	signUp(t, srv, "ada@example.com")

	b := openClient(t, srv)
	if _, err := b.SignIn(ctx, "ada@example.com", "wrong"); !errors.Is(err, backend.ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	// Unknown accounts get the same answer as wrong passwords.
	if _, err := b.SignIn(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, backend.ErrInvalidCredentials) {
		t.Fatalf("unknown account err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin_SecondClientSeesData(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	owner := signUp(t, srv, "ada@example.com")

	l, err := owner.CreateList(ctx, "Groceries", "🛒")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}

	other := openClient(t, srv)
	sess, err := other.SignIn(ctx, "ada@example.com", "hunter22")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if sess.Account.Email != "ada@example.com" {
		t.Fatalf("session email = %q", sess.Account.Email)
	}
	lists, err := other.Lists(ctx)
	if err != nil {
		t.Fatalf("lists: %v", err)
	}
	if len(lists) != 1 || lists[0].ID != l.ID {
		t.Fatalf("lists = %+v, want the one created on the first client", lists)
	}
}

func TestDataPlane_RequiresToken(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	b := openClient(t, srv)

	if _, err := b.Lists(ctx); !errors.Is(err, backend.ErrNotAuthenticated) {
		t.Fatalf("lists err = %v, want ErrNotAuthenticated", err)
	}
	if _, err := b.CreateList(ctx, "Nope", ""); !errors.Is(err, backend.ErrNotAuthenticated) {
		t.Fatalf("create list err = %v, want ErrNotAuthenticated", err)
	}
}

func TestListLifecycle_EndToEnd(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	b := signUp(t, srv, "ada@example.com")

	l, err := b.CreateList(ctx, "Groceries", "🛒")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}

	milk, err := b.CreateItem(ctx, l.ID, "milk")
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	eggs, err := b.CreateItem(ctx, l.ID, "eggs")
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	bread, err := b.CreateItem(ctx, l.ID, "bread")
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	// Pin a manual order before asserting on it.
	err = b.UpsertPositions(ctx, backend.TableItems, []backend.PositionWrite{
		{ID: milk.ID, Position: 0},
		{ID: eggs.ID, Position: 1},
		{ID: bread.ID, Position: 2},
	})
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	assertItemOrder(t, b, l.ID, milk.ID, eggs.ID, bread.ID)

	// Checking an item moves it behind the unchecked partition but keeps
	// its position.
	checked, err := b.UpdateItem(ctx, eggs.ID, map[string]any{backend.FieldChecked: true})
	if err != nil {
		t.Fatalf("check item: %v", err)
	}
	if !checked.Checked || checked.Position != 1 {
		t.Fatalf("checked item = %+v, want checked with position 1", checked)
	}
	assertItemOrder(t, b, l.ID, milk.ID, bread.ID, eggs.ID)

	counts, err := b.CountItems(ctx, l.ID)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Total != 3 || counts.Unchecked != 2 {
		t.Fatalf("counts = %+v, want total 3 unchecked 2", counts)
	}

	renamed, err := b.UpdateList(ctx, l.ID, map[string]any{
		backend.FieldName: "Weekend shop",
		backend.FieldIcon: "🧺",
	})
	if err != nil {
		t.Fatalf("rename list: %v", err)
	}
	if renamed.Name != "Weekend shop" || renamed.Icon != "🧺" {
		t.Fatalf("renamed list = %+v", renamed)
	}

	linked, err := b.UpdateItem(ctx, milk.ID, map[string]any{backend.FieldURL: "https://example.com/milk"})
	if err != nil {
		t.Fatalf("set url: %v", err)
	}
	if linked.URL != "https://example.com/milk" {
		t.Fatalf("item url = %q", linked.URL)
	}

	if err := b.DeleteItems(ctx, bread.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	counts, err = b.CountItems(ctx, l.ID)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Total != 2 || counts.Unchecked != 1 {
		t.Fatalf("counts after delete = %+v, want total 2 unchecked 1", counts)
	}

	if err := b.DeleteList(ctx, l.ID); err != nil {
		t.Fatalf("delete list: %v", err)
	}
	lists, err := b.Lists(ctx)
	if err != nil {
		t.Fatalf("lists: %v", err)
	}
	if len(lists) != 0 {
		t.Fatalf("lists after delete = %+v, want none", lists)
	}
}

func assertItemOrder(t *testing.T, b *remote.Backend, listID string, want ...string) {
	t.Helper()
	items, err := b.ListItems(context.Background(), listID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Fatalf("items[%d] = %s (%q), want %s", i, items[i].ID, items[i].Text, id)
		}
	}
}

func TestSharing_MembershipBoundaries(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	owner := signUp(t, srv, "ada@example.com")
	guest := signUp(t, srv, "grace@example.com")

	l, err := owner.CreateList(ctx, "Trip", "✈️")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}

	lists, err := guest.Lists(ctx)
	if err != nil {
		t.Fatalf("guest lists: %v", err)
	}
	if len(lists) != 0 {
		t.Fatalf("guest sees %d lists before being invited", len(lists))
	}
	if _, err := guest.ListItems(ctx, l.ID); !errors.Is(err, backend.ErrNotAuthorized) {
		t.Fatalf("foreign items err = %v, want ErrNotAuthorized", err)
	}
	if err := guest.ShareList(ctx, l.ID, "grace@example.com"); !errors.Is(err, backend.ErrNotAuthorized) {
		t.Fatalf("self-invite err = %v, want ErrNotAuthorized", err)
	}
	if err := owner.ShareList(ctx, l.ID, "nobody@example.com"); !errors.Is(err, backend.ErrAccountNotFound) {
		t.Fatalf("unknown invitee err = %v, want ErrAccountNotFound", err)
	}

	if err := owner.ShareList(ctx, l.ID, "grace@example.com"); err != nil {
		t.Fatalf("share: %v", err)
	}
	// Re-sharing an existing member succeeds without effect.
	if err := owner.ShareList(ctx, l.ID, "grace@example.com"); err != nil {
		t.Fatalf("re-share: %v", err)
	}

	lists, err = guest.Lists(ctx)
	if err != nil {
		t.Fatalf("guest lists: %v", err)
	}
	if len(lists) != 1 || lists[0].ID != l.ID {
		t.Fatalf("guest lists = %+v, want the shared list", lists)
	}
	if _, err := guest.CreateItem(ctx, l.ID, "sunscreen"); err != nil {
		t.Fatalf("guest create item: %v", err)
	}
	items, err := owner.ListItems(ctx, l.ID)
	if err != nil {
		t.Fatalf("owner items: %v", err)
	}
	if len(items) != 1 || items[0].Text != "sunscreen" {
		t.Fatalf("owner items = %+v, want the guest's item", items)
	}
}

func TestPositions_ForeignRowsRejected(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	owner := signUp(t, srv, "ada@example.com")
	outsider := signUp(t, srv, "mallory@example.com")

	l, err := owner.CreateList(ctx, "Groceries", "")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	it, err := owner.CreateItem(ctx, l.ID, "milk")
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	err = outsider.UpsertPositions(ctx, backend.TableItems, []backend.PositionWrite{{ID: it.ID, Position: 5}})
	if !errors.Is(err, backend.ErrNotAuthorized) {
		t.Fatalf("foreign item write err = %v, want ErrNotAuthorized", err)
	}
	err = outsider.UpsertPositions(ctx, backend.TableLists, []backend.PositionWrite{{ID: l.ID, Position: 3}})
	if !errors.Is(err, backend.ErrNotAuthorized) {
		t.Fatalf("foreign list write err = %v, want ErrNotAuthorized", err)
	}

	// One unknown row fails the whole batch; the known row keeps its
	// position.
	err = owner.UpsertPositions(ctx, backend.TableItems, []backend.PositionWrite{
		{ID: it.ID, Position: 7},
		{ID: "ghost", Position: 1},
	})
	if !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("batch with unknown row err = %v, want ErrNotFound", err)
	}
	items, err := owner.ListItems(ctx, l.ID)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 1 || items[0].Position != 0 {
		t.Fatalf("items = %+v, want untouched position 0", items)
	}
}

func TestStorage_UploadAndServe(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	b := signUp(t, srv, "ada@example.com")

	l, err := b.CreateList(ctx, "Groceries", "")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	body := []byte("not really a png")
	if err := b.Upload(ctx, backend.MediaBucket, l.ID+"/icon.png", bytes.NewReader(body)); err != nil {
		t.Fatalf("upload: %v", err)
	}

	url := b.PublicURL(backend.MediaBucket, l.ID+"/icon.png")
	if want := srv.URL + "/storage/media/" + l.ID + "/icon.png"; url != want {
		t.Fatalf("public url = %q, want %q", url, want)
	}
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("fetch object: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("fetch status = %d", res.StatusCode)
	}
	got, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read object: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("object bytes = %q, want %q", got, body)
	}

	// Media paths are namespaced by list; non-members cannot write there.
	outsider := signUp(t, srv, "mallory@example.com")
	err = outsider.Upload(ctx, backend.MediaBucket, l.ID+"/sneaky.png", bytes.NewReader(body))
	if !errors.Is(err, backend.ErrNotAuthorized) {
		t.Fatalf("foreign upload err = %v, want ErrNotAuthorized", err)
	}

	// Paths cannot climb out of the storage root.
	err = b.Upload(ctx, backend.MediaBucket, l.ID+"/../../escape.txt", bytes.NewReader(body))
	if err == nil {
		t.Fatalf("traversal upload unexpectedly succeeded")
	}
}

func TestStorage_UploadCap(t *testing.T) {
	ctx := context.Background()
	gin.SetMode(gin.TestMode)
	s, err := New(Config{
		JWTSecret:         "test-secret",
		TokenTTLHours:     1,
		SignupAutoConfirm: true,
		DatabaseURL:       filepath.Join(t.TempDir(), "trolley.db"),
		StorageDir:        t.TempDir(),
		MaxUploadMB:       1,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	b := signUp(t, srv, "ada@example.com")
	l, err := b.CreateList(ctx, "Media", "")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}

	if err := b.Upload(ctx, backend.MediaBucket, l.ID+"/bg-small.png", bytes.NewReader(make([]byte, 1024))); err != nil {
		t.Fatalf("small upload: %v", err)
	}
	err = b.Upload(ctx, backend.MediaBucket, l.ID+"/bg-big.png", bytes.NewReader(make([]byte, 2<<20)))
	if err == nil {
		t.Fatalf("2 MB upload passed a 1 MB cap")
	}
}

func TestRealtime_FanoutRespectsMembership(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	owner := signUp(t, srv, "ada@example.com")
	member := signUp(t, srv, "grace@example.com")
	outsider := signUp(t, srv, "mallory@example.com")

	l, err := owner.CreateList(ctx, "Trip", "")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if err := owner.ShareList(ctx, l.ID, "grace@example.com"); err != nil {
		t.Fatalf("share: %v", err)
	}

	memberItems := make(chan struct{}, 8)
	sub, err := member.Subscribe(backend.Scope{Table: backend.TableItems, ListID: l.ID}, func() {
		select {
		case memberItems <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("member subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	outsiderItems := make(chan struct{}, 8)
	sub2, err := outsider.Subscribe(backend.Scope{Table: backend.TableItems}, func() {
		select {
		case outsiderItems <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("outsider subscribe: %v", err)
	}
	defer sub2.Unsubscribe()

	outsiderLists := make(chan struct{}, 8)
	sub3, err := outsider.Subscribe(backend.Scope{Table: backend.TableLists}, func() {
		select {
		case outsiderLists <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("outsider subscribe: %v", err)
	}
	defer sub3.Unsubscribe()

	// The feeds connect asynchronously; repeat a visible write until each
	// client hears one.
	pollUntilPing(t, memberItems, func() {
		if _, err := owner.CreateItem(ctx, l.ID, "probe"); err != nil {
			t.Fatalf("probe item: %v", err)
		}
	})
	pollUntilPing(t, outsiderLists, func() {
		if _, err := outsider.CreateList(ctx, "probe", ""); err != nil {
			t.Fatalf("probe list: %v", err)
		}
	})
	drain(memberItems)
	drain(outsiderItems)

	if _, err := owner.CreateItem(ctx, l.ID, "towels"); err != nil {
		t.Fatalf("create item: %v", err)
	}
	select {
	case <-memberItems:
	case <-time.After(3 * time.Second):
		t.Fatalf("member never heard the item change")
	}
	// The outsider's feed is proven live, yet changes in a list it does
	// not belong to stay inaudible.
	select {
	case <-outsiderItems:
		t.Fatalf("outsider heard a change in a foreign list")
	case <-time.After(300 * time.Millisecond):
	}
}

func pollUntilPing(t *testing.T, ch chan struct{}, mutate func()) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mutate()
		select {
		case <-ch:
			return
		case <-time.After(150 * time.Millisecond):
		}
	}
	t.Fatalf("no change ping before deadline")
}

func drain(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
