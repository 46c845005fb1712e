package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"trolley/internal/backend"
	"trolley/internal/model"
)

var errFakeWrite = errors.New("write refused")

// fakeBackend implements backend.Backend over in-memory state with
// scriptable failures, good enough to drive the collections.
type fakeBackend struct {
	mu    sync.Mutex
	seq   int
	lists map[string]model.List
	items map[string]model.Item

	failUpdateItem  bool
	failUpdateList  bool
	failDeleteItems bool
	failDeleteList  bool
	failUpsert      bool
	failUpload      bool

	itemPatches []map[string]any
	listPatches []map[string]any
	upserts     []upsertCall
	deletes     [][]string
	shares      []shareCall
	uploads     []string
	fetches     int
}

type upsertCall struct {
	table  backend.Table
	writes []backend.PositionWrite
}

type shareCall struct {
	listID string
	email  string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		lists: map[string]model.List{},
		items: map[string]model.Item{},
	}
}

func (f *fakeBackend) seed(it model.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[it.ID] = it
}

func (f *fakeBackend) seedList(l model.List) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[l.ID] = l
}

func (f *fakeBackend) item(id string) model.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id]
}

// Auth.

func (f *fakeBackend) Session(ctx context.Context) (*model.Session, error) { return nil, nil }
func (f *fakeBackend) OnSessionChange(fn func(*model.Session)) func()      { return func() {} }
func (f *fakeBackend) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	return nil, nil
}
func (f *fakeBackend) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	return nil, nil
}
func (f *fakeBackend) SignOut(ctx context.Context) error { return nil }

// Store.

func (f *fakeBackend) Lists(ctx context.Context) ([]model.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	out := make([]model.List, 0, len(f.lists))
	for _, l := range f.lists {
		out = append(out, l)
	}
	SortLists(out)
	return out, nil
}

func (f *fakeBackend) CountItems(ctx context.Context, listID string) (model.ListCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := model.ListCounts{ListID: listID}
	for _, it := range f.items {
		if it.ListID != listID {
			continue
		}
		c.Total++
		if !it.Checked {
			c.Unchecked++
		}
	}
	return c, nil
}

func (f *fakeBackend) ListItems(ctx context.Context, listID string) ([]model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	out := make([]model.Item, 0, len(f.items))
	for _, it := range f.items {
		if it.ListID == listID {
			out = append(out, it)
		}
	}
	SortItems(out)
	return out, nil
}

func (f *fakeBackend) CreateItem(ctx context.Context, listID, text string) (*model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	it := model.Item{
		ID:        fmt.Sprintf("new-%d", f.seq),
		ListID:    listID,
		Text:      text,
		CreatedAt: time.Now(),
	}
	f.items[it.ID] = it
	return &it, nil
}

func (f *fakeBackend) UpdateList(ctx context.Context, id string, fields map[string]any) (*model.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listPatches = append(f.listPatches, fields)
	if f.failUpdateList {
		return nil, errFakeWrite
	}
	l, ok := f.lists[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	if v, ok := fields[backend.FieldName]; ok {
		l.Name = v.(string)
	}
	if v, ok := fields[backend.FieldIcon]; ok {
		l.Icon = v.(string)
	}
	if v, ok := fields[backend.FieldIconImage]; ok {
		l.IconImageURL = optString(v)
	}
	if v, ok := fields[backend.FieldBackgroundImage]; ok {
		l.BackgroundImageURL = optString(v)
	}
	f.lists[id] = l
	return &l, nil
}

func (f *fakeBackend) UpdateItem(ctx context.Context, id string, fields map[string]any) (*model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.itemPatches = append(f.itemPatches, fields)
	if f.failUpdateItem {
		return nil, errFakeWrite
	}
	it, ok := f.items[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	if v, ok := fields[backend.FieldText]; ok {
		it.Text = v.(string)
	}
	if v, ok := fields[backend.FieldURL]; ok {
		it.URL = v.(string)
	}
	if v, ok := fields[backend.FieldChecked]; ok {
		it.Checked = v.(bool)
	}
	f.items[id] = it
	return &it, nil
}

func (f *fakeBackend) UpsertPositions(ctx context.Context, table backend.Table, writes []backend.PositionWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, upsertCall{table: table, writes: writes})
	if f.failUpsert {
		return errFakeWrite
	}
	for _, w := range writes {
		if table == backend.TableItems {
			if it, ok := f.items[w.ID]; ok {
				it.Position = w.Position
				f.items[w.ID] = it
			}
		} else {
			if l, ok := f.lists[w.ID]; ok {
				l.Position = w.Position
				f.lists[w.ID] = l
			}
		}
	}
	return nil
}

func (f *fakeBackend) DeleteList(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeleteList {
		return errFakeWrite
	}
	delete(f.lists, id)
	for iid, it := range f.items {
		if it.ListID == id {
			delete(f.items, iid)
		}
	}
	return nil
}

func (f *fakeBackend) DeleteItems(ctx context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sorted := append([]string{}, ids...)
	sort.Strings(sorted)
	f.deletes = append(f.deletes, sorted)
	if f.failDeleteItems {
		return errFakeWrite
	}
	for _, id := range ids {
		delete(f.items, id)
	}
	return nil
}

// Procedures.

func (f *fakeBackend) CreateList(ctx context.Context, name, icon string) (*model.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	l := model.List{
		ID:        fmt.Sprintf("lst-%d", f.seq),
		Name:      name,
		Icon:      icon,
		CreatedAt: time.Now(),
	}
	f.lists[l.ID] = l
	return &l, nil
}

func (f *fakeBackend) ShareList(ctx context.Context, listID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shares = append(f.shares, shareCall{listID: listID, email: email})
	return nil
}

// Files.

func (f *fakeBackend) Upload(ctx context.Context, bucket, path string, r io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, bucket+"/"+path)
	if f.failUpload {
		return errFakeWrite
	}
	_, err := io.Copy(io.Discard, r)
	return err
}

func (f *fakeBackend) PublicURL(bucket, path string) string {
	return "fake://" + bucket + "/" + path
}

// Realtime.

func (f *fakeBackend) Subscribe(scope backend.Scope, fn func()) (backend.Subscription, error) {
	return fakeSub{}, nil
}

func (f *fakeBackend) Close() error { return nil }

type fakeSub struct{}

func (fakeSub) Unsubscribe() {}

func optString(v any) *string {
	if v == nil {
		return nil
	}
	s := v.(string)
	return &s
}

func ids(items []model.Item) []string {
	out := make([]string, len(items))
	for i := range items {
		out[i] = items[i].ID
	}
	return out
}

func joinIDs(items []model.Item) string {
	return strings.Join(ids(items), ",")
}
