package engine

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"trolley/internal/backend"
	"trolley/internal/model"
)

// Lists holds the session account's lists in render order together with
// their item counts.
type Lists struct {
	be backend.Backend

	mu     sync.Mutex
	lists  []model.List
	counts map[string]model.ListCounts
	drag   *listDrag
}

type listDrag struct {
	id      string
	preDrag []model.List
}

func NewLists(be backend.Backend) *Lists {
	return &Lists{be: be, counts: map[string]model.ListCounts{}}
}

// Refresh replaces local state with the authoritative fetch: the lists
// themselves plus a secondary count query per list.
func (c *Lists) Refresh(ctx context.Context) error {
	lists, err := c.be.Lists(ctx)
	if err != nil {
		return err
	}
	SortLists(lists)
	counts := make(map[string]model.ListCounts, len(lists))
	for _, l := range lists {
		n, err := c.be.CountItems(ctx, l.ID)
		if err != nil {
			return err
		}
		counts[l.ID] = n
	}
	c.mu.Lock()
	c.lists, c.counts, c.drag = lists, counts, nil
	c.mu.Unlock()
	return nil
}

// Snapshot returns the current render order and the count per list ID.
func (c *Lists) Snapshot() ([]model.List, map[string]model.ListCounts) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[string]model.ListCounts, len(c.counts))
	for k, v := range c.counts {
		counts[k] = v
	}
	return append([]model.List{}, c.lists...), counts
}

func (c *Lists) Get(id string) (model.List, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.lists[i], true
	}
	return model.List{}, false
}

// Create runs the create-list procedure and inserts the returned record.
// Not optimistic: the store assigns identity and the creator membership.
func (c *Lists) Create(ctx context.Context, name, icon string) (*model.List, error) {
	created, err := c.be.CreateList(ctx, name, icon)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.lists = append(c.lists, *created)
	SortLists(c.lists)
	c.counts[created.ID] = model.ListCounts{ListID: created.ID}
	c.mu.Unlock()
	return created, nil
}

// Rename sets a list's name, keeping the old one for rollback.
func (c *Lists) Rename(ctx context.Context, id, name string) error {
	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return backend.ErrNotFound
	}
	prev := c.lists[idx].Name
	c.mu.Unlock()

	return mutate(
		func() { c.setName(id, name) },
		func() error {
			_, err := c.be.UpdateList(ctx, id, map[string]any{backend.FieldName: name})
			return err
		},
		func() { c.setName(id, prev) },
	)
}

// SetIcon sets a list's glyph icon.
func (c *Lists) SetIcon(ctx context.Context, id, icon string) error {
	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return backend.ErrNotFound
	}
	prev := c.lists[idx].Icon
	c.mu.Unlock()

	return mutate(
		func() { c.setIcon(id, icon) },
		func() error {
			_, err := c.be.UpdateList(ctx, id, map[string]any{backend.FieldIcon: icon})
			return err
		},
		func() { c.setIcon(id, prev) },
	)
}

// Delete removes a list with everything in it. Rollback is a full
// refetch.
func (c *Lists) Delete(ctx context.Context, id string) error {
	return mutate(
		func() { c.remove(id) },
		func() error { return c.be.DeleteList(ctx, id) },
		func() { _ = c.Refresh(ctx) },
	)
}

// MoveStep moves a list one slot up (delta -1) or down (delta +1). A
// step against the edge is a no-op and issues no write.
func (c *Lists) MoveStep(ctx context.Context, id string, delta int) error {
	c.mu.Lock()
	plan := PlanStep(listOrder(c.lists), id, delta)
	c.mu.Unlock()

	if plan.NoOp() {
		return nil
	}
	return mutate(
		func() { c.applyOrder(plan.Final) },
		func() error { return c.be.UpsertPositions(ctx, backend.TableLists, plan.Writes) },
		func() { _ = c.Refresh(ctx) },
	)
}

// BeginDrag starts a continuous drag of id.
func (c *Lists) BeginDrag(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag != nil || c.indexLocked(id) < 0 {
		return false
	}
	c.drag = &listDrag{id: id, preDrag: append([]model.List{}, c.lists...)}
	return true
}

// Dragging returns the active drag's list ID, if any.
func (c *Lists) Dragging() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag == nil {
		return "", false
	}
	return c.drag.id, true
}

// DragOver splices the dragged list to targetID's slot for live visual
// feedback.
func (c *Lists) DragOver(targetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.drag
	if d == nil || targetID == d.id || c.indexLocked(targetID) < 0 {
		return
	}
	order := listOrder(c.lists)
	plan := PlanInsert(order, d.id, indexOf(order, targetID))
	if plan.NoOp() {
		return
	}
	c.applyOrderLocked(plan.Final)
}

// EndDrag completes the drag and persists the order. A drag released on
// the original slot issues no write.
func (c *Lists) EndDrag(ctx context.Context) error {
	c.mu.Lock()
	d := c.drag
	if d == nil {
		c.mu.Unlock()
		return nil
	}
	c.drag = nil
	final := listOrder(c.lists)
	orig := listOrder(d.preDrag)
	c.mu.Unlock()

	if equalOrder(final, orig) {
		return nil
	}
	return mutate(
		func() { c.applyOrder(final) },
		func() error { return c.be.UpsertPositions(ctx, backend.TableLists, Renumber(final)) },
		func() { _ = c.Refresh(ctx) },
	)
}

// CancelDrag abandons the drag and restores the pre-drag order.
func (c *Lists) CancelDrag() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag == nil {
		return
	}
	c.lists = c.drag.preDrag
	c.drag = nil
}

// Share grants the account registered under email membership of the
// list. The address is normalized before submission; sharing with an
// existing member succeeds without change.
func (c *Lists) Share(ctx context.Context, id, email string) error {
	return c.be.ShareList(ctx, id, strings.ToLower(strings.TrimSpace(email)))
}

// MediaKind selects which list image an upload targets. The value is
// the purpose segment of the storage path.
type MediaKind string

const (
	MediaIcon       MediaKind = "icon"
	MediaBackground MediaKind = "bg"
)

func (k MediaKind) field() string {
	if k == MediaBackground {
		return backend.FieldBackgroundImage
	}
	return backend.FieldIconImage
}

// AttachImage uploads a media file and persists its public URL on the
// list. The object path is <listID>/<kind>-<random><ext>, keeping the
// upload's extension. A failed upload or a failed persist leaves the
// previous image in place.
func (c *Lists) AttachImage(ctx context.Context, id string, kind MediaKind, filename string, r io.Reader) error {
	suffix, err := randSuffix()
	if err != nil {
		return err
	}
	objPath := fmt.Sprintf("%s/%s-%s%s", id, kind, suffix, path.Ext(filename))
	if err := c.be.Upload(ctx, backend.MediaBucket, objPath, r); err != nil {
		return fmt.Errorf("upload %s: %w", kind, err)
	}
	url := c.be.PublicURL(backend.MediaBucket, objPath)
	return c.setImageURL(ctx, id, kind, &url)
}

// ResetImage clears a list image back to the default.
func (c *Lists) ResetImage(ctx context.Context, id string, kind MediaKind) error {
	return c.setImageURL(ctx, id, kind, nil)
}

func (c *Lists) setImageURL(ctx context.Context, id string, kind MediaKind, url *string) error {
	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return backend.ErrNotFound
	}
	var prev *string
	if kind == MediaBackground {
		prev = c.lists[idx].BackgroundImageURL
	} else {
		prev = c.lists[idx].IconImageURL
	}
	c.mu.Unlock()

	var v any
	if url != nil {
		v = *url
	}
	return mutate(
		func() { c.applyImageURL(id, kind, url) },
		func() error {
			_, err := c.be.UpdateList(ctx, id, map[string]any{kind.field(): v})
			return err
		},
		func() { c.applyImageURL(id, kind, prev) },
	)
}

func (c *Lists) indexLocked(id string) int {
	for i := range c.lists {
		if c.lists[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Lists) setName(id, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		c.lists[i].Name = name
	}
}

func (c *Lists) setIcon(id, icon string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		c.lists[i].Icon = icon
	}
}

func (c *Lists) applyImageURL(id string, kind MediaKind, url *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return
	}
	if kind == MediaBackground {
		c.lists[i].BackgroundImageURL = url
	} else {
		c.lists[i].IconImageURL = url
	}
}

func (c *Lists) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.lists[:0]
	for _, l := range c.lists {
		if l.ID != id {
			kept = append(kept, l)
		}
	}
	c.lists = kept
	delete(c.counts, id)
}

func (c *Lists) applyOrder(order []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyOrderLocked(order)
}

// applyOrderLocked rearranges the lists to match order and stamps each
// with its new index as position. Caller holds mu.
func (c *Lists) applyOrderLocked(order []string) {
	byID := make(map[string]model.List, len(c.lists))
	for _, l := range c.lists {
		byID[l.ID] = l
	}
	next := make([]model.List, 0, len(c.lists))
	for i, id := range order {
		l, ok := byID[id]
		if !ok {
			continue
		}
		l.Position = i
		next = append(next, l)
	}
	c.lists = next
}

func listOrder(lists []model.List) []string {
	ids := make([]string, len(lists))
	for i := range lists {
		ids[i] = lists[i].ID
	}
	return ids
}

// randSuffix returns 8 chars of base32 (lowercase, no padding) for
// collision-safe object names.
func randSuffix() (string, error) {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return strings.ToLower(enc.EncodeToString(b[:])), nil
}
