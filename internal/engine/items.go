package engine

import (
	"context"
	"sync"

	"trolley/internal/backend"
	"trolley/internal/model"
)

// Items holds one list's items in render order and applies every
// mutation optimistically against the backend.
type Items struct {
	be     backend.Backend
	listID string

	mu    sync.Mutex
	items []model.Item
	drag  *itemDrag
}

// itemDrag tracks a continuous drag. The live order is the items slice
// itself, re-spliced on each DragOver; preDrag is restored on cancel.
type itemDrag struct {
	id      string
	checked bool
	preDrag []model.Item
}

func NewItems(be backend.Backend, listID string) *Items {
	return &Items{be: be, listID: listID}
}

func (c *Items) ListID() string { return c.listID }

// Refresh replaces local state with the authoritative fetch. An active
// drag is abandoned; authoritative data wins.
func (c *Items) Refresh(ctx context.Context) error {
	items, err := c.be.ListItems(ctx, c.listID)
	if err != nil {
		return err
	}
	SortItems(items)
	c.mu.Lock()
	c.items = items
	c.drag = nil
	c.mu.Unlock()
	return nil
}

// Snapshot returns the current render order. The slice is the caller's
// to keep.
func (c *Items) Snapshot() []model.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Item{}, c.items...)
}

func (c *Items) Get(id string) (model.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.items[i], true
	}
	return model.Item{}, false
}

// Add creates an item and inserts it locally once the backend returns
// the created record. Creation is not optimistic: identity comes from
// the store, and a new item's default position puts it on top of the
// unchecked partition.
func (c *Items) Add(ctx context.Context, text string) (*model.Item, error) {
	created, err := c.be.CreateItem(ctx, c.listID, text)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.items = append(c.items, *created)
	SortItems(c.items)
	c.mu.Unlock()
	return created, nil
}

// Toggle flips an item's checked state. The item crosses the partition
// boundary by re-sorting alone; no position is rewritten.
func (c *Items) Toggle(ctx context.Context, id string) error {
	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return backend.ErrNotFound
	}
	next := !c.items[idx].Checked
	c.mu.Unlock()

	return mutate(
		func() { c.setChecked(id, next) },
		func() error {
			_, err := c.be.UpdateItem(ctx, id, map[string]any{backend.FieldChecked: next})
			return err
		},
		func() { c.setChecked(id, !next) },
	)
}

// Edit replaces an item's text and URL, keeping the old values for
// rollback.
func (c *Items) Edit(ctx context.Context, id, text, url string) error {
	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return backend.ErrNotFound
	}
	prevText, prevURL := c.items[idx].Text, c.items[idx].URL
	c.mu.Unlock()

	return mutate(
		func() { c.setText(id, text, url) },
		func() error {
			_, err := c.be.UpdateItem(ctx, id, map[string]any{
				backend.FieldText: text,
				backend.FieldURL:  url,
			})
			return err
		},
		func() { c.setText(id, prevText, prevURL) },
	)
}

// Delete removes an item. Rollback is a full refetch: the optimistic
// removal discarded the row.
func (c *Items) Delete(ctx context.Context, id string) error {
	return mutate(
		func() { c.removeAll([]string{id}) },
		func() error { return c.be.DeleteItems(ctx, id) },
		func() { _ = c.Refresh(ctx) },
	)
}

// ClearChecked bulk-deletes the checked partition and reports how many
// items went.
func (c *Items) ClearChecked(ctx context.Context) (int, error) {
	c.mu.Lock()
	ids := partitionOrder(c.items, true)
	c.mu.Unlock()
	if len(ids) == 0 {
		return 0, nil
	}
	err := mutate(
		func() { c.removeAll(ids) },
		func() error { return c.be.DeleteItems(ctx, ids...) },
		func() { _ = c.Refresh(ctx) },
	)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// MoveStep moves an item one slot up (delta -1) or down (delta +1)
// within its partition. A step against the partition boundary is a
// no-op and issues no write.
func (c *Items) MoveStep(ctx context.Context, id string, delta int) error {
	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return backend.ErrNotFound
	}
	checked := c.items[idx].Checked
	plan := PlanStep(partitionOrder(c.items, checked), id, delta)
	c.mu.Unlock()

	if plan.NoOp() {
		return nil
	}
	return mutate(
		func() { c.applyPartitionOrder(checked, plan.Final) },
		func() error { return c.be.UpsertPositions(ctx, backend.TableItems, plan.Writes) },
		func() { _ = c.Refresh(ctx) },
	)
}

// BeginDrag starts a continuous drag of id. Reports false when the item
// is unknown or a drag is already active.
func (c *Items) BeginDrag(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag != nil {
		return false
	}
	idx := c.indexLocked(id)
	if idx < 0 {
		return false
	}
	c.drag = &itemDrag{
		id:      id,
		checked: c.items[idx].Checked,
		preDrag: append([]model.Item{}, c.items...),
	}
	return true
}

// Dragging returns the active drag's item ID, if any.
func (c *Items) Dragging() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag == nil {
		return "", false
	}
	return c.drag.id, true
}

// DragOver splices the dragged item to targetID's slot for live visual
// feedback. Targets outside the dragged item's partition are ignored.
func (c *Items) DragOver(targetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.drag
	if d == nil || targetID == d.id {
		return
	}
	tIdx := c.indexLocked(targetID)
	if tIdx < 0 || c.items[tIdx].Checked != d.checked {
		return
	}
	order := partitionOrder(c.items, d.checked)
	plan := PlanInsert(order, d.id, indexOf(order, targetID))
	if plan.NoOp() {
		return
	}
	c.applyPartitionOrderLocked(d.checked, plan.Final)
}

// EndDrag completes the drag and persists the partition order. A drag
// released on the original slot issues no write.
func (c *Items) EndDrag(ctx context.Context) error {
	c.mu.Lock()
	d := c.drag
	if d == nil {
		c.mu.Unlock()
		return nil
	}
	c.drag = nil
	final := partitionOrder(c.items, d.checked)
	orig := partitionOrder(d.preDrag, d.checked)
	c.mu.Unlock()

	if equalOrder(final, orig) {
		return nil
	}
	return mutate(
		func() { c.applyPartitionOrder(d.checked, final) },
		func() error { return c.be.UpsertPositions(ctx, backend.TableItems, Renumber(final)) },
		func() { _ = c.Refresh(ctx) },
	)
}

// CancelDrag abandons the drag and restores the pre-drag order.
func (c *Items) CancelDrag() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag == nil {
		return
	}
	c.items = c.drag.preDrag
	c.drag = nil
}

func (c *Items) indexLocked(id string) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Items) setChecked(id string, v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		c.items[i].Checked = v
		SortItems(c.items)
	}
}

func (c *Items) setText(id, text, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		c.items[i].Text = text
		c.items[i].URL = url
	}
}

func (c *Items) removeAll(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := c.items[:0]
	for _, it := range c.items {
		if !drop[it.ID] {
			kept = append(kept, it)
		}
	}
	c.items = kept
}

func (c *Items) applyPartitionOrder(checked bool, order []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyPartitionOrderLocked(checked, order)
}

// applyPartitionOrderLocked rearranges the partition's rows to match
// order and stamps each with its new index as position. Rows of the
// other partition keep their slots untouched. Caller holds mu.
func (c *Items) applyPartitionOrderLocked(checked bool, order []string) {
	byID := make(map[string]model.Item, len(order))
	for _, it := range c.items {
		if it.Checked == checked {
			byID[it.ID] = it
		}
	}
	k := 0
	for i := range c.items {
		if c.items[i].Checked != checked {
			continue
		}
		if k >= len(order) {
			break
		}
		it, ok := byID[order[k]]
		if !ok {
			k++
			continue
		}
		it.Position = k
		c.items[i] = it
		k++
	}
}
