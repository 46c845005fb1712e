package engine

import (
	"context"
	"testing"
	"time"

	"trolley/internal/model"
)

func seedFixtureItems(f *fakeBackend) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	f.seed(model.Item{ID: "a", ListID: "l1", Text: "apples", Position: 0, CreatedAt: now.Add(3 * time.Minute)})
	f.seed(model.Item{ID: "b", ListID: "l1", Text: "bread", Position: 1, CreatedAt: now.Add(2 * time.Minute)})
	f.seed(model.Item{ID: "c", ListID: "l1", Text: "coffee", Position: 2, CreatedAt: now.Add(time.Minute)})
	f.seed(model.Item{ID: "x", ListID: "l1", Text: "soap", Checked: true, Position: 0, CreatedAt: now.Add(5 * time.Minute)})
	f.seed(model.Item{ID: "y", ListID: "l1", Text: "rice", Checked: true, Position: 1, CreatedAt: now.Add(4 * time.Minute)})
}

func newTestItems(t *testing.T, f *fakeBackend) *Items {
	t.Helper()
	c := NewItems(f, "l1")
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := joinIDs(c.Snapshot()); got != "a,b,c,x,y" {
		t.Fatalf("fixture order %s, want a,b,c,x,y", got)
	}
	return c
}

func TestMoveStep_LeavesOtherPartitionAlone(t *testing.T) {
	f := newFakeBackend()
	seedFixtureItems(f)
	c := newTestItems(t, f)

	if err := c.MoveStep(context.Background(), "b", +1); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := joinIDs(c.Snapshot()); got != "a,c,b,x,y" {
		t.Fatalf("order %s, want a,c,b,x,y", got)
	}
	if len(f.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(f.upserts))
	}
	// Only the unchecked partition is renumbered.
	for _, w := range f.upserts[0].writes {
		if w.ID == "x" || w.ID == "y" {
			t.Fatalf("checked row %s included in unchecked renumber", w.ID)
		}
	}
	if f.item("x").Position != 0 || f.item("y").Position != 1 {
		t.Fatalf("checked positions disturbed: x=%d y=%d", f.item("x").Position, f.item("y").Position)
	}
}

func TestMoveStep_BoundaryIssuesNoWrite(t *testing.T) {
	f := newFakeBackend()
	seedFixtureItems(f)
	c := newTestItems(t, f)

	if err := c.MoveStep(context.Background(), "a", -1); err != nil {
		t.Fatalf("move up at top: %v", err)
	}
	if err := c.MoveStep(context.Background(), "y", +1); err != nil {
		t.Fatalf("move down at bottom: %v", err)
	}
	if len(f.upserts) != 0 {
		t.Fatalf("boundary moves wrote %d batches, want 0", len(f.upserts))
	}
	if got := joinIDs(c.Snapshot()); got != "a,b,c,x,y" {
		t.Fatalf("order changed to %s", got)
	}
}

func TestMoveStep_FailureDiscardsOptimisticOrder(t *testing.T) {
	f := newFakeBackend()
	seedFixtureItems(f)
	c := newTestItems(t, f)
	f.failUpsert = true

	if err := c.MoveStep(context.Background(), "b", +1); err == nil {
		t.Fatalf("expected error")
	}
	// Rollback re-fetches; the backend never applied the writes.
	if got := joinIDs(c.Snapshot()); got != "a,b,c,x,y" {
		t.Fatalf("order %s after failed move, want a,b,c,x,y", got)
	}
}

func TestDrag_FullReorderRoundTrip(t *testing.T) {
	f := newFakeBackend()
	seedFixtureItems(f)
	c := newTestItems(t, f)

	if !c.BeginDrag("c") {
		t.Fatalf("BeginDrag refused")
	}
	c.DragOver("a")
	if got := joinIDs(c.Snapshot()); got != "c,a,b,x,y" {
		t.Fatalf("live order %s, want c,a,b,x,y", got)
	}
	if err := c.EndDrag(context.Background()); err != nil {
		t.Fatalf("end drag: %v", err)
	}
	if len(f.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(f.upserts))
	}
	ws := f.upserts[0].writes
	if len(ws) != 3 || ws[0].ID != "c" || ws[1].ID != "a" || ws[2].ID != "b" {
		t.Fatalf("unexpected writes %+v", ws)
	}

	// The persisted positions survive an authoritative refetch.
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := joinIDs(c.Snapshot()); got != "c,a,b,x,y" {
		t.Fatalf("order after refetch %s, want c,a,b,x,y", got)
	}
}

func TestDrag_CrossPartitionTargetIgnored(t *testing.T) {
	f := newFakeBackend()
	seedFixtureItems(f)
	c := newTestItems(t, f)

	c.BeginDrag("a")
	c.DragOver("x")
	if got := joinIDs(c.Snapshot()); got != "a,b,c,x,y" {
		t.Fatalf("cross-partition hover moved rows: %s", got)
	}
	if err := c.EndDrag(context.Background()); err != nil {
		t.Fatalf("end drag: %v", err)
	}
	if len(f.upserts) != 0 {
		t.Fatalf("unmoved drag wrote %d batches", len(f.upserts))
	}
}

func TestDrag_ReleaseOnOriginalSlotIssuesNoWrite(t *testing.T) {
	f := newFakeBackend()
	seedFixtureItems(f)
	c := newTestItems(t, f)

	c.BeginDrag("b")
	c.DragOver("a")
	if got := joinIDs(c.Snapshot()); got != "b,a,c,x,y" {
		t.Fatalf("live order %s, want b,a,c,x,y", got)
	}
	// Hovering the displaced row again swaps back to the original order.
	c.DragOver("a")
	if err := c.EndDrag(context.Background()); err != nil {
		t.Fatalf("end drag: %v", err)
	}
	if len(f.upserts) != 0 {
		t.Fatalf("drag back to origin wrote %d batches", len(f.upserts))
	}
}

func TestCancelDrag_RestoresPreDragOrder(t *testing.T) {
	f := newFakeBackend()
	seedFixtureItems(f)
	c := newTestItems(t, f)

	c.BeginDrag("c")
	c.DragOver("a")
	c.CancelDrag()
	if got := joinIDs(c.Snapshot()); got != "a,b,c,x,y" {
		t.Fatalf("cancel left order %s", got)
	}
	if len(f.upserts) != 0 {
		t.Fatalf("cancelled drag wrote %d batches", len(f.upserts))
	}
}

func TestToggle_CrossesPartitionWithoutPositionWrite(t *testing.T) {
	f := newFakeBackend()
	seedFixtureItems(f)
	c := newTestItems(t, f)

	if err := c.Toggle(context.Background(), "b"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	// b joins the checked partition by re-sorting alone: position 1 kept,
	// tie with y broken newest-first.
	if got := joinIDs(c.Snapshot()); got != "a,c,x,y,b" {
		t.Fatalf("order %s, want a,c,x,y,b", got)
	}
	if len(f.upserts) != 0 {
		t.Fatalf("toggle issued %d position batches", len(f.upserts))
	}
	if got := f.item("b"); !got.Checked || got.Position != 1 {
		t.Fatalf("persisted b: checked=%v position=%d", got.Checked, got.Position)
	}
}

func TestToggle_RollsBackOnFailure(t *testing.T) {
	f := newFakeBackend()
	seedFixtureItems(f)
	c := newTestItems(t, f)
	f.failUpdateItem = true

	if err := c.Toggle(context.Background(), "a"); err == nil {
		t.Fatalf("expected error")
	}
	snap := c.Snapshot()
	if got := joinIDs(snap); got != "a,b,c,x,y" {
		t.Fatalf("order %s after rollback, want a,b,c,x,y", got)
	}
	if snap[0].Checked {
		t.Fatalf("a still checked after rollback")
	}
}

func TestEdit_RollsBackOnFailure(t *testing.T) {
	f := newFakeBackend()
	seedFixtureItems(f)
	c := newTestItems(t, f)
	f.failUpdateItem = true

	if err := c.Edit(context.Background(), "a", "avocados", "https://x"); err == nil {
		t.Fatalf("expected error")
	}
	got, _ := c.Get("a")
	if got.Text != "apples" || got.URL != "" {
		t.Fatalf("rollback left text=%q url=%q", got.Text, got.URL)
	}
}

func TestDelete_RefetchesOnFailure(t *testing.T) {
	f := newFakeBackend()
	seedFixtureItems(f)
	c := newTestItems(t, f)
	f.failDeleteItems = true

	before := f.fetches
	if err := c.Delete(context.Background(), "b"); err == nil {
		t.Fatalf("expected error")
	}
	if f.fetches != before+1 {
		t.Fatalf("expected a reconciliation fetch, got %d", f.fetches-before)
	}
	if got := joinIDs(c.Snapshot()); got != "a,b,c,x,y" {
		t.Fatalf("order %s after failed delete, want a,b,c,x,y", got)
	}
}

func TestDelete_RemovesOptimistically(t *testing.T) {
	f := newFakeBackend()
	seedFixtureItems(f)
	c := newTestItems(t, f)

	if err := c.Delete(context.Background(), "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := joinIDs(c.Snapshot()); got != "a,c,x,y" {
		t.Fatalf("order %s, want a,c,x,y", got)
	}
	if len(f.deletes) != 1 || len(f.deletes[0]) != 1 || f.deletes[0][0] != "b" {
		t.Fatalf("unexpected delete calls %+v", f.deletes)
	}
}

func TestClearChecked_BulkDeletesPartition(t *testing.T) {
	f := newFakeBackend()
	seedFixtureItems(f)
	c := newTestItems(t, f)

	n, err := c.ClearChecked(context.Background())
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 2 {
		t.Fatalf("cleared %d, want 2", n)
	}
	if got := joinIDs(c.Snapshot()); got != "a,b,c" {
		t.Fatalf("order %s, want a,b,c", got)
	}
	if len(f.deletes) != 1 || len(f.deletes[0]) != 2 {
		t.Fatalf("expected one bulk delete of 2 ids, got %+v", f.deletes)
	}
}

func TestClearChecked_NothingCheckedIsNoOp(t *testing.T) {
	f := newFakeBackend()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	f.seed(model.Item{ID: "a", ListID: "l1", CreatedAt: now})
	c := NewItems(f, "l1")
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	n, err := c.ClearChecked(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("got n=%d err=%v", n, err)
	}
	if len(f.deletes) != 0 {
		t.Fatalf("issued %d delete calls", len(f.deletes))
	}
}

func TestAdd_InsertsReturnedRecordOnTop(t *testing.T) {
	f := newFakeBackend()
	seedFixtureItems(f)
	c := newTestItems(t, f)

	created, err := c.Add(context.Background(), "milk")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	snap := c.Snapshot()
	// Default position 0 and newest creation time put it first among the
	// unchecked rows.
	if snap[0].ID != created.ID {
		t.Fatalf("new item at %s, want top", joinIDs(snap))
	}
}
