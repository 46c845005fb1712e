// Package engine is the backend-agnostic client core: render ordering,
// reposition planning, optimistic mutations, and the change relay. The
// TUI and CLI drive these collections; they never talk to a backend
// directly for list/item state.
package engine

import (
	"sort"

	"trolley/internal/model"
)

// SortLists sorts lists in place into render order: manual position, then
// newest first, then ID.
func SortLists(lists []model.List) {
	sort.SliceStable(lists, func(i, j int) bool {
		return compareListsByPositionCreatedID(lists[i], lists[j]) < 0
	})
}

func compareListsByPositionCreatedID(a, b model.List) int {
	if a.Position != b.Position {
		if a.Position < b.Position {
			return -1
		}
		return 1
	}
	if a.CreatedAt.After(b.CreatedAt) {
		return -1
	}
	if a.CreatedAt.Before(b.CreatedAt) {
		return 1
	}
	if a.ID < b.ID {
		return -1
	}
	if a.ID > b.ID {
		return 1
	}
	return 0
}

// SortItems sorts items in place into render order: unchecked before
// checked, then manual position, then newest first, then ID. The two
// checked-state partitions are ordered independently; positions only
// compete within a partition.
func SortItems(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return compareItemsByCheckedPositionCreatedID(items[i], items[j]) < 0
	})
}

func compareItemsByCheckedPositionCreatedID(a, b model.Item) int {
	if a.Checked != b.Checked {
		if !a.Checked {
			return -1
		}
		return 1
	}
	if a.Position != b.Position {
		if a.Position < b.Position {
			return -1
		}
		return 1
	}
	if a.CreatedAt.After(b.CreatedAt) {
		return -1
	}
	if a.CreatedAt.Before(b.CreatedAt) {
		return 1
	}
	if a.ID < b.ID {
		return -1
	}
	if a.ID > b.ID {
		return 1
	}
	return 0
}

// partitionOrder returns the IDs of the items sharing checked state with
// the given flag, in their current slice order.
func partitionOrder(items []model.Item, checked bool) []string {
	ids := make([]string, 0, len(items))
	for i := range items {
		if items[i].Checked == checked {
			ids = append(ids, items[i].ID)
		}
	}
	return ids
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}
