package engine

import "trolley/internal/backend"

// Plan describes the persistence step for one reposition gesture within a
// single partition.
//
// Final is the partition's resulting ID order. Writes assigns every ID in
// Final its zero-based index as its new position; the whole batch is
// persisted in one upsert. Empty Writes means the gesture was a no-op (a
// step against the partition boundary, a drag released on the original
// slot, an unknown ID) and nothing must be written.
type Plan struct {
	Final  []string
	Writes []backend.PositionWrite
}

// NoOp reports whether the plan requires no persistence.
func (p Plan) NoOp() bool { return len(p.Writes) == 0 }

// Renumber assigns each ID its index in order as its position.
func Renumber(order []string) []backend.PositionWrite {
	writes := make([]backend.PositionWrite, len(order))
	for i, id := range order {
		writes[i] = backend.PositionWrite{ID: id, Position: i}
	}
	return writes
}

// PlanStep plans moving movedID one slot within its partition.
//
// Inputs:
//   - order: the partition's current render order (IDs)
//   - movedID: the entity being moved
//   - delta: -1 to move up, +1 to move down
//
// A step that would cross the partition boundary (first row up, last row
// down) yields a no-op plan.
func PlanStep(order []string, movedID string, delta int) Plan {
	idx := indexOf(order, movedID)
	if idx < 0 {
		return Plan{Final: order}
	}
	target := idx + delta
	if target < 0 || target >= len(order) {
		return Plan{Final: order}
	}
	final := append([]string{}, order...)
	final[idx], final[target] = final[target], final[idx]
	return Plan{Final: final, Writes: Renumber(final)}
}

// PlanInsert plans splicing movedID to insertAt within its partition.
//
// Inputs:
//   - order: the partition's current render order (IDs)
//   - movedID: the entity being moved
//   - insertAt: the index to insert at after removing movedID; clamped to
//     the valid range
//
// An insert that reproduces the current order yields a no-op plan.
func PlanInsert(order []string, movedID string, insertAt int) Plan {
	idx := indexOf(order, movedID)
	if idx < 0 {
		return Plan{Final: order}
	}
	rest := make([]string, 0, len(order)-1)
	rest = append(rest, order[:idx]...)
	rest = append(rest, order[idx+1:]...)
	if insertAt < 0 {
		insertAt = 0
	}
	if insertAt > len(rest) {
		insertAt = len(rest)
	}
	final := make([]string, 0, len(order))
	final = append(final, rest[:insertAt]...)
	final = append(final, movedID)
	final = append(final, rest[insertAt:]...)
	if equalOrder(final, order) {
		return Plan{Final: order}
	}
	return Plan{Final: final, Writes: Renumber(final)}
}

func equalOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
