package engine

// mutate runs the optimistic write pattern shared by both collections:
// apply the change to local state, attempt the remote write, and on
// failure run restore to return local state to what it was. restore
// either puts captured before-state back (toggle, edit) or re-fetches
// the collection when the optimistic change discarded data (delete,
// reorder).
//
// Creation does not go through here: the store assigns identity, so
// local state only updates once the created record comes back.
func mutate(apply func(), remote func() error, restore func()) error {
	apply()
	if err := remote(); err != nil {
		restore()
		return err
	}
	return nil
}
