package services

import "context"

// optimistic runs the optimistic-mutation pattern shared by the engagement
// tracker and the trainer aggregator: apply patches local state immediately
// so callers observe the change before the write is confirmed, commit
// performs the authoritative remote write, and on commit failure restore
// reverts local state to the pre-mutation snapshot. The snapshot must be a
// deep copy; restore receives it unchanged.
func optimistic[S any](ctx context.Context, snapshot S, apply func(), commit func(context.Context) error, restore func(S)) error {
	apply()
	if err := commit(ctx); err != nil {
		restore(snapshot)
		return err
	}
	return nil
}
