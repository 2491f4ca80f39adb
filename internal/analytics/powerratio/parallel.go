package powerratio

import "golang.org/x/sync/errgroup"

// forEachEntity runs fn once per entity group. With parallelism <= 1 the
// groups run serially in order; otherwise at most parallelism groups run at
// once and the call returns after all of them finished. fn must only write
// to state owned by its own entity.
func forEachEntity(order []string, groups map[string][]int, parallelism int, fn func(slot int, entityID string, idx []int)) {
	if parallelism <= 1 || len(order) <= 1 {
		for slot, id := range order {
			fn(slot, id, groups[id])
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(parallelism)
	for slot, id := range order {
		idx := groups[id]
		g.Go(func() error {
			fn(slot, id, idx)
			return nil
		})
	}
	_ = g.Wait()
}
