// Package workpool runs index-addressed tasks on a bounded set of
// goroutines.
//
// Tasks write only to their own slot of a caller-owned slice, so results do
// not depend on scheduling. A non-zero seed shuffles submission order, which
// lets tests check that claim.
package workpool

import (
	"context"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// Pool is a fork-join configuration. The zero value runs tasks inline in
// index order.
type Pool struct {
	Workers int
	Seed    int64
}

// Run calls fn for every i in [0, n) and returns the first error.
func (p Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if p.Seed != 0 {
		r := rand.New(rand.NewSource(p.Seed))
		r.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	if p.Workers <= 1 {
		for _, i := range order {
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)
	for _, i := range order {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
