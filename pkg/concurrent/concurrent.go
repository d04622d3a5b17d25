// Package concurrent holds errgroup-based fan-out helpers.
package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// MapIndexed applies mapFn to every element with at most limit goroutines in
// flight (limit <= 0 means unbounded) and returns the results in input order.
// The first error cancels ctx for the remaining calls and is returned; no
// partial results are returned alongside it.
func MapIndexed[T any, R any](ctx context.Context, items []T, limit int, mapFn func(ctx context.Context, idx int, item T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for idx, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := mapFn(gctx, idx, item)
			if err != nil {
				return err
			}
			out[idx] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
