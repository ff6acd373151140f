package action

import (
	"context"

	"github.com/m-manu/sshpath/fs"
	"golang.org/x/sync/errgroup"
)

// forEach runs fn over the siblings of one directory. In parallel mode the first failure
// cancels the context handed to the others and no further siblings are started.
func forEach(ctx context.Context, parallelism int, entries []fs.Endpoint,
	fn func(context.Context, fs.Endpoint) error) error {
	if parallelism <= 1 {
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, e := range entries {
		if gctx.Err() != nil {
			break
		}
		e := e
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, e)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
