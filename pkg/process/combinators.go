// SPDX-License-Identifier: MPL-2.0

package process

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Chain runs p, forwarding its states, then runs the process f builds from
// p's result and adopts that process's result. f is not called when p fails.
func Chain[S, T, U any](p Process[S, T], f func(T) Process[S, U]) Process[S, U] {
	return New(func(ctx context.Context, emit func(S)) (U, error) {
		t, err := p.run(ctx, emit)
		if err != nil {
			var zero U
			return zero, err
		}
		return f(t).run(ctx, emit)
	})
}

// Concat runs a to completion, then b, forwarding the states of both. The
// result of a is discarded.
func Concat[S, T, U any](a Process[S, T], b Process[S, U]) Process[S, U] {
	return Chain(a, func(T) Process[S, U] { return b })
}

// Map transforms the result of p.
func Map[S, T, U any](p Process[S, T], f func(T) U) Process[S, U] {
	return New(func(ctx context.Context, emit func(S)) (U, error) {
		t, err := p.run(ctx, emit)
		if err != nil {
			var zero U
			return zero, err
		}
		return f(t), nil
	})
}

// MapStates transforms every state of p.
func MapStates[S, R, T any](p Process[S, T], f func(S) R) Process[R, T] {
	return New(func(ctx context.Context, emit func(R)) (T, error) {
		return p.run(ctx, func(s S) { emit(f(s)) })
	})
}

// All runs ps concurrently with at most limit running at once (limit <= 0
// means no limit). States from every process are delivered through the one
// serialized emitter, so their relative order across processes is arbitrary.
// Results are returned in the order of ps. The first failure cancels the rest.
func All[S, T any](limit int, ps ...Process[S, T]) Process[S, []T] {
	return New(func(ctx context.Context, emit func(S)) ([]T, error) {
		results := make([]T, len(ps))
		g, gctx := errgroup.WithContext(ctx)
		if limit > 0 {
			g.SetLimit(limit)
		}
		for i, p := range ps {
			g.Go(func() error {
				t, err := p.run(gctx, emit)
				if err != nil {
					return err
				}
				results[i] = t
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	})
}
