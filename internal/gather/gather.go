// Package gather runs independent sub-fetches concurrently and returns one
// tagged outcome per key, in key order, without cancelling siblings on failure.
package gather

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one sub-fetch: either Value or Err is meaningful.
type Outcome[K any, V any] struct {
	Key   K
	Value V
	Err   error
}

func (o Outcome[K, V]) OK() bool { return o.Err == nil }

// All calls fn once per key with at most limit calls in flight (limit <= 0
// means unbounded). The returned slice is index-aligned with keys.
func All[K any, V any](ctx context.Context, limit int, keys []K, fn func(context.Context, K) (V, error)) []Outcome[K, V] {
	out := make([]Outcome[K, V], len(keys))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, key := range keys {
		i, key := i, key
		out[i].Key = key
		g.Go(func() error {
			v, err := call(ctx, key, fn)
			out[i].Value = v
			out[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func call[K any, V any](ctx context.Context, key K, fn func(context.Context, K) (V, error)) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return v, err
	}
	return fn(ctx, key)
}

func Succeeded[K any, V any](outcomes []Outcome[K, V]) []Outcome[K, V] {
	var ok []Outcome[K, V]
	for _, o := range outcomes {
		if o.Err == nil {
			ok = append(ok, o)
		}
	}
	return ok
}

func Failed[K any, V any](outcomes []Outcome[K, V]) []Outcome[K, V] {
	var bad []Outcome[K, V]
	for _, o := range outcomes {
		if o.Err != nil {
			bad = append(bad, o)
		}
	}
	return bad
}

// Values returns the successful values in key order.
func Values[K any, V any](outcomes []Outcome[K, V]) []V {
	vals := make([]V, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil {
			vals = append(vals, o.Value)
		}
	}
	return vals
}
