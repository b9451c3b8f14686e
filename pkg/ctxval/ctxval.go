// Package ctxval attaches a mutable value bag to a request context, so
// values set deep in a handler are visible to the middleware that wrapped
// it.
package ctxval

import (
	"context"
	"sync"
)

type bagKey struct{}

type bag struct {
	mu     sync.RWMutex
	values map[any]any
}

// Wrap returns ctx carrying a bag, or ctx itself if it already has one.
func Wrap(ctx context.Context) context.Context {
	if _, ok := getBag(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, bagKey{}, &bag{values: make(map[any]any)})
}

// Set is a no-op on a context that was never wrapped.
func Set[K comparable, V any](ctx context.Context, k K, v V) {
	b, ok := getBag(ctx)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[k] = v
}

func Get[K comparable, V any](ctx context.Context, k K) (V, bool) {
	b, ok := getBag(ctx)
	if !ok {
		return *new(V), false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[k].(V)
	return v, ok
}

func getBag(ctx context.Context) (*bag, bool) {
	b, ok := ctx.Value(bagKey{}).(*bag)
	return b, ok
}

type (
	requestIDKey struct{}
	productIDKey struct{}
)

func SetRequestID(ctx context.Context, id string) {
	Set(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := Get[requestIDKey, string](ctx, requestIDKey{})
	return id
}

func SetProductID(ctx context.Context, id int64) {
	Set(ctx, productIDKey{}, id)
}

func ProductID(ctx context.Context) (int64, bool) {
	return Get[productIDKey, int64](ctx, productIDKey{})
}
