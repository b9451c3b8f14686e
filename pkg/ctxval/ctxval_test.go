package ctxval_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nguyentranbao-ct/catalog-console/pkg/ctxval"
)

func TestWithValue(t *testing.T) {
	t.Parallel()
	type testKey string
	type testValue string

	t.Run("Set and Get Value", func(t *testing.T) {
		ctx := ctxval.Wrap(context.Background())
		ctxval.Set(ctx, testKey("key1"), testValue("value1"))
		got, ok := ctxval.Get[testKey, testValue](ctx, testKey("key1"))
		assert.True(t, ok)
		assert.Equal(t, testValue("value1"), got)
	})

	t.Run("Overwrite Value", func(t *testing.T) {
		ctx := ctxval.Wrap(context.Background())
		ctxval.Set(ctx, testKey("key1"), testValue("value1"))
		ctxval.Set(ctx, testKey("key1"), testValue("value2"))
		got, _ := ctxval.Get[testKey, testValue](ctx, testKey("key1"))
		assert.Equal(t, testValue("value2"), got)
	})

	t.Run("Wrong Type", func(t *testing.T) {
		ctx := ctxval.Wrap(context.Background())
		ctxval.Set(ctx, testKey("n"), 42)
		_, ok := ctxval.Get[testKey, string](ctx, testKey("n"))
		assert.False(t, ok)
	})

	t.Run("Unwrapped Context", func(t *testing.T) {
		ctx := context.Background()
		ctxval.Set(ctx, testKey("key1"), testValue("value1"))
		_, ok := ctxval.Get[testKey, testValue](ctx, testKey("key1"))
		assert.False(t, ok)
	})

	t.Run("Wrap Is Idempotent", func(t *testing.T) {
		ctx := ctxval.Wrap(context.Background())
		assert.Equal(t, ctx, ctxval.Wrap(ctx))
	})

	t.Run("Visible Through Child Contexts", func(t *testing.T) {
		ctx := ctxval.Wrap(context.Background())
		child, cancel := context.WithCancel(ctx)
		defer cancel()
		ctxval.SetProductID(child, 9)
		id, ok := ctxval.ProductID(ctx)
		assert.True(t, ok)
		assert.Equal(t, int64(9), id)
	})
}

func TestRequestID(t *testing.T) {
	ctx := ctxval.Wrap(context.Background())
	assert.Empty(t, ctxval.RequestID(ctx))
	ctxval.SetRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", ctxval.RequestID(ctx))
}

func TestConcurrentSetAndGet(t *testing.T) {
	ctx := ctxval.Wrap(context.Background())
	const numGoroutines = 50
	const numOperations = 200

	var wg sync.WaitGroup
	wg.Add(numGoroutines * 2)
	for i := range numGoroutines {
		go func(routineID int) {
			defer wg.Done()
			for j := range numOperations {
				ctxval.Set(ctx, fmt.Sprintf("key-%d", j%10), fmt.Sprintf("value-%d-%d", routineID, j))
			}
		}(i)
	}
	for range numGoroutines {
		go func() {
			defer wg.Done()
			for j := range numOperations {
				_, _ = ctxval.Get[string, string](ctx, fmt.Sprintf("key-%d", j%10))
			}
		}()
	}
	wg.Wait()

	for j := range 10 {
		_, ok := ctxval.Get[string, string](ctx, fmt.Sprintf("key-%d", j))
		assert.True(t, ok)
	}
}
