package aggregio

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAllocatesMonotonicIDs(t *testing.T) {
	t.Parallel()
	store := NewStore()

	first := store.Upsert(10, Aggregate{Name: "one"})
	second := store.Upsert(10, Aggregate{Name: "two"})
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)

	// ids never go backwards, even after a removal
	store.Remove(10, 2)
	third := store.Upsert(10, Aggregate{Name: "three"})
	assert.Equal(t, int64(2), third.ID)

	// collections are independent per athlete
	other := store.Upsert(20, Aggregate{Name: "other"})
	assert.Equal(t, int64(1), other.ID)
}

func TestStoreUpsertReplacesInPlace(t *testing.T) {
	t.Parallel()
	store := NewStore()
	store.Upsert(10, Aggregate{Name: "a"})
	store.Upsert(10, Aggregate{Name: "b"})
	store.Upsert(10, Aggregate{Name: "c"})

	store.Upsert(10, Aggregate{ID: 2, Name: "b2"})

	aggs := store.List(10)
	require.Len(t, aggs, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{aggs[0].ID, aggs[1].ID, aggs[2].ID})
	assert.Equal(t, "b2", aggs[1].Name)
}

func TestStoreUpsertUnknownIDAppends(t *testing.T) {
	t.Parallel()
	store := NewStore()
	store.Upsert(10, Aggregate{ID: 7, Name: "seven"})

	agg, ok := store.Get(10, 7)
	require.True(t, ok)
	assert.Equal(t, "seven", agg.Name)

	// the next allocation continues past the explicit id
	next := store.Upsert(10, Aggregate{Name: "eight"})
	assert.Equal(t, int64(8), next.ID)
}

func TestStoreRemoveIdempotent(t *testing.T) {
	t.Parallel()
	store := NewStore()
	store.Upsert(10, Aggregate{Name: "keep"})
	store.Upsert(10, Aggregate{Name: "drop"})

	store.Remove(10, 2)
	once := store.List(10)
	store.Remove(10, 2)
	store.Remove(10, 99)
	twice := store.List(10)

	assert.Equal(t, once, twice)
	require.Len(t, twice, 1)
	assert.Equal(t, int64(1), twice[0].ID)
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()
	store := NewStore()
	_, ok := store.Get(10, 1)
	assert.False(t, ok)
	assert.Empty(t, store.List(10))
}

func TestStoreReturnsCopies(t *testing.T) {
	t.Parallel()
	store := NewStore()
	store.Upsert(10, Aggregate{
		Name:       "ride",
		Activities: []Activity{{ID: 1, Name: "morning"}},
		CreatedAt:  time.Now(),
	})

	aggs := store.List(10)
	aggs[0].Name = "mutated"
	aggs[0].Activities[0].Name = "mutated"

	agg, ok := store.Get(10, 1)
	require.True(t, ok)
	assert.Equal(t, "ride", agg.Name)
	assert.Equal(t, "morning", agg.Activities[0].Name)
}

func TestStoreConcurrentAllocation(t *testing.T) {
	t.Parallel()
	store := NewStore()
	const writers = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Upsert(10, Aggregate{Name: fmt.Sprintf("agg-%d", i)})
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, agg := range store.List(10) {
		assert.False(t, seen[agg.ID], "duplicate id %d", agg.ID)
		seen[agg.ID] = true
	}
	assert.Len(t, seen, writers)
}
