// Package storetest holds the behaviour every stock.Store must share. Each
// store package runs it against its own backend.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockroom/internal/stock"
)

// NewStore returns an empty store. It is called once per subtest.
type NewStore func(t *testing.T) stock.Store

func ptr[T any](v T) *T { return &v }

// Run exercises the stock.Store contract against stores built by newStore.
func Run(t *testing.T, newStore NewStore) {
	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, stock.Item{Title: "Cat Food", Description: "It's cat food", Price: "2.50"})
		require.NoError(t, err)
		assert.Positive(t, created.ID)
		assert.False(t, created.Done)

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, *created, *got)
	})

	t.Run("CreateIgnoresCallerID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.Create(ctx, stock.Item{Title: "a"})
		require.NoError(t, err)
		second, err := s.Create(ctx, stock.Item{ID: first.ID, Title: "b"})
		require.NoError(t, err)
		assert.Greater(t, second.ID, first.ID)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), 404)
		assert.ErrorIs(t, err, stock.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		items, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, items)

		var want []stock.Item
		for _, title := range []string{"Cat Food", "Dog Food", "Fish Food"} {
			item, err := s.Create(ctx, stock.Item{Title: title})
			require.NoError(t, err)
			want = append(want, *item)
		}

		items, err = s.List(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, want, items)
	})

	t.Run("UpdatePartial", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, stock.Item{Title: "Cat Food", Description: "It's cat food", ImageURI: "https://img.example.com/cat.png"})
		require.NoError(t, err)

		updated, err := s.Update(ctx, created.ID, stock.Patch{Price: ptr("3.99"), Done: ptr(true)})
		require.NoError(t, err)

		want := *created
		want.Price = "3.99"
		want.Done = true
		assert.Equal(t, want, *updated)

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, want, *got)

		updated, err = s.Update(ctx, created.ID, stock.Patch{Done: ptr(false), Description: ptr("")})
		require.NoError(t, err)
		assert.False(t, updated.Done)
		assert.Empty(t, updated.Description)
		assert.Equal(t, "Cat Food", updated.Title)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Update(context.Background(), 404, stock.Patch{Title: ptr("x")})
		assert.ErrorIs(t, err, stock.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		keep, err := s.Create(ctx, stock.Item{Title: "keep"})
		require.NoError(t, err)
		gone, err := s.Create(ctx, stock.Item{Title: "gone"})
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, gone.ID))

		_, err = s.Get(ctx, gone.ID)
		assert.ErrorIs(t, err, stock.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, gone.ID), stock.ErrNotFound)

		items, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []stock.Item{*keep}, items)
	})

	t.Run("IDsNotReused", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.Create(ctx, stock.Item{Title: "first"})
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, first.ID))

		second, err := s.Create(ctx, stock.Item{Title: "second"})
		require.NoError(t, err)
		assert.Greater(t, second.ID, first.ID)
	})

	t.Run("ConcurrentCreate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const n = 20
		ids := make(chan int64, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				item, err := s.Create(ctx, stock.Item{Title: "concurrent"})
				if assert.NoError(t, err) {
					ids <- item.ID
				}
			}()
		}
		wg.Wait()
		close(ids)

		seen := make(map[int64]bool, n)
		for id := range ids {
			assert.False(t, seen[id], "id %d handed out twice", id)
			seen[id] = true
		}
		assert.Len(t, seen, n)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}

// NewPagedStore returns an empty store whose List is capped at pageSize.
type NewPagedStore func(t *testing.T, pageSize int) stock.Store

// RunPaged checks the listing contract of remote stores: items come back
// ordered by title, descending, and no more than a page of them.
func RunPaged(t *testing.T, newStore NewPagedStore) {
	Run(t, func(t *testing.T) stock.Store { return newStore(t, 50) })

	t.Run("ListOrderAndPage", func(t *testing.T) {
		s := newStore(t, 3)
		ctx := context.Background()

		for _, title := range []string{"Bird Seed", "Dog Food", "Cat Food", "Apple", "Eel Bait"} {
			_, err := s.Create(ctx, stock.Item{Title: title})
			require.NoError(t, err)
		}

		items, err := s.List(ctx)
		require.NoError(t, err)

		titles := make([]string, 0, len(items))
		for _, item := range items {
			titles = append(titles, item.Title)
		}
		assert.Equal(t, []string{"Eel Bait", "Dog Food", "Cat Food"}, titles)
	})

	t.Run("ListFollowsUpdateAndDelete", func(t *testing.T) {
		s := newStore(t, 2)
		ctx := context.Background()

		ids := make(map[string]int64)
		for _, title := range []string{"Bird Seed", "Cat Food", "Dog Food"} {
			item, err := s.Create(ctx, stock.Item{Title: title})
			require.NoError(t, err)
			ids[title] = item.ID
		}

		_, err := s.Update(ctx, ids["Bird Seed"], stock.Patch{Title: ptr("Yak Wax")})
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, ids["Dog Food"]))

		items, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, ids["Bird Seed"], items[0].ID)
		assert.Equal(t, "Yak Wax", items[0].Title)
		assert.Equal(t, "Cat Food", items[1].Title)
	})
}
