package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwmail/pastelite/models"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func newPaste(id string, ttl time.Duration, maxViews *int) *models.Paste {
	p := &models.Paste{
		ID:        id,
		Content:   "content of " + id,
		CreatedAt: baseTime,
		MaxViews:  maxViews,
	}
	if ttl > 0 {
		p.ExpiresAt = timePtr(baseTime.Add(ttl))
	}
	return p
}

// runStoreContract exercises the behaviour every PasteStore must share
func runStoreContract(t *testing.T, newStore func(t *testing.T) PasteStore) {
	ctx := context.Background()

	t.Run("InsertAndGet", func(t *testing.T) {
		store := newStore(t)
		p := newPaste("get1", time.Hour, intPtr(3))
		require.NoError(t, store.Insert(ctx, p))

		got, err := store.Get(ctx, "get1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "content of get1", got.Content)
		assert.True(t, got.CreatedAt.Equal(baseTime))
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, got.ExpiresAt.Equal(baseTime.Add(time.Hour)))
		require.NotNil(t, got.MaxViews)
		assert.Equal(t, 3, *got.MaxViews)
		assert.Equal(t, 0, got.ViewsUsed)
		assert.False(t, got.Burned)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		got, err := store.Get(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("DuplicateInsertKeepsOriginal", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, newPaste("dup", 0, nil)))

		second := newPaste("dup", 0, nil)
		second.Content = "second"
		assert.ErrorIs(t, store.Insert(ctx, second), ErrDuplicateID)

		got, err := store.Get(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "content of dup", got.Content)
	})

	t.Run("ConsumeViewCountsDown", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, newPaste("cv", 0, intPtr(2))))

		p, verdict, err := store.ConsumeView(ctx, "cv", baseTime)
		require.NoError(t, err)
		assert.Equal(t, models.OK, verdict)
		assert.Equal(t, 1, p.ViewsUsed)

		p, verdict, err = store.ConsumeView(ctx, "cv", baseTime)
		require.NoError(t, err)
		assert.Equal(t, models.OK, verdict)
		assert.Equal(t, 2, p.ViewsUsed)

		p, verdict, err = store.ConsumeView(ctx, "cv", baseTime)
		require.NoError(t, err)
		assert.Equal(t, models.ViewLimitReached, verdict)
		require.NotNil(t, p)
		assert.Equal(t, 2, p.ViewsUsed)
	})

	t.Run("ConsumeViewUnlimited", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, newPaste("unl", 0, nil)))
		for i := 1; i <= 5; i++ {
			p, verdict, err := store.ConsumeView(ctx, "unl", baseTime.Add(24*time.Hour*365))
			require.NoError(t, err)
			assert.Equal(t, models.OK, verdict)
			assert.Equal(t, i, p.ViewsUsed)
		}
	})

	t.Run("ConsumeViewMissing", func(t *testing.T) {
		store := newStore(t)
		p, verdict, err := store.ConsumeView(ctx, "ghost", baseTime)
		require.NoError(t, err)
		assert.Equal(t, models.NotFound, verdict)
		assert.Nil(t, p)
	})

	t.Run("ConsumeViewExpiryBoundary", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, newPaste("exp", 10*time.Second, nil)))

		_, verdict, err := store.ConsumeView(ctx, "exp", baseTime.Add(10*time.Second-time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, models.OK, verdict)

		p, verdict, err := store.ConsumeView(ctx, "exp", baseTime.Add(10*time.Second))
		require.NoError(t, err)
		assert.Equal(t, models.Expired, verdict)
		require.NotNil(t, p)
		assert.Equal(t, 1, p.ViewsUsed)
	})

	t.Run("BurnBlocksViews", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, newPaste("burn", time.Hour, nil)))
		require.NoError(t, store.Burn(ctx, "burn"))
		require.NoError(t, store.Burn(ctx, "burn"))

		_, verdict, err := store.ConsumeView(ctx, "burn", baseTime)
		require.NoError(t, err)
		assert.Equal(t, models.Burned, verdict)

		// burned outranks expired
		_, verdict, err = store.ConsumeView(ctx, "burn", baseTime.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, models.Burned, verdict)
	})

	t.Run("BurnMissing", func(t *testing.T) {
		store := newStore(t)
		assert.ErrorIs(t, store.Burn(ctx, "ghost"), ErrNotFound)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, newPaste("del", 0, nil)))
		require.NoError(t, store.Delete(ctx, "del"))
		require.NoError(t, store.Delete(ctx, "del"))

		got, err := store.Get(ctx, "del")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, newPaste("short", 10*time.Second, nil)))
		require.NoError(t, store.Insert(ctx, newPaste("long", time.Hour, nil)))
		require.NoError(t, store.Insert(ctx, newPaste("forever", 0, nil)))
		exhausted := newPaste("spent", 0, intPtr(1))
		exhausted.ViewsUsed = 1
		require.NoError(t, store.Insert(ctx, exhausted))

		n, err := store.DeleteExpired(ctx, baseTime.Add(10*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = store.DeleteExpired(ctx, baseTime.Add(10*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		for _, id := range []string{"long", "forever", "spent"} {
			got, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.NotNil(t, got, id)
		}
	})

	t.Run("ConcurrentViewsNeverOverGrant", func(t *testing.T) {
		store := newStore(t)
		const limit = 5
		const readers = 20
		require.NoError(t, store.Insert(ctx, newPaste("race", time.Hour, intPtr(limit))))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted []int
			refused int
		)
		for i := 0; i < readers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p, verdict, err := store.ConsumeView(ctx, "race", baseTime)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					t.Errorf("ConsumeView: %v", err)
					return
				}
				if verdict == models.OK {
					granted = append(granted, p.ViewsUsed)
				} else {
					assert.Equal(t, models.ViewLimitReached, verdict)
					refused++
				}
			}()
		}
		wg.Wait()

		assert.Len(t, granted, limit)
		assert.Equal(t, readers-limit, refused)
		assert.ElementsMatch(t, []int{1, 2, 3, 4, 5}, granted)

		got, err := store.Get(ctx, "race")
		require.NoError(t, err)
		assert.Equal(t, limit, got.ViewsUsed)
	})

	t.Run("ManyPastesAreIndependent", func(t *testing.T) {
		store := newStore(t)
		for i := 0; i < 10; i++ {
			require.NoError(t, store.Insert(ctx, newPaste(fmt.Sprintf("p%d", i), 0, intPtr(1))))
		}
		for i := 0; i < 10; i++ {
			_, verdict, err := store.ConsumeView(ctx, fmt.Sprintf("p%d", i), baseTime)
			require.NoError(t, err)
			assert.Equal(t, models.OK, verdict)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Ping(ctx))
	})
}
