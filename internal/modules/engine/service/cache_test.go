package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"risk_engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_UpsertRemove(t *testing.T) {
	store := newFakeStore()
	cache := NewCache(store, 30*time.Second)

	p := longPos(1, "EUR/USD", 1.1000, ptr(1.1050), nil)
	cache.Upsert(p)
	require.Len(t, cache.PositionsFor("EUR/USD"), 1)

	// апдейт той же позиции не плодит дублей
	p.TakeProfit = ptr(1.1070)
	cache.Upsert(p)
	bucket := cache.PositionsFor("EUR/USD")
	require.Len(t, bucket, 1)
	assert.InDelta(t, 1.1070, *bucket[0].TakeProfit, 1e-9)

	cache.Remove(p.ID, p.Symbol)
	assert.Empty(t, cache.PositionsFor("EUR/USD"))
	assert.Equal(t, 0, cache.Size())
}

func TestCache_UpsertWithoutTriggersRemoves(t *testing.T) {
	store := newFakeStore()
	cache := NewCache(store, 30*time.Second)

	p := longPos(1, "EUR/USD", 1.1000, ptr(1.1050), nil)
	cache.Upsert(p)
	require.Equal(t, 1, cache.Size())

	// сняли TP/SL — позиции в кеше делать нечего
	p.TakeProfit = nil
	cache.Upsert(p)
	assert.Equal(t, 0, cache.Size())
}

func TestCache_RemoveByIDOnly(t *testing.T) {
	store := newFakeStore()
	cache := NewCache(store, 30*time.Second)

	cache.Upsert(longPos(1, "EUR/USD", 1.1000, ptr(1.1050), nil))
	cache.Remove(1, "")
	assert.Equal(t, 0, cache.Size())
}

func TestCache_RefreshAllSwapsWholesale(t *testing.T) {
	stale := longPos(1, "EUR/USD", 1.1000, ptr(1.1050), nil)
	fresh := shortPos(2, "GBP/USD", 1.2000, nil, ptr(1.2100))
	store := newFakeStore(fresh)

	cache := NewCache(store, 30*time.Second)
	cache.Upsert(stale) // осталась от прошлой жизни, в БД её уже нет

	n, err := cache.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Empty(t, cache.PositionsFor("EUR/USD"), "refresh must prune positions gone from the store")
	assert.Len(t, cache.PositionsFor("GBP/USD"), 1)
}

func TestCache_RefreshRateLimited(t *testing.T) {
	store := newFakeStore(longPos(1, "EUR/USD", 1.1000, ptr(1.1050), nil))
	cache := NewCache(store, 30*time.Second)

	n1, err := cache.RefreshAll(context.Background())
	require.NoError(t, err)
	n2, err := cache.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, n1, n2)
	store.mu.Lock()
	refreshes := store.refreshes
	store.mu.Unlock()
	assert.Equal(t, 1, refreshes, "second refresh inside the min gap must not hit the store")
}

func TestCache_ConcurrentReadersAndRefresh(t *testing.T) {
	ps := []models.Position{
		longPos(1, "EUR/USD", 1.1000, ptr(1.1050), nil),
		shortPos(2, "GBP/USD", 1.2000, nil, ptr(1.2100)),
	}
	store := newFakeStore(ps...)
	cache := NewCache(store, time.Nanosecond) // min gap ~0, чтобы рефреши шли подряд

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_, _ = cache.RefreshAll(context.Background())
			}
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				for _, p := range cache.PositionsFor("EUR/USD") {
					// бакет иммутабелен: читаем без гонки
					assert.Equal(t, "EUR/USD", p.Symbol)
				}
				cache.Upsert(longPos(3, "USD/JPY", 150, ptr(151), nil))
				cache.Remove(3, "USD/JPY")
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()
}
