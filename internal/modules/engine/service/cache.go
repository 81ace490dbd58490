package service

import (
	"context"
	"sync"
	"time"

	"risk_engine/internal/models"
	"risk_engine/pkg/logger"
)

// OpenPositionSource — откуда кеш забирает позиции при полном ребилде.
type OpenPositionSource interface {
	FindOpenWithTpSl(ctx context.Context) ([]models.Position, error)
}

// Cache — индекс symbol → позиции с TP/SL. Бакеты copy-on-write:
// слайс, однажды отданный читателю, больше не мутируется, Upsert/Remove
// кладут на его место новый. Полный ребилд собирает карту в стороне
// и подменяет целиком — читатель никогда не видит полусобранный индекс.
type Cache struct {
	mu         sync.RWMutex
	bySymbol   map[string][]models.Position
	symbolByID map[int64]string

	source OpenPositionSource

	// рейт-лимит ребилда: чаще minRefreshGap не пересобираем,
	// даже если RefreshAll дёргают подряд
	minRefreshGap time.Duration
	lastRefresh   time.Time
	lastCount     int
}

func NewCache(source OpenPositionSource, refreshInterval time.Duration) *Cache {
	return &Cache{
		bySymbol:      make(map[string][]models.Position),
		symbolByID:    make(map[int64]string),
		source:        source,
		minRefreshGap: refreshInterval / 2,
	}
}

// Upsert кладёт/обновляет позицию в кеше. Позиция без TP и SL
// кешу не нужна — такой вызов эквивалентен Remove.
func (c *Cache) Upsert(p models.Position) {
	if !p.HasTriggers() || p.Status != models.StatusOpen {
		c.Remove(p.ID, p.Symbol)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// символ позиции не меняется, но в старом бакете могла
	// остаться прежняя версия записи
	if prev, ok := c.symbolByID[p.ID]; ok && prev != p.Symbol {
		c.bySymbol[prev] = withoutID(c.bySymbol[prev], p.ID)
		if len(c.bySymbol[prev]) == 0 {
			delete(c.bySymbol, prev)
		}
	}

	bucket := c.bySymbol[p.Symbol]
	next := make([]models.Position, 0, len(bucket)+1)
	replaced := false
	for _, cur := range bucket {
		if cur.ID == p.ID {
			next = append(next, p)
			replaced = true
			continue
		}
		next = append(next, cur)
	}
	if !replaced {
		next = append(next, p)
	}
	c.bySymbol[p.Symbol] = next
	c.symbolByID[p.ID] = p.Symbol
}

// Remove выкидывает позицию из кеша (закрылась или сняли TP/SL).
func (c *Cache) Remove(id int64, symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if symbol == "" {
		symbol = c.symbolByID[id]
	}
	if symbol == "" {
		return
	}

	c.bySymbol[symbol] = withoutID(c.bySymbol[symbol], id)
	if len(c.bySymbol[symbol]) == 0 {
		delete(c.bySymbol, symbol)
	}
	delete(c.symbolByID, id)
}

// PositionsFor — бакет символа. Возвращённый слайс иммутабелен.
func (c *Cache) PositionsFor(symbol string) []models.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bySymbol[symbol]
}

func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.symbolByID)
}

// RefreshAll — полный ребилд из БД с атомарной подменой индекса.
// Возвращает число закешированных позиций.
func (c *Cache) RefreshAll(ctx context.Context) (int, error) {
	c.mu.Lock()
	if !c.lastRefresh.IsZero() && time.Since(c.lastRefresh) < c.minRefreshGap {
		count := c.lastCount
		c.mu.Unlock()
		return count, nil
	}
	c.lastRefresh = time.Now()
	c.mu.Unlock()

	list, err := c.source.FindOpenWithTpSl(ctx)
	if err != nil {
		return 0, err
	}

	nextBySymbol := make(map[string][]models.Position, len(list))
	nextByID := make(map[int64]string, len(list))
	for _, p := range list {
		if !p.HasTriggers() {
			continue
		}
		nextBySymbol[p.Symbol] = append(nextBySymbol[p.Symbol], p)
		nextByID[p.ID] = p.Symbol
	}

	c.mu.Lock()
	c.bySymbol = nextBySymbol
	c.symbolByID = nextByID
	c.lastCount = len(nextByID)
	c.mu.Unlock()

	cacheSize.Set(float64(len(nextByID)))
	logger.Info("trigger cache rebuilt: %d positions, %d symbols", len(nextByID), len(nextBySymbol))
	return len(nextByID), nil
}

func withoutID(bucket []models.Position, id int64) []models.Position {
	next := make([]models.Position, 0, len(bucket))
	for _, p := range bucket {
		if p.ID == id {
			continue
		}
		next = append(next, p)
	}
	return next
}
