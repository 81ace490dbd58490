package service

import (
	"context"
	"sync"
	"time"

	"risk_engine/internal/models"
	"risk_engine/internal/positions"
	"risk_engine/pkg/logger"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
)

// PositionCloser — внешний durable-закрыватель. Обязан быть идемпотентным:
// повторное закрытие того же id возвращает ErrAlreadyClosed без
// повторных эффектов по леджеру.
type PositionCloser interface {
	Close(ctx context.Context, id int64, exitPrice float64, reason models.CloseReason) error
}

type closeJob struct {
	trigger Trigger
}

// Coordinator дедуплицирует конкурентные попытки закрытия одной позиции.
// claim ставится синхронно до любого I/O, поэтому второй триггер
// (другой тик или маржин-свип) увидит его и пропустит позицию.
// Сами закрытия обрабатывает один воркер — durable-стор не видит
// пересекающихся записей, которые могли бы толкаться на агрегатах конкурса.
type Coordinator struct {
	mu            sync.Mutex
	claims        map[int64]time.Time
	cooldownUntil map[int64]time.Time

	queue  chan closeJob
	closer PositionCloser
	cache  *Cache
	events Events

	positionCooldown time.Duration
	triggerCooldown  time.Duration

	now func() time.Time // подменяется в тестах
}

func NewCoordinator(
	closer PositionCloser,
	cache *Cache,
	events Events,
	queueSize int,
	positionCooldown, triggerCooldown time.Duration,
) *Coordinator {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Coordinator{
		claims:           make(map[int64]time.Time),
		cooldownUntil:    make(map[int64]time.Time),
		queue:            make(chan closeJob, queueSize),
		closer:           closer,
		cache:            cache,
		events:           events,
		positionCooldown: positionCooldown,
		triggerCooldown:  triggerCooldown,
		now:              time.Now,
	}
}

// TryClaim — атомарный check-and-set. false, если позиция уже
// захвачена или остывает после прошлого триггера.
func (c *Coordinator) TryClaim(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, claimed := c.claims[id]; claimed {
		return false
	}
	if until, ok := c.cooldownUntil[id]; ok {
		if now.Before(until) {
			return false
		}
		delete(c.cooldownUntil, id)
	}
	c.claims[id] = now
	return true
}

// Blocked — позиция под claim'ом либо в кулдауне. Читается на hot-path
// эвалюатора, поэтому без аллокаций.
func (c *Coordinator) Blocked(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, claimed := c.claims[id]; claimed {
		return true
	}
	if until, ok := c.cooldownUntil[id]; ok && c.now().Before(until) {
		return true
	}
	return false
}

func (c *Coordinator) Release(id int64) {
	c.mu.Lock()
	delete(c.claims, id)
	c.mu.Unlock()
}

// releaseAfter снимает claim и ставит кулдаун от текущего момента.
func (c *Coordinator) releaseAfter(id int64, cooldown time.Duration) {
	c.mu.Lock()
	delete(c.claims, id)
	c.cooldownUntil[id] = c.now().Add(cooldown)
	c.mu.Unlock()
}

// Dispatch захватывает позицию и ставит закрытие в очередь.
// Fire-and-forget с точки зрения тика: вернулись — тик свободен.
func (c *Coordinator) Dispatch(t Trigger) bool {
	if !c.TryClaim(t.Position.ID) {
		return false
	}

	select {
	case c.queue <- closeJob{trigger: t}:
		triggersRecognized.WithLabelValues(string(t.Reason)).Inc()
		return true
	default:
		// очередь забита — отпускаем через кулдаун, ретрай за бэкап-свипом
		c.releaseAfter(t.Position.ID, c.triggerCooldown)
		closeQueueDrops.Inc()
		logger.Warn("close queue full, dropped position %d (%s)", t.Position.ID, t.Reason)
		return false
	}
}

// Run — единственный воркер очереди закрытий.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-c.queue:
			c.process(ctx, job.trigger)
		}
	}
}

func (c *Coordinator) process(ctx context.Context, t Trigger) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "position_close")
	span.SetTag("position_id", t.Position.ID)
	span.SetTag("reason", string(t.Reason))
	defer span.Finish()

	started := time.Now()
	err := c.closer.Close(ctx, t.Position.ID, t.ExitPrice, t.Reason)
	closeLatency.Observe(time.Since(started).Seconds())

	switch {
	case err == nil:
		c.finishClosed(ctx, t)
		closesProcessed.WithLabelValues("closed").Inc()

	case errors.Is(err, positions.ErrAlreadyClosed):
		// другой путь успел раньше — это успех, не ошибка
		c.finishClosed(ctx, t)
		closesProcessed.WithLabelValues("already_closed").Inc()

	case errors.Is(err, positions.ErrNotFound):
		// кеш отстал от БД; позицию уберёт ближайший полный рефреш
		c.cache.Remove(t.Position.ID, t.Position.Symbol)
		c.releaseAfter(t.Position.ID, c.positionCooldown)
		closesProcessed.WithLabelValues("not_found").Inc()
		logger.Warn("position %d not found on close, cache was stale", t.Position.ID)

	case errors.Is(err, positions.ErrWriteConflict):
		// проиграли гонку другому инстансу — не ретраим с hot-path
		c.releaseAfter(t.Position.ID, c.triggerCooldown)
		closesProcessed.WithLabelValues("write_conflict").Inc()

	default:
		// transient: лог + кулдаун, ретрай достанется бэкап-свипу
		span.SetTag("error", true)
		c.releaseAfter(t.Position.ID, c.triggerCooldown)
		closesProcessed.WithLabelValues("error").Inc()
		logger.Error("close position %d failed: %v", t.Position.ID, err)
	}
}

func (c *Coordinator) finishClosed(ctx context.Context, t Trigger) {
	c.cache.Remove(t.Position.ID, t.Position.Symbol)
	c.releaseAfter(t.Position.ID, c.positionCooldown)
	if c.events != nil {
		c.events.PositionClosed(ctx, t.Position.ID, t.Reason, t.ExitPrice)
	}
}

// PruneExpired чистит протухшие кулдауны. Дёргается рефрешером,
// чтобы карта не росла бесконечно.
func (c *Coordinator) PruneExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, until := range c.cooldownUntil {
		if !now.Before(until) {
			delete(c.cooldownUntil, id)
		}
	}
}
