package service

import (
	"context"
	"time"

	"risk_engine/pkg/logger"
)

// ReadyGate — готовность сервиса (health state).
type ReadyGate interface {
	SetReady(v bool)
}

// Refresher — бутстрап кеша и периодический полный ресинк.
// Ресинк же и бэкап: позиция, чей claim молча протух из-за падения
// посреди закрытия, вернётся в кеш и снова станет видна эвалюатору.
type Refresher struct {
	cache    *Cache
	coord    *Coordinator
	ready    ReadyGate
	interval time.Duration
}

func NewRefresher(cache *Cache, coord *Coordinator, ready ReadyGate, interval time.Duration) *Refresher {
	return &Refresher{
		cache:    cache,
		coord:    coord,
		ready:    ready,
		interval: interval,
	}
}

// Initialize наполняет кеш до старта тикового пути — иначе потеряем
// позиции, открытые до рестарта процесса.
func (r *Refresher) Initialize(ctx context.Context) error {
	n, err := r.cache.RefreshAll(ctx)
	if err != nil {
		return err
	}
	if r.ready != nil {
		r.ready.SetReady(true)
	}
	logger.Info("trigger cache bootstrapped: %d positions", n)
	return nil
}

func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.cache.RefreshAll(ctx); err != nil {
				logger.Error("cache refresh failed: %v", err)
			}
			r.coord.PruneExpired()
		}
	}
}
