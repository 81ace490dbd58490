package engine

import (
	"context"

	"risk_engine/internal/models"
	"risk_engine/internal/modules/config"
	"risk_engine/internal/modules/engine/service"
	healthsvc "risk_engine/internal/modules/health/service"
	"risk_engine/internal/positions"
	"risk_engine/pkg/db"
	"risk_engine/pkg/tracing"

	"go.uber.org/fx"
)

// Module собирает движок принудительного закрытия: кеш триггеров,
// эвалюатор тиков, координатор закрытий, маржин-свип и рефрешер.
func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(
			func(tm *db.PgTxManager) *positions.Store {
				return positions.NewStore(tm)
			},
			func(store *positions.Store, cfg *config.Config) *service.Cache {
				return service.NewCache(store, cfg.Engine.CacheRefreshInterval)
			},
			service.NewLastQuotes,
			func(store *positions.Store, cache *service.Cache, ev service.Events, cfg *config.Config) *service.Coordinator {
				return service.NewCoordinator(
					store,
					cache,
					ev,
					cfg.Engine.CloseQueueSize,
					cfg.Engine.PositionCooldown,
					cfg.Engine.TriggerCooldown,
				)
			},
			service.NewEvaluator,
			func(store *positions.Store) service.MarginEvaluator {
				return service.NewStopoutAll(store)
			},
			func(
				store *positions.Store,
				eval service.MarginEvaluator,
				coord *service.Coordinator,
				quotes *service.LastQuotes,
				ev service.Events,
				cfg *config.Config,
			) *service.Sweeper {
				return service.NewSweeper(
					store, eval, coord, quotes, ev,
					cfg.Engine.MarginCheckInterval, cfg.Engine.MarginSubChecks,
				)
			},
			func(cache *service.Cache, coord *service.Coordinator, state *healthsvc.State, cfg *config.Config) *service.Refresher {
				return service.NewRefresher(cache, coord, state, cfg.Engine.CacheRefreshInterval)
			},
		),
		fx.Invoke(initTracing),
		fx.Invoke(run),
	)
}

func initTracing(lc fx.Lifecycle, cfg *config.Config) {
	if cfg.Jaeger.Host == "" {
		return
	}
	var closeTracer func()
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			_, closer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				return err
			}
			closeTracer = closer
			return nil
		},
		OnStop: func(_ context.Context) error {
			if closeTracer != nil {
				closeTracer()
			}
			return nil
		},
	})
}

func run(
	lc fx.Lifecycle,
	ctx context.Context,
	ticks chan models.Quote,
	evaluator *service.Evaluator,
	coord *service.Coordinator,
	sweeper *service.Sweeper,
	refresher *service.Refresher,
	lastQuotes *service.LastQuotes,
	state *healthsvc.State,
) {
	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			// кеш прогревается до запуска тикового пути, иначе позиции,
			// открытые до рестарта, останутся без присмотра
			if err := refresher.Initialize(startCtx); err != nil {
				return err
			}

			go coord.Run(ctx)
			go sweeper.Run(ctx)
			go refresher.Run(ctx)

			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case q := <-ticks:
						state.TouchTick(q.At)
						lastQuotes.Set(q)
						for _, t := range evaluator.OnTick(q) {
							coord.Dispatch(t)
						}
					}
				}
			}()
			return nil
		},
	})
}
