package service

import (
	"context"
	"time"

	"risk_engine/internal/models"
	"risk_engine/pkg/logger"
)

// MarginSource — чтение конкурсов и их маржинальных агрегатов.
type MarginSource interface {
	ActiveContests(ctx context.Context) ([]models.Contest, error)
	ContestMarginInputs(ctx context.Context, contestID int64) (models.MarginSnapshot, error)
}

// MarginEvaluator решает, какие позиции закрывать при маржин-колле.
// Политика ликвидации — внешняя; движок даёт только агрегатный сигнал
// и общий координатор.
type MarginEvaluator interface {
	PositionsToLiquidate(ctx context.Context, contestID int64) ([]models.Position, error)
}

// Sweeper — периодическая проверка уровня маржи по активным конкурсам.
// Триггеры уходят в тот же Coordinator, что и тиковый путь, поэтому
// claim/cooldown общие и двойное закрытие исключено независимо от того,
// какой путь выиграл гонку.
type Sweeper struct {
	source MarginSource
	eval   MarginEvaluator
	coord  *Coordinator
	quotes *LastQuotes
	events Events

	interval  time.Duration
	subChecks int
}

func NewSweeper(
	source MarginSource,
	eval MarginEvaluator,
	coord *Coordinator,
	quotes *LastQuotes,
	events Events,
	interval time.Duration,
	subChecks int,
) *Sweeper {
	if subChecks < 1 {
		subChecks = 1
	}
	return &Sweeper{
		source:    source,
		eval:      eval,
		coord:     coord,
		quotes:    quotes,
		events:    events,
		interval:  interval,
		subChecks: subChecks,
	}
}

// Run гоняет Sweep с шагом interval/subChecks — так настроенная
// периодичность выдерживается даже при крупном окне планировщика.
func (s *Sweeper) Run(ctx context.Context) {
	step := s.interval / time.Duration(s.subChecks)
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep возвращает количество поставленных в очередь ликвидаций по конкурсам.
// Ошибка одного конкурса логируется и не прерывает проход по остальным.
func (s *Sweeper) Sweep(ctx context.Context) map[int64]int {
	marginSweeps.Inc()

	contests, err := s.source.ActiveContests(ctx)
	if err != nil {
		logger.Error("margin sweep: list contests: %v", err)
		return nil
	}

	out := make(map[int64]int, len(contests))
	for _, contest := range contests {
		n, err := s.sweepContest(ctx, contest)
		if err != nil {
			logger.Error("margin sweep: contest %d: %v", contest.ID, err)
			continue
		}
		out[contest.ID] = n
	}
	return out
}

func (s *Sweeper) sweepContest(ctx context.Context, contest models.Contest) (int, error) {
	snap, err := s.source.ContestMarginInputs(ctx, contest.ID)
	if err != nil {
		return 0, err
	}

	if !snap.BreachesThreshold(contest.MarginCallThresholdPct) {
		return 0, nil
	}

	level := snap.MarginLevelPercent()
	marginCalls.Inc()
	if s.events != nil {
		s.events.MarginCallTriggered(ctx, contest.ID, level)
	}
	logger.Warn("margin call: contest %d level %s%% <= %s%%",
		contest.ID, level.StringFixed(2), contest.MarginCallThresholdPct.StringFixed(2))

	toClose, err := s.eval.PositionsToLiquidate(ctx, contest.ID)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, p := range toClose {
		exit := s.liquidationPrice(p)
		if s.coord.Dispatch(Trigger{Position: p, ExitPrice: exit, Reason: models.ReasonMarginCall}) {
			dispatched++
		}
	}
	return dispatched, nil
}

// liquidationPrice — цена выхода по последней котировке символа.
// Котировки ещё нет (холодный старт) — закрываем по цене входа,
// P&L посчитает durable-стор.
func (s *Sweeper) liquidationPrice(p models.Position) float64 {
	if q, ok := s.quotes.Get(p.Symbol); ok {
		return q.ExitPrice(p.Side)
	}
	return p.EntryPrice
}
