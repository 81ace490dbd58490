package service

import (
	"time"

	"risk_engine/internal/models"
)

// Trigger — распознанное условие принудительного закрытия.
type Trigger struct {
	Position  models.Position
	ExitPrice float64
	Reason    models.CloseReason
}

// Evaluator — чистая оценка тика против бакета символа.
// Никакого I/O, сложность O(позиций по символу).
type Evaluator struct {
	cache *Cache
	coord *Coordinator
}

func NewEvaluator(cache *Cache, coord *Coordinator) *Evaluator {
	return &Evaluator{cache: cache, coord: coord}
}

// OnTick возвращает позиции, по которым тик пробил TP или SL.
// SL проверяется первым: при гэпе, пробившем оба уровня за один тик,
// побеждает стоп (детерминированный tie-break, не бизнес-правило).
func (e *Evaluator) OnTick(q models.Quote) []Trigger {
	started := time.Now()
	bucket := e.cache.PositionsFor(q.Symbol)
	if len(bucket) == 0 {
		return nil
	}

	var out []Trigger
	for _, p := range bucket {
		if e.coord.Blocked(p.ID) {
			continue
		}

		exit := q.ExitPrice(p.Side)
		if exit <= 0 {
			continue
		}

		if reason, ok := match(p, exit); ok {
			out = append(out, Trigger{Position: p, ExitPrice: exit, Reason: reason})
		}
	}

	tickEvalLatency.Observe(float64(time.Since(started).Microseconds()) / 1000.0)
	ticksEvaluated.WithLabelValues(q.Symbol).Inc()
	return out
}

func match(p models.Position, exit float64) (models.CloseReason, bool) {
	long := p.Side == models.SideLong

	if p.StopLoss != nil {
		if long && exit <= *p.StopLoss {
			return models.ReasonStopLoss, true
		}
		if !long && exit >= *p.StopLoss {
			return models.ReasonStopLoss, true
		}
	}

	if p.TakeProfit != nil {
		if long && exit >= *p.TakeProfit {
			return models.ReasonTakeProfit, true
		}
		if !long && exit <= *p.TakeProfit {
			return models.ReasonTakeProfit, true
		}
	}

	return "", false
}
