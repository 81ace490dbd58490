package service

import (
	"context"

	"risk_engine/internal/models"
)

// ContestPositionSource — открытые позиции конкурса.
type ContestPositionSource interface {
	OpenPositionsByContest(ctx context.Context, contestID int64) ([]models.Position, error)
}

// StopoutAll — дефолтная политика ликвидации: закрыть все открытые
// позиции конкурса. Продуктовые политики (частичная разгрузка, сортировка
// по убытку) подключаются вместо неё через интерфейс MarginEvaluator.
type StopoutAll struct {
	source ContestPositionSource
}

func NewStopoutAll(source ContestPositionSource) *StopoutAll {
	return &StopoutAll{source: source}
}

func (s *StopoutAll) PositionsToLiquidate(ctx context.Context, contestID int64) ([]models.Position, error) {
	return s.source.OpenPositionsByContest(ctx, contestID)
}
