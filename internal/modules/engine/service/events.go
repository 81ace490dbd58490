package service

import (
	"context"

	"risk_engine/internal/models"

	"github.com/shopspring/decimal"
)

// Events — исходящие события движка. Потребители — нотификации и аудит.
type Events interface {
	PositionClosed(ctx context.Context, id int64, reason models.CloseReason, exitPrice float64)
	MarginCallTriggered(ctx context.Context, contestID int64, marginLevelPct decimal.Decimal)
}
