package notify

import (
	"context"

	"risk_engine/internal/models"
	"risk_engine/internal/modules/config"
	enginesvc "risk_engine/internal/modules/engine/service"
	"risk_engine/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

// EventFanout пишет события движка в аудит-лог (json) и в синк.
type EventFanout struct {
	sink Sink
}

func NewEventFanout(sink Sink) *EventFanout {
	return &EventFanout{sink: sink}
}

func (e *EventFanout) PositionClosed(_ context.Context, id int64, reason models.CloseReason, exitPrice float64) {
	payload, _ := sonic.MarshalString(map[string]any{
		"event":     "position_closed",
		"id":        id,
		"reason":    string(reason),
		"exitPrice": exitPrice,
	})
	logger.Info("%s", payload)
	e.sink.Sendf("🔒 position %d closed: %s @ %.6f", id, reason, exitPrice)
}

func (e *EventFanout) MarginCallTriggered(_ context.Context, contestID int64, marginLevelPct decimal.Decimal) {
	payload, _ := sonic.MarshalString(map[string]any{
		"event":              "margin_call_triggered",
		"contestId":          contestID,
		"marginLevelPercent": marginLevelPct.StringFixed(2),
	})
	logger.Info("%s", payload)
	e.sink.Sendf("📉 margin call: contest %d level %s%%", contestID, marginLevelPct.StringFixed(2))
}

// Module выбирает синк: телеграм, если задан токен, иначе stdout.
func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			func(cfg *config.Config) (Sink, error) {
				if cfg.Telegram.Token == "" {
					return NewStdout(), nil
				}
				tg, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
				if err != nil {
					return nil, err
				}
				return tg, nil
			},
			func(sink Sink) enginesvc.Events {
				return NewEventFanout(sink)
			},
		),
	)
}
