package quotes

import (
	"context"

	"risk_engine/internal/models"
	"risk_engine/internal/modules/quotes/service"

	"go.uber.org/fx"
)

// Module поднимает стример котировок: websocket + резервный поллер.
func Module() fx.Option {
	return fx.Module("quotes",
		fx.Provide(
			service.NewClient,
			func() chan models.Quote {
				// общий буфер тиков для движка
				return make(chan models.Quote, 1024)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, c *service.Client, out chan models.Quote, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go c.Start(ctx, out)
					go c.RunPoller(ctx, out)
					return nil
				},
			})
		}),
	)
}
