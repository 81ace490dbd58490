package main

import (
	"context"
	"log"

	"risk_engine/internal/modules/config"
	"risk_engine/internal/modules/engine"
	"risk_engine/internal/modules/health"
	"risk_engine/internal/modules/postgres"
	"risk_engine/internal/modules/quotes"
	"risk_engine/internal/notify"
	"risk_engine/pkg/logger"

	"go.uber.org/fx"
)

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		quotes.Module(),
		notify.Module(),
		engine.Module(),
		health.Module(),
	)
	app.Run()
}
