package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockwatch/internal/app"
	"github.com/vladislavdragonenkov/stockwatch/internal/config"
	"github.com/vladislavdragonenkov/stockwatch/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}
	if err := app.ConfigureLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.WithError(err).Fatal("не удалось настроить логирование")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	build := version.Current()
	log.WithFields(log.Fields{
		"http_addr": cfg.HTTPAddr,
		"grpc_addr": cfg.GRPCAddr,
		"sellers":   cfg.Sellers,
		"version":   build.Version,
		"commit":    build.Commit,
		"built_at":  build.Date,
	}).Info("запускаем stockwatch")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("stockwatch остановлен")
}
