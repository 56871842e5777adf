package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tg-holiday-bot/internal/adapters/catalogfile"
	"tg-holiday-bot/internal/adapters/repo"
	"tg-holiday-bot/internal/adapters/telegram"
	"tg-holiday-bot/internal/infra/config"
	"tg-holiday-bot/internal/infra/db"
	"tg-holiday-bot/internal/infra/log"
	"tg-holiday-bot/internal/infra/metrics"
	"tg-holiday-bot/internal/usecase/catalog"
	"tg-holiday-bot/internal/usecase/entitlement"
	"tg-holiday-bot/internal/usecase/scheduler"
	"tg-holiday-bot/internal/usecase/selection"
)

// resyncInterval задаёт период пересинхронизации таймеров с БД: так
// процесс подхватывает каналы, настроенные через гейтвей.
const resyncInterval = 5 * time.Minute

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.EnsureSchema(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось подготовить схему БД")
	}

	catalogService, err := catalog.NewService(catalogfile.NewSource(cfg.Catalog.Path))
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось загрузить каталог")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliverer := telegram.NewDeliverer(botAPI, logger)
	entitlementService := entitlement.NewService(repoAdapter, repoAdapter, logger)
	registry := scheduler.NewRegistry(repoAdapter, catalogService, selection.NewService(), entitlementService, deliverer, logger)

	if err := registry.ArmAll(ctx); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось взвести таймеры")
	}

	metrics.StartServer(ctx, logger, cfg.Metrics.Addr)

	ticker := time.NewTicker(resyncInterval)
	defer ticker.Stop()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	for {
		select {
		case <-ticker.C:
			if err := registry.ArmAll(ctx); err != nil {
				logger.Error().Err(err).Msg("scheduler: пересинхронизация таймеров")
			}
		case <-stop:
			logger.Info().Msg("scheduler: остановка")
			return
		}
	}
}
