package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-holiday-bot/internal/adapters/catalogfile"
	"tg-holiday-bot/internal/adapters/repo"
	"tg-holiday-bot/internal/adapters/telegram"
	"tg-holiday-bot/internal/domain"
	"tg-holiday-bot/internal/infra/cache"
	"tg-holiday-bot/internal/infra/config"
	"tg-holiday-bot/internal/infra/db"
	"tg-holiday-bot/internal/infra/log"
	"tg-holiday-bot/internal/infra/metrics"
	"tg-holiday-bot/internal/infra/queue"
	"tg-holiday-bot/internal/usecase/catalog"
	"tg-holiday-bot/internal/usecase/entitlement"
	"tg-holiday-bot/internal/usecase/selection"
	"tg-holiday-bot/internal/usecase/streak"
	"tg-holiday-bot/internal/usecase/tenants"
)

// Серия и аналитика считают только первое событие дня в канале,
// остальные отбрасываются ключом в Redis.
const engagementDedupTTL = 48 * time.Hour

type noopScheduler struct{}

func (noopScheduler) Arm(string, domain.Destination) {}
func (noopScheduler) Disarm(string, int64)           {}

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.EnsureSchema(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось подготовить схему БД")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	redisCache := cache.NewRedis(redisClient)

	var engagementQueue domain.EngagementQueue
	if cfg.Queues.AMQPURL != "" {
		amqpQueue, err := queue.NewRabbitEngagementQueue(cfg.Queues.AMQPURL, cfg.Queues.Engagement)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: не удалось подключиться к rabbitmq")
		}
		defer amqpQueue.Close()
		engagementQueue = amqpQueue
	} else {
		engagementQueue = queue.NewRedisEngagementQueue(redisClient, cfg.Queues.Engagement)
	}

	catalogService, err := catalog.NewService(catalogfile.NewSource(cfg.Catalog.Path))
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось загрузить каталог")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось создать бота")
	}

	deliverer := telegram.NewDeliverer(botAPI, logger)
	entitlementService := entitlement.NewService(repoAdapter, repoAdapter, logger)
	streakEngine := streak.NewEngine(redisCache, deliverer, logger)
	tenantService := tenants.NewService(repoAdapter, catalogService, selection.NewService(), entitlementService, streakEngine, noopScheduler{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
		<-stop
		logger.Info().Msg("worker: остановка")
		cancel()
	}()

	metrics.StartServer(ctx, logger, cfg.Metrics.Addr)
	logger.Info().Msg("worker: запущен")

	for {
		event, err := engagementQueue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error().Err(err).Msg("worker: чтение очереди")
			time.Sleep(time.Second)
			continue
		}

		dedupKey := fmt.Sprintf("engagement:%s:%d:%s", event.TenantID, event.DestinationID, event.DayKey)
		err = redisCache.Once(dedupKey, engagementDedupTTL, func() error {
			return tenantService.OnEngagement(ctx, event)
		})
		if err != nil {
			logger.Error().Err(err).Str("tenant", event.TenantID).Str("day", event.DayKey).Msg("worker: обработка события")
		}
	}
}
