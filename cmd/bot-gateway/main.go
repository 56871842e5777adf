package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"tg-holiday-bot/internal/adapters/billingclient"
	"tg-holiday-bot/internal/adapters/bot"
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

// Таймеры доставки живут в процессе scheduler и пересинхронизируются
// из БД, поэтому гейтвею достаточно no-op реализации.
type noopScheduler struct{}

func (noopScheduler) Arm(string, domain.Destination) {}
func (noopScheduler) Disarm(string, int64)           {}

type billingWebhookEvent struct {
	TenantID string `json:"tenant_id"`
	Event    string `json:"event"`
}

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.EnsureSchema(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("не удалось подготовить схему БД")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	redisCache := cache.NewRedis(redisClient)

	var engagementQueue domain.EngagementQueue
	if cfg.Queues.AMQPURL != "" {
		amqpQueue, err := queue.NewRabbitEngagementQueue(cfg.Queues.AMQPURL, cfg.Queues.Engagement)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к rabbitmq")
		}
		defer amqpQueue.Close()
		engagementQueue = amqpQueue
	} else {
		engagementQueue = queue.NewRedisEngagementQueue(redisClient, cfg.Queues.Engagement)
	}

	catalogService, err := catalog.NewService(catalogfile.NewSource(cfg.Catalog.Path))
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось загрузить каталог праздников")
	}
	logger.Info().Int("holidays", catalogService.Size()).Msg("каталог загружен")

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}

	billingClient, err := billingclient.New(cfg.Billing.BaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать клиента биллинга")
	}

	if cfg.Telegram.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL + "/bot/webhook")
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось собрать конфиг вебхука")
		}
		if _, err := botAPI.Request(wh); err != nil {
			logger.Fatal().Err(err).Msg("не удалось зарегистрировать вебхук")
		}
	}

	deliverer := telegram.NewDeliverer(botAPI, logger)
	selector := selection.NewService()
	entitlementService := entitlement.NewService(repoAdapter, repoAdapter, logger)
	streakEngine := streak.NewEngine(redisCache, deliverer, logger)
	tenantService := tenants.NewService(repoAdapter, catalogService, selector, entitlementService, streakEngine, noopScheduler{}, logger)

	h := bot.NewHandler(botAPI, logger, tenantService, catalogService, entitlementService, billingClient, engagementQueue, repoAdapter, cfg.Telegram.AdminIDs)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/billing/webhook", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Billing.WebhookSecret == "" || r.Header.Get("X-Webhook-Secret") != cfg.Billing.WebhookSecret {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var event billingWebhookEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch event.Event {
		case "payment_succeeded", "subscription_renewed":
			err = entitlementService.Grant(r.Context(), event.TenantID)
		case "subscription_cancelled", "refund_issued":
			err = entitlementService.Revoke(r.Context(), event.TenantID)
		default:
			http.Error(w, "unknown event", http.StatusBadRequest)
			return
		}
		if err != nil {
			logger.Error().Err(err).Str("tenant", event.TenantID).Str("event", event.Event).Msg("billing webhook")
			http.Error(w, "internal", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	go func() {
		logger.Info().Msg("бот-гейтвей запущен")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка бота")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
