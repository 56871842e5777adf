package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"UTC"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
		// AdminIDs — пользователи, которым доступны служебные команды.
		AdminIDs []int64 `envconfig:"TG_ADMIN_IDS"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Catalog struct {
		Path string `envconfig:"CATALOG_PATH" default:"data/holidays.json"`
	} `envconfig:""`

	Billing struct {
		BaseURL       string `envconfig:"BILLING_BASE_URL"`
		WebhookSecret string `envconfig:"BILLING_WEBHOOK_SECRET"`
	} `envconfig:""`

	Queues struct {
		AMQPURL    string `envconfig:"AMQP_URL"`
		Engagement string `envconfig:"ENGAGEMENT_QUEUE_KEY" default:"engagement_events"`
	} `envconfig:""`

	Metrics struct {
		Addr string `envconfig:"METRICS_ADDR" default:":9090"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
