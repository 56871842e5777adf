package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	DeliverySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "delivery_seconds",
		Help:    "Время доставки ежедневного поста",
		Buckets: prometheus.DefBuckets,
	})
	DeliveryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_total",
		Help: "Количество доставок ежедневного поста",
	}, []string{"status"})
	DestinationsPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "destinations_pruned_total",
		Help: "Каналы, удалённые после потери доступа",
	})
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "commands_total",
		Help: "Количество обработанных команд",
	}, []string{"command"})
	EngagementEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engagement_events_total",
		Help: "Обработанные события вовлечённости",
	})
	TrialsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trials_started_total",
		Help: "Количество активированных пробных периодов",
	})
	PostsByTenant = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_by_tenant_total",
		Help: "Количество постов по тенантам",
	}, []string{"tenant_id"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		DeliverySeconds,
		DeliveryTotal,
		DestinationsPruned,
		CommandsTotal,
		EngagementEventsTotal,
		TrialsStartedTotal,
		PostsByTenant,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveDelivery записывает длительность и статус доставки поста.
func ObserveDelivery(start time.Time, err error) {
	DeliverySeconds.Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	DeliveryTotal.WithLabelValues(status).Inc()
}

// IncDestinationPruned увеличивает счётчик удалённых каналов.
func IncDestinationPruned() {
	DestinationsPruned.Inc()
}

// IncCommand увеличивает счётчик обработанных команд.
func IncCommand(command string) {
	if command == "" {
		command = "unknown"
	}
	CommandsTotal.WithLabelValues(command).Inc()
}

// IncEngagement увеличивает счётчик событий вовлечённости.
func IncEngagement() {
	EngagementEventsTotal.Inc()
}

// IncTrialStarted увеличивает счётчик активированных пробных периодов.
func IncTrialStarted() {
	TrialsStartedTotal.Inc()
}

// IncPostForTenant увеличивает счётчик постов тенанта.
func IncPostForTenant(tenantID string) {
	PostsByTenant.WithLabelValues(tenantID).Inc()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
