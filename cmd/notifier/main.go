package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/closegate-platform/internal/audit"
	"github.com/xela07ax/closegate-platform/internal/domain"
	"github.com/xela07ax/closegate-platform/internal/infra"
	"github.com/xela07ax/closegate-platform/internal/notify"
	"github.com/xela07ax/closegate-platform/internal/repository/postgres"
	"github.com/xela07ax/closegate-platform/internal/store"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if cfg.Database.URL == "" {
		log.Fatal("database.url (DATABASE_URL) is required")
	}
	auditRepo := postgres.NewAuditRepo(cfg.Database.URL)
	defer auditRepo.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := auditRepo.Ping(pingCtx); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}
	pingCancel()

	// 3. Аудит доставок: тот же батч-воркер, что и у шлюза
	trail := audit.NewTrail(auditRepo, logger, cfg.Engine.AuditBufferSize, cfg.Engine.AuditFlushInterval)
	trail.Start()
	defer trail.Stop()

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := notify.NewMetrics(reg)

	// 4. Каналы доставки и диспетчер
	cfgStore := store.NewRedis(rdb, logger)
	email := notify.NewSMTPChannel(
		cfg.SMTP.Addr, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From,
		cfg.SMTP.Timeout, logger,
	)
	webhook := notify.NewWebhookChannel(cfg.Notifier.WebhookTimeout, logger)
	dispatcher := notify.NewDispatcher(
		cfgStore, email, webhook, trail, metrics, logger,
		cfg.Notifier.AttemptTimeout,
	)

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Подписка на шину событий шлюза
	bus := notify.NewBus(rdb, logger)
	go bus.Listen(appCtx, func(ev domain.NotificationEvent) {
		dispatcher.Dispatch(appCtx, ev)
	})

	// 6. Служебный HTTP: health и metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: mux,
	}

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Notifier started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-stop
	log.Print("Notifier stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server Shutdown Failed: %+v", err)
	}
	log.Print("Notifier exited properly")
}
