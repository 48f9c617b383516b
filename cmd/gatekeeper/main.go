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
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xela07ax/closegate-platform/internal/audit"
	"github.com/xela07ax/closegate-platform/internal/cube"
	"github.com/xela07ax/closegate-platform/internal/engine"
	"github.com/xela07ax/closegate-platform/internal/infra"
	"github.com/xela07ax/closegate-platform/internal/infra/auth"
	"github.com/xela07ax/closegate-platform/internal/notify"
	"github.com/xela07ax/closegate-platform/internal/repository/postgres"
	"github.com/xela07ax/closegate-platform/internal/rules"
	"github.com/xela07ax/closegate-platform/internal/server"
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

	// Проверяем соединение с таймаутом
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := auditRepo.Ping(pingCtx); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}
	pingCancel()

	// 3. Источник данных куба: gRPC либо встроенный статический (dev-режим)
	var repo cube.Repository
	if cfg.Cube.Addr != "" {
		conn, err := grpc.Dial(cfg.Cube.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			log.Fatalf("failed to connect to cube service: %v", err)
		}
		defer conn.Close()
		repo = cube.NewGRPCReader(conn, cfg.Cube.Timeout)
	} else {
		logger.Warn("cube.addr is empty, using built-in static cube source")
		repo = cube.NewStatic()
	}

	// 4. Асинхронный аудит: батч-воркер поверх Postgres
	trail := audit.NewTrail(auditRepo, logger, cfg.Engine.AuditBufferSize, cfg.Engine.AuditFlushInterval)
	trail.Start()
	defer trail.Stop() // Дожимаем буфер при выходе

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// 5. Core (Сборка ядра шлюза)
	cfgStore := store.NewRedis(rdb, logger)
	matcher := rules.NewMatcher(repo, cfgStore, logger)
	scanner := rules.NewScanner(repo, logger)
	core := engine.NewCore(repo, cfgStore, matcher, scanner, trail, metrics, logger)
	bus := notify.NewBus(rdb, logger)

	// 6. Безопасность: RS256 валидатор по публичному ключу
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		log.Fatalf("failed to parse auth public key: %v", err)
	}
	validator := auth.NewBaseValidator(pubKey)

	// 7. HTTP Server
	gate := server.NewGateServer(cfg, logger, validator, core, bus, auditRepo, reg)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      gate,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Close Gate started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-stop // Ждем сигнал
	log.Print("Close Gate stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server Shutdown Failed: %+v", err)
	}
	log.Print("Close Gate exited properly")
}
