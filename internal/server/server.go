package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/closegate-platform/internal/audit"
	"github.com/xela07ax/closegate-platform/internal/engine"
	"github.com/xela07ax/closegate-platform/internal/infra"
	"github.com/xela07ax/closegate-platform/internal/infra/auth"
	"github.com/xela07ax/closegate-platform/internal/notify"
	"github.com/xela07ax/closegate-platform/internal/repository/postgres"
)

// TrailFetcher отдает след аудита для read-only API.
type TrailFetcher interface {
	FetchTrail(ctx context.Context, q postgres.TrailQuery) ([]audit.Entry, error)
}

// GateServer — HTTP-поверхность шлюза закрытия периода. Оценка переходов
// и диагностические прогоны за RS256-периметром, health и metrics открыты.
type GateServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	validator auth.TokenValidator

	core     *engine.Core
	bus      *notify.Bus
	trail    TrailFetcher
	registry *prometheus.Registry
}

// NewGateServer инициализирует сервер шлюза со всеми зависимостями
func NewGateServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	core *engine.Core,
	bus *notify.Bus,
	trail TrailFetcher,
	registry *prometheus.Registry,
) *GateServer {
	s := &GateServer{
		router:    chi.NewRouter(),
		logger:    logger.Named("gate-api"),
		cfg:       cfg,
		validator: validator,
		core:      core,
		bus:       bus,
		trail:     trail,
		registry:  registry,
	}

	s.routes()
	return s
}

func (s *GateServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.validator, s.logger))

		// Оценка перехода workflow (Submit/Approve/Publish/Reject)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope("close.workflow"))
			r.Post("/v1/transitions/evaluate", s.handleEvaluate)
		})

		// Диагностические прогоны вне перехода (ad-hoc запуск контролером)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope("close.diagnostics"))
			r.Post("/v1/quality/run", s.handleQualityRun)
			r.Post("/v1/icmatch/run", s.handleICMatchRun)
			r.Post("/v1/variance/run", s.handleVarianceRun)
		})

		// Аудит и Логи (Observability)
		r.Get("/v1/audit", s.handleAuditTrail)
	})
}

// ServeHTTP позволяет использовать GateServer как стандартный http.Handler
func (s *GateServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
