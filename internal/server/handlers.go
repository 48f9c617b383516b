package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/closegate-platform/internal/domain"
	"github.com/xela07ax/closegate-platform/internal/engine"
	"github.com/xela07ax/closegate-platform/internal/infra/auth"
	"github.com/xela07ax/closegate-platform/internal/repository/postgres"
)

// transitionRequest — тело POST /v1/transitions/evaluate.
// Инициатор берется из токена, а не из тела.
type transitionRequest struct {
	Transition string `json:"transition"`
	Scenario   string `json:"scenario"`
	Period     string `json:"period"`
	Entity     string `json:"entity"`
}

// povRequest — тело диагностических прогонов.
type povRequest struct {
	Scenario string `json:"scenario"`
	Period   string `json:"period"`
	Entity   string `json:"entity"`
}

func (p povRequest) pov() domain.POV {
	return domain.POV{Scenario: p.Scenario, Period: p.Period, Entity: p.Entity}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleEvaluate — оценка перехода workflow.
// Бизнес-отказ (allowed=false) — это штатный ответ 200, не ошибка HTTP.
// 422 зарезервирован за программными ошибками запроса, 500 — за инфраструктурой.
func (s *GateServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var body transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusUnprocessableEntity)
		return
	}

	kind, err := domain.ParseTransition(body.Transition)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	req := engine.SubmissionRequest{
		User:       auth.UserFromContext(r.Context()),
		POV:        domain.POV{Scenario: body.Scenario, Period: body.Period, Entity: body.Entity},
		Transition: kind,
		SessionID:  middleware.GetReqID(r.Context()),
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Engine.EvaluationTimeout)
	defer cancel()

	decision, events, err := s.core.EvaluateSubmission(ctx, req)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidRequest) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		s.logger.Error("transition evaluation failed", zap.Error(err))
		http.Error(w, "evaluation failed", http.StatusInternalServerError)
		return
	}

	// События уходят в шину до ответа: диспетчер уведомлений живет отдельно
	s.bus.Publish(ctx, events)
	writeJSON(w, http.StatusOK, decision)
}

// handleQualityRun — прогон правил качества данных без перехода.
func (s *GateServer) handleQualityRun(w http.ResponseWriter, r *http.Request) {
	var body povRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusUnprocessableEntity)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Engine.EvaluationTimeout)
	defer cancel()

	results, events, err := s.core.RunDataQualityChecks(ctx, auth.UserFromContext(r.Context()), body.pov())
	if err != nil {
		if errors.Is(err, engine.ErrInvalidRequest) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		s.logger.Error("data quality run failed", zap.Error(err))
		http.Error(w, "data quality run failed", http.StatusInternalServerError)
		return
	}

	s.bus.Publish(ctx, events)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":  results,
		"critical": domain.HasCritical(results),
	})
}

// handleICMatchRun — прогон межфирменной сверки без перехода.
func (s *GateServer) handleICMatchRun(w http.ResponseWriter, r *http.Request) {
	var body povRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusUnprocessableEntity)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Engine.EvaluationTimeout)
	defer cancel()

	mismatches, events, err := s.core.RunICMatch(ctx, auth.UserFromContext(r.Context()), body.pov())
	if err != nil {
		if errors.Is(err, engine.ErrInvalidRequest) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		s.logger.Error("ic match run failed", zap.Error(err))
		http.Error(w, "ic match run failed", http.StatusInternalServerError)
		return
	}

	s.bus.Publish(ctx, events)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mismatches": mismatches,
		"count":      len(mismatches),
	})
}

// handleVarianceRun — скан отклонений от бюджета без перехода.
func (s *GateServer) handleVarianceRun(w http.ResponseWriter, r *http.Request) {
	var body povRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusUnprocessableEntity)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Engine.EvaluationTimeout)
	defer cancel()

	alerts, events, err := s.core.RunVarianceScan(ctx, auth.UserFromContext(r.Context()), body.pov())
	if err != nil {
		if errors.Is(err, engine.ErrInvalidRequest) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		s.logger.Error("variance scan failed", zap.Error(err))
		http.Error(w, "variance scan failed", http.StatusInternalServerError)
		return
	}

	s.bus.Publish(ctx, events)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// handleAuditTrail возвращает след аудита с поддержкой фильтрации
// GET /v1/audit?entity=...&period=...&category=...&limit=...
func (s *GateServer) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	// Извлекаем фильтры из Query-параметров
	q := postgres.TrailQuery{
		Entity:   r.URL.Query().Get("entity"),
		Period:   r.URL.Query().Get("period"),
		Category: r.URL.Query().Get("category"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		q.Limit, _ = strconv.Atoi(raw)
	}

	entries, err := s.trail.FetchTrail(r.Context(), q)
	if err != nil {
		s.logger.Error("audit trail fetch failed", zap.Error(err))
		http.Error(w, "Failed to fetch audit trail", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}
