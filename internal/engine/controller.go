package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/closegate-platform/internal/audit"
	"github.com/xela07ax/closegate-platform/internal/cube"
	"github.com/xela07ax/closegate-platform/internal/domain"
	"github.com/xela07ax/closegate-platform/internal/rules"
	"github.com/xela07ax/closegate-platform/internal/store"
)

// ErrInvalidRequest — программная ошибка вызывающей стороны (ProgrammaticError):
// пустой пользователь, битый POV, неизвестный переход. Единственный класс,
// прерывающий оценку целиком; бизнес-отказ ошибкой не является.
var ErrInvalidRequest = errors.New("invalid submission request")

// SubmissionRequest — попытка перехода workflow, поступившая от движка закрытия.
type SubmissionRequest struct {
	User       string                `json:"user"`
	POV        domain.POV            `json:"pov"`
	Transition domain.TransitionKind `json:"transition"`
	SessionID  string                `json:"session_id,omitempty"`
}

// Core — ядро шлюза сабмита: собирает правила, матчер, скан отклонений и
// пять шлюзов в одну точку оценки, пишет каждый шаг в аудит и возвращает
// решение вместе со списком событий для диспетчера уведомлений.
type Core struct {
	repo    cube.Repository
	cfg     store.ConfigStore
	flags   *store.FlagLoader
	matcher *rules.Matcher
	scanner *rules.Scanner
	trail   audit.Logger
	metrics *Metrics
	logger  *zap.Logger
	machine string
}

func NewCore(
	repo cube.Repository,
	cfg store.ConfigStore,
	matcher *rules.Matcher,
	scanner *rules.Scanner,
	trail audit.Logger,
	metrics *Metrics,
	logger *zap.Logger,
) *Core {
	machine, _ := os.Hostname()
	return &Core{
		repo:    repo,
		cfg:     cfg,
		flags:   store.NewFlagLoader(cfg),
		matcher: matcher,
		scanner: scanner,
		trail:   trail,
		metrics: metrics,
		logger:  logger.Named("gate-core"),
		machine: machine,
	}
}

// newAuditContext снимает контекст исполнения один раз на запуск.
func (c *Core) newAuditContext(user, session string, pov domain.POV) domain.AuditContext {
	if session == "" {
		session = uuid.New().String()
	}
	return domain.AuditContext{
		User:      user,
		Timestamp: time.Now().UTC(),
		SessionID: session,
		Machine:   c.machine,
		Scenario:  pov.Scenario,
		Period:    pov.Period,
		Entity:    pov.Entity,
	}
}

func (c *Core) validate(user string, pov domain.POV) error {
	if user == "" {
		return fmt.Errorf("%w: empty user", ErrInvalidRequest)
	}
	if err := pov.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// EvaluateSubmission — точка входа шлюза. Вызывается движком workflow
// непосредственно перед фиксацией перехода. Все пять шлюзов оцениваются
// безусловно и конкурентно, без short-circuit: вызывающий получает полный
// набор отказов, а не первый попавшийся.
func (c *Core) EvaluateSubmission(ctx context.Context, req SubmissionRequest) (domain.Decision, []domain.NotificationEvent, error) {
	start := time.Now()

	// 1. Отсечение программных ошибок
	if err := c.validate(req.User, req.POV); err != nil {
		return domain.Decision{}, nil, err
	}
	if _, err := domain.ParseTransition(string(req.Transition)); err != nil {
		return domain.Decision{}, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	actx := c.newAuditContext(req.User, req.SessionID, req.POV)

	// 2. Один снимок внешних флагов на всю оценку
	flags := c.flags.Load(ctx, req.POV)
	in := gateInput{pov: req.POV, kind: req.Transition, flags: flags}

	// 3. Конкурентный прогон шлюзов. Слоты индексированы порядком объявления:
	// отчет не зависит от порядка завершения горутин.
	gates := c.gates()
	results := make([]*domain.GateCheckResult, len(gates))
	errs := make([]error, len(gates))

	var wg sync.WaitGroup
	for i, g := range gates {
		wg.Add(1)
		go func(i int, g namedGate) {
			defer wg.Done()
			res, err := g.fn(ctx, in)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = &res
		}(i, g)
	}
	wg.Wait()

	// 4. Отмена извне: частичные результаты все равно уходят в аудит
	evalErr := ctx.Err()
	for _, err := range errs {
		if err != nil && evalErr == nil {
			evalErr = err
		}
	}
	if evalErr != nil {
		c.auditGateResults(actx, results)
		e := audit.NewEntry(audit.CategoryGate, actx)
		e.Status = audit.StatusCanceled
		e.Add("transition", string(req.Transition))
		e.Add("error", evalErr.Error())
		e.DurationMs = time.Since(start).Milliseconds()
		c.trail.Log(e)
		c.observe(string(req.Transition), "canceled", start)
		return domain.Decision{}, nil, fmt.Errorf("evaluation canceled: %w", evalErr)
	}

	// 5. Слияние: Block тогда и только тогда, когда хотя бы один шлюз не прошел.
	// Причины — имя и объяснение каждого непрошедшего, в порядке оценки.
	var reasons []string
	for _, res := range results {
		if res != nil && !res.Passed {
			reasons = append(reasons, fmt.Sprintf("%s: %s", res.Gate, res.Reason))
			c.metrics.GateFailures.WithLabelValues(res.Gate).Inc()
		}
	}

	decision := domain.Allow()
	outcome := "allowed"
	status := audit.StatusAllowed
	if len(reasons) > 0 {
		decision = domain.Reject(reasons)
		outcome = "blocked"
		status = audit.StatusBlocked
	}

	// 6. Аудит: каждый шлюз отдельной записью, затем итог решения
	c.auditGateResults(actx, results)

	summary := audit.NewEntry(audit.CategoryGate, actx)
	summary.Status = status
	summary.Add("transition", string(req.Transition))
	summary.Add("gates_failed", fmt.Sprintf("%d", len(reasons)))
	if len(reasons) > 0 {
		summary.Add("reasons", strings.Join(reasons, "\n"))
	}
	// Видимость гонки устаревших флагов: когда какой флаг был прочитан
	summary.Add("flags_read_at", fmt.Sprintf("dq=%s ic=%s approval=%s",
		flags.DataQuality.ReadAt.Format(time.RFC3339Nano),
		flags.ICRecon.ReadAt.Format(time.RFC3339Nano),
		flags.ManagerApproval.ReadAt.Format(time.RFC3339Nano)))
	summary.DurationMs = time.Since(start).Milliseconds()
	c.trail.Log(summary)

	// 7. Разрешенный переход — это действие workflow, фиксируем отдельно
	if decision.Allowed {
		action := audit.NewEntry(audit.CategoryWorkflow, actx)
		action.Status = audit.StatusAllowed
		action.Add("transition", string(req.Transition))
		c.trail.Log(action)
	}

	c.observe(string(req.Transition), outcome, start)

	return decision, c.buildEvents(req, decision), nil
}

// buildEvents превращает решение в список событий для диспетчера.
// Рассылкой занимается отдельный, развязанный триггер: ядро событий
// не доставляет и о каналах ничего не знает.
func (c *Core) buildEvents(req SubmissionRequest, decision domain.Decision) []domain.NotificationEvent {
	if !decision.Allowed {
		return []domain.NotificationEvent{{
			Kind: domain.EventRejection,
			POV:  req.POV,
			Fields: map[string]string{
				"transition": string(req.Transition),
				"reasons":    strings.Join(decision.Reasons, "\n"),
			},
		}}
	}

	switch req.Transition {
	case domain.TransitionSubmit:
		return []domain.NotificationEvent{{
			Kind:   domain.EventSubmission,
			POV:    req.POV,
			Fields: map[string]string{"transition": string(req.Transition), "submitted_by": req.User},
		}}
	case domain.TransitionApprove, domain.TransitionPublish:
		return []domain.NotificationEvent{{
			Kind:   domain.EventApproval,
			POV:    req.POV,
			Fields: map[string]string{"transition": string(req.Transition), "approved_by": req.User},
		}}
	case domain.TransitionReject:
		return []domain.NotificationEvent{{
			Kind:   domain.EventRejection,
			POV:    req.POV,
			Fields: map[string]string{"transition": string(req.Transition), "rejected_by": req.User},
		}}
	default:
		// Промежуточные шаги (IC-сверка) уведомлений не порождают
		return nil
	}
}

func (c *Core) auditGateResults(actx domain.AuditContext, results []*domain.GateCheckResult) {
	for _, res := range results {
		if res == nil {
			continue
		}
		e := audit.NewEntry(audit.CategoryGate, actx)
		e.Status = audit.StatusPass
		if !res.Passed {
			e.Status = audit.StatusFailed
		}
		e.Add("gate", res.Gate)
		e.Add("reason", res.Reason)
		c.trail.Log(e)
	}
}

func (c *Core) observe(transition, outcome string, start time.Time) {
	c.metrics.EvaluationsTotal.WithLabelValues(transition, outcome).Inc()
	c.metrics.EvaluationDuration.WithLabelValues(transition, outcome).Observe(time.Since(start).Seconds())
	if p, ok := c.trail.(interface{ Pending() int }); ok {
		c.metrics.AuditBufferFill.Set(float64(p.Pending()))
	}
}

// RunDataQualityChecks прогоняет набор правил, пишет каждый результат в аудит,
// выставляет флаг качества данных за период и отдает событие о провале,
// когда есть хотя бы один Critical.
func (c *Core) RunDataQualityChecks(ctx context.Context, user string, pov domain.POV) ([]domain.ValidationResult, []domain.NotificationEvent, error) {
	if err := c.validate(user, pov); err != nil {
		return nil, nil, err
	}
	actx := c.newAuditContext(user, "", pov)

	results := rules.RunChecks(ctx, c.repo, pov)

	for _, r := range results {
		e := audit.NewEntry(audit.CategoryDataQuality, actx)
		e.Status = string(r.Severity)
		e.Add("rule", r.Rule)
		e.Add("message", r.Message)
		c.trail.Log(e)
		c.metrics.RuleResults.WithLabelValues(r.Rule, string(r.Severity)).Inc()
	}

	if err := ctx.Err(); err != nil {
		return results, nil, fmt.Errorf("data quality run canceled: %w", err)
	}

	// Итоговый флаг читает шлюз сабмита при следующей оценке
	flag := store.FlagPassed
	if domain.HasCritical(results) {
		flag = store.FlagFailed
	}
	if err := c.cfg.Set(ctx, store.DataQualityKey(pov.Entity, pov.Period), flag); err != nil {
		c.logger.Error("failed to persist data quality flag",
			zap.String("entity", pov.Entity),
			zap.String("period", pov.Period),
			zap.Error(err))
		e := audit.NewEntry(audit.CategorySystem, actx)
		e.Status = audit.StatusError
		e.Add("error", err.Error())
		c.trail.Log(e)
		return results, nil, fmt.Errorf("persist data quality flag: %w", err)
	}

	var events []domain.NotificationEvent
	if flag == store.FlagFailed {
		var failures []string
		for _, r := range results {
			if r.Severity == domain.SeverityCritical {
				failures = append(failures, fmt.Sprintf("%s: %s", r.Rule, r.Message))
			}
		}
		events = append(events, domain.NotificationEvent{
			Kind:   domain.EventDataQuality,
			POV:    pov,
			Fields: map[string]string{"failures": strings.Join(failures, "\n")},
		})
	}
	return results, events, nil
}

// RunICMatch сверяет интеркомпани-балансы и отдает событие с полным
// перечнем расхождений. Флаг icReconStatus он НЕ трогает: тот
// подтверждается человеком, а не расчетом.
func (c *Core) RunICMatch(ctx context.Context, user string, pov domain.POV) ([]domain.ICMismatch, []domain.NotificationEvent, error) {
	if err := c.validate(user, pov); err != nil {
		return nil, nil, err
	}
	actx := c.newAuditContext(user, "", pov)

	mismatches, err := c.matcher.Run(ctx, pov)
	if err != nil {
		e := audit.NewEntry(audit.CategoryICMatch, actx)
		e.Status = audit.StatusError
		e.Add("error", err.Error())
		c.trail.Log(e)
		return nil, nil, fmt.Errorf("ic match run: %w", err)
	}

	e := audit.NewEntry(audit.CategoryICMatch, actx)
	e.Add("mismatch_count", fmt.Sprintf("%d", len(mismatches)))
	if len(mismatches) == 0 {
		e.Status = audit.StatusPass
		e.Add("summary", "all intercompany pairs within tolerance")
	} else {
		e.Status = audit.StatusFailed
		e.Add("summary", rules.MismatchSummary(mismatches))
		c.metrics.ICMismatches.Add(float64(len(mismatches)))
	}
	c.trail.Log(e)

	if err := ctx.Err(); err != nil {
		return mismatches, nil, fmt.Errorf("ic match canceled: %w", err)
	}

	var events []domain.NotificationEvent
	if len(mismatches) > 0 {
		partners := make([]string, 0, len(mismatches))
		seen := make(map[string]struct{}, len(mismatches))
		for _, mm := range mismatches {
			if _, ok := seen[mm.Partner]; !ok {
				seen[mm.Partner] = struct{}{}
				partners = append(partners, mm.Partner)
			}
		}
		events = append(events, domain.NotificationEvent{
			Kind: domain.EventICMismatch,
			POV:  pov,
			Fields: map[string]string{
				"summary":  rules.MismatchSummary(mismatches),
				"partners": strings.Join(partners, ","),
			},
		})
	}
	return mismatches, events, nil
}

// RunVarianceScan строит бюджетные алерты по существенным отклонениям
// и отдает одно событие на прогон, когда они есть.
func (c *Core) RunVarianceScan(ctx context.Context, user string, pov domain.POV) ([]domain.BudgetAlert, []domain.NotificationEvent, error) {
	if err := c.validate(user, pov); err != nil {
		return nil, nil, err
	}
	actx := c.newAuditContext(user, "", pov)

	alerts, err := c.scanner.Run(ctx, pov)
	if err != nil {
		return alerts, nil, fmt.Errorf("variance scan canceled: %w", err)
	}

	e := audit.NewEntry(audit.CategoryVariance, actx)
	e.Add("alert_count", fmt.Sprintf("%d", len(alerts)))
	if len(alerts) == 0 {
		e.Status = audit.StatusPass
	} else {
		e.Status = audit.StatusFailed
		lines := make([]string, 0, len(alerts))
		for _, a := range alerts {
			lines = append(lines, a.String())
		}
		e.Add("alerts", strings.Join(lines, "; "))
	}
	c.trail.Log(e)

	var events []domain.NotificationEvent
	if len(alerts) > 0 {
		lines := make([]string, 0, len(alerts))
		for _, a := range alerts {
			lines = append(lines, a.String())
		}
		events = append(events, domain.NotificationEvent{
			Kind:   domain.EventBudgetAlert,
			POV:    pov,
			Fields: map[string]string{"alerts": strings.Join(lines, "\n")},
		})
	}
	return alerts, events, nil
}
