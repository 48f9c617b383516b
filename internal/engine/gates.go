package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xela07ax/closegate-platform/internal/cube"
	"github.com/xela07ax/closegate-platform/internal/domain"
	"github.com/xela07ax/closegate-platform/internal/rules"
	"github.com/xela07ax/closegate-platform/internal/store"
)

// gateInput — снимок входных данных одной оценки. Флаги сняты один раз
// до запуска шлюзов, поэтому все шлюзы видят одно и то же состояние.
type gateInput struct {
	pov   domain.POV
	kind  domain.TransitionKind
	flags store.WorkflowFlags
}

// gateFunc возвращает ошибку только при отмене оценки. Сбои выборки и
// стора шлюз разруливает сам по своей документированной мягкой политике.
type gateFunc func(ctx context.Context, in gateInput) (domain.GateCheckResult, error)

type namedGate struct {
	name string
	fn   gateFunc
}

// gates — пять шлюзов в документированном порядке отчета.
func (c *Core) gates() []namedGate {
	return []namedGate{
		{domain.GateDataQuality, c.gateDataQuality},
		{domain.GateRequiredAccts, c.gateRequiredAccounts},
		{domain.GateICRecon, c.gateICReconciliation},
		{domain.GateApproval, c.gateManagerApproval},
		{domain.GateCommentary, c.gateVarianceCommentary},
	}
}

// canceled отличает отмену оценки от обычного сбоя выборки.
func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// gateDataQuality читает флаг, выставленный предыдущим прогоном проверок
// качества. Асимметрия намеренная и обязана сохраняться: сбой стора — это
// fail-open с предупреждением, невыставленный флаг — fail-closed.
func (c *Core) gateDataQuality(ctx context.Context, in gateInput) (domain.GateCheckResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.GateCheckResult{}, err
	}

	flag := in.flags.DataQuality
	if flag.Err != nil {
		return domain.GateCheckResult{
			Gate:   domain.GateDataQuality,
			Passed: true,
			Reason: fmt.Sprintf("warning: data quality status unreadable (%v), gate passed open", flag.Err),
		}, nil
	}
	if !flag.Present || flag.Value != store.FlagPassed {
		return domain.GateCheckResult{
			Gate:   domain.GateDataQuality,
			Passed: false,
			Reason: fmt.Sprintf("data quality checks have not passed for %s %s: run data quality validation before submitting",
				in.pov.Entity, in.pov.Period),
		}, nil
	}
	return domain.GateCheckResult{Gate: domain.GateDataQuality, Passed: true, Reason: "data quality passed"}, nil
}

// gateRequiredAccounts независимо перепроверяет тот же список счетов,
// что и правило валидации, против нулевых значений.
func (c *Core) gateRequiredAccounts(ctx context.Context, in gateInput) (domain.GateCheckResult, error) {
	var missing []string
	for _, acct := range domain.RequiredAccounts {
		v, err := cube.Value(ctx, c.repo, in.pov.WithAccount(acct))
		if err != nil {
			if canceled(err) {
				return domain.GateCheckResult{}, err
			}
			// Самая мягкая интерпретация: нечитаемый счет не блокирует
			return domain.GateCheckResult{
				Gate:   domain.GateRequiredAccts,
				Passed: true,
				Reason: fmt.Sprintf("warning: %s unreadable (%v), gate passed open", acct, err),
			}, nil
		}
		if v == 0 {
			missing = append(missing, acct)
		}
	}

	if len(missing) > 0 {
		return domain.GateCheckResult{
			Gate:   domain.GateRequiredAccts,
			Passed: false,
			Reason: "required accounts have no data: " + strings.Join(missing, ", "),
		}, nil
	}
	return domain.GateCheckResult{Gate: domain.GateRequiredAccts, Passed: true, Reason: "required accounts populated"}, nil
}

// gateICReconciliation проверяет подтвержденный человеком статус сверки,
// а не пересчитанный список расхождений. Оценивается только для сабмита
// и шага IC-сверки; без IC-активности проходит автоматически.
func (c *Core) gateICReconciliation(ctx context.Context, in gateInput) (domain.GateCheckResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.GateCheckResult{}, err
	}

	if in.kind != domain.TransitionSubmit && in.kind != domain.TransitionICRecon {
		return domain.GateCheckResult{
			Gate:   domain.GateICRecon,
			Passed: true,
			Reason: "not required for this transition",
		}, nil
	}

	// 1. Есть ли вообще IC-активность
	recv, errR := cube.Value(ctx, c.repo, in.pov.WithAccount(domain.AcctICReceivable))
	payb, errP := cube.Value(ctx, c.repo, in.pov.WithAccount(domain.AcctICPayable))
	if canceled(errR) {
		return domain.GateCheckResult{}, errR
	}
	if canceled(errP) {
		return domain.GateCheckResult{}, errP
	}
	if errR != nil || errP != nil {
		return domain.GateCheckResult{
			Gate:   domain.GateICRecon,
			Passed: true,
			Reason: "warning: intercompany activity unreadable, gate passed open",
		}, nil
	}
	if recv == 0 && payb == 0 {
		return domain.GateCheckResult{Gate: domain.GateICRecon, Passed: true, Reason: "no intercompany activity"}, nil
	}

	// 2. Активность есть — требуем подтвержденный флаг сверки
	flag := in.flags.ICRecon
	if flag.Err != nil {
		return domain.GateCheckResult{
			Gate:   domain.GateICRecon,
			Passed: true,
			Reason: fmt.Sprintf("warning: reconciliation status unreadable (%v), gate passed open", flag.Err),
		}, nil
	}
	if !flag.Present || flag.Value != store.FlagReconciled {
		return domain.GateCheckResult{
			Gate:   domain.GateICRecon,
			Passed: false,
			Reason: fmt.Sprintf("intercompany balances not reconciled for %s %s: confirm reconciliation before submitting",
				in.pov.Entity, in.pov.Period),
		}, nil
	}
	return domain.GateCheckResult{Gate: domain.GateICRecon, Passed: true, Reason: "reconciliation confirmed"}, nil
}

// gateManagerApproval требует внешнего одобрения для всего, кроме факта.
func (c *Core) gateManagerApproval(ctx context.Context, in gateInput) (domain.GateCheckResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.GateCheckResult{}, err
	}

	if in.pov.Scenario == domain.ScenarioActual {
		return domain.GateCheckResult{
			Gate:   domain.GateApproval,
			Passed: true,
			Reason: "not required for Actual scenario",
		}, nil
	}

	flag := in.flags.ManagerApproval
	if flag.Err != nil {
		return domain.GateCheckResult{
			Gate:   domain.GateApproval,
			Passed: true,
			Reason: fmt.Sprintf("warning: approval status unreadable (%v), gate passed open", flag.Err),
		}, nil
	}
	if !flag.Present || flag.Value != store.FlagApproved {
		return domain.GateCheckResult{
			Gate:   domain.GateApproval,
			Passed: false,
			Reason: fmt.Sprintf("manager approval required for scenario %s before submission", in.pov.Scenario),
		}, nil
	}
	return domain.GateCheckResult{Gate: domain.GateApproval, Passed: true, Reason: "manager approval granted"}, nil
}

// gateVarianceCommentary: каждое существенное отклонение P&L-счета от
// бюджета обязано иметь комментарий, ключованный (entity, account, period).
func (c *Core) gateVarianceCommentary(ctx context.Context, in gateInput) (domain.GateCheckResult, error) {
	budgetPOV := in.pov.WithScenario(domain.ScenarioBudget)

	var missing []string
	for _, acct := range domain.VarianceAccounts {
		actual, errA := cube.Value(ctx, c.repo, in.pov.WithAccount(acct.Code))
		budget, errB := cube.Value(ctx, c.repo, budgetPOV.WithAccount(acct.Code))
		if canceled(errA) {
			return domain.GateCheckResult{}, errA
		}
		if canceled(errB) {
			return domain.GateCheckResult{}, errB
		}
		if errA != nil || errB != nil {
			// Нечитаемый счет не считается существенным отклонением
			continue
		}
		if actual == 0 && budget == 0 {
			continue
		}

		amt, pct := rules.Variance(actual, budget)
		if !rules.Material(amt, pct) {
			continue
		}

		_, err := c.cfg.Get(ctx, store.CommentaryKey(in.pov.Entity, acct.Code, in.pov.Period))
		switch {
		case err == nil:
			// Комментарий есть
		case errors.Is(err, store.ErrAbsent):
			missing = append(missing, fmt.Sprintf("%s (variance %.2f / %.1f%%)", acct.Name, amt, pct))
		case canceled(err):
			return domain.GateCheckResult{}, err
		default:
			// Сбой стора: считаем прокомментированным (pass-open)
		}
	}

	if len(missing) > 0 {
		return domain.GateCheckResult{
			Gate:   domain.GateCommentary,
			Passed: false,
			Reason: "material variances lack commentary: " + strings.Join(missing, "; "),
		}, nil
	}
	return domain.GateCheckResult{Gate: domain.GateCommentary, Passed: true, Reason: "material variances commented"}, nil
}
