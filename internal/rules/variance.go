package rules

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/xela07ax/closegate-platform/internal/cube"
	"github.com/xela07ax/closegate-platform/internal/domain"
)

// Пороги существенности отклонения от бюджета.
const (
	VariancePctThreshold = 10.0     // процентов
	VarianceAmtThreshold = 100000.0 // в валюте отчета
)

// Variance считает абсолютное и процентное отклонение факта от бюджета.
// При нулевом бюджете процент не определен: ненулевой факт трактуется
// как 100% отклонение со знаком факта.
func Variance(actual, budget float64) (amt, pct float64) {
	amt = actual - budget
	switch {
	case budget != 0:
		pct = amt / math.Abs(budget) * 100
	case actual > 0:
		pct = 100
	case actual < 0:
		pct = -100
	}
	return amt, pct
}

// Material — отклонение существенно по любому из двух порогов.
func Material(amt, pct float64) bool {
	return math.Abs(pct) >= VariancePctThreshold || math.Abs(amt) >= VarianceAmtThreshold
}

// Scanner сравнивает факт с бюджетом по фиксированному P&L-списку
// и строит алерты по существенным отклонениям.
type Scanner struct {
	repo   cube.Repository
	logger *zap.Logger
}

func NewScanner(repo cube.Repository, logger *zap.Logger) *Scanner {
	return &Scanner{
		repo:   repo,
		logger: logger.Named("variance-scan"),
	}
}

func (s *Scanner) Run(ctx context.Context, pov domain.POV) ([]domain.BudgetAlert, error) {
	budgetPOV := pov.WithScenario(domain.ScenarioBudget)

	var alerts []domain.BudgetAlert
	for _, acct := range domain.VarianceAccounts {
		actual, err := cube.Value(ctx, s.repo, pov.WithAccount(acct.Code))
		if err != nil {
			s.logger.Warn("variance scan: account skipped, actual unreadable",
				zap.String("account", acct.Code), zap.Error(err))
			continue
		}
		budget, err := cube.Value(ctx, s.repo, budgetPOV.WithAccount(acct.Code))
		if err != nil {
			s.logger.Warn("variance scan: account skipped, budget unreadable",
				zap.String("account", acct.Code), zap.Error(err))
			continue
		}

		// Пустая пара — нечего сравнивать
		if actual == 0 && budget == 0 {
			continue
		}

		amt, pct := Variance(actual, budget)
		if !Material(amt, pct) {
			continue
		}

		// Для expense-счетов факт ниже бюджета благоприятен, для revenue — выше
		favorable := amt > 0
		if acct.Expense {
			favorable = amt < 0
		}

		alerts = append(alerts, domain.BudgetAlert{
			Account:     acct.Code,
			AccountName: acct.Name,
			Actual:      actual,
			Budget:      budget,
			VarianceAmt: amt,
			VariancePct: pct,
			Favorable:   favorable,
		})
	}
	return alerts, ctx.Err()
}
