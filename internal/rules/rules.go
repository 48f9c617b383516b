package rules

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/xela07ax/closegate-platform/internal/cube"
	"github.com/xela07ax/closegate-platform/internal/domain"
)

// Допуски правил. Именованные константы на правило, не глобальные.
const (
	// TrialBalanceTolerance — дебет и кредит равны с точностью до цента
	TrialBalanceTolerance = 0.01
	// BalanceSheetTolerance — уравнение баланса с запасом на округление трансляции
	BalanceSheetTolerance = 1.0
	// CashFloor — остаток денежных средств ниже этой отметки считается подозрительным
	CashFloor = -1000000.0
)

// Rule — чистый валидатор одной проверки качества данных.
// Сбой выборки он возвращает ошибкой: политику «сбой -> Warning» применяет
// раннер, так она видна и тестируема на каждом правиле отдельно.
type Rule struct {
	Name string
	Run  func(ctx context.Context, repo cube.Repository, pov domain.POV) (domain.ValidationResult, error)
}

// Checks — фиксированный набор правил. Порядок объявления = порядок отчета.
func Checks() []Rule {
	return []Rule{
		{Name: domain.RuleTrialBalance, Run: checkTrialBalance},
		{Name: domain.RuleBalanceSheet, Run: checkBalanceSheet},
		{Name: domain.RuleRequiredAccts, Run: checkRequiredAccounts},
		{Name: domain.RuleInventorySign, Run: checkInventorySign},
		{Name: domain.RuleReasonableness, Run: checkReasonableness},
		{Name: domain.RuleStatCompletions, Run: checkStatCompleteness},
	}
}

// RunChecks исполняет весь набор конкурентно: правила независимы и читают
// куб только на чтение. Результаты возвращаются в порядке объявления правил
// независимо от порядка завершения; падение одного правила не мешает другим.
func RunChecks(ctx context.Context, repo cube.Repository, pov domain.POV) []domain.ValidationResult {
	checks := Checks()
	out := make([]domain.ValidationResult, len(checks))

	var wg sync.WaitGroup
	for i, rule := range checks {
		wg.Add(1)
		go func(i int, rule Rule) {
			defer wg.Done()
			res, err := rule.Run(ctx, repo, pov)
			if err != nil {
				// Документированная деградация: сбой выборки -> Warning
				// с именем правила, никогда не наружу
				out[i] = domain.ValidationResult{
					Rule:     rule.Name,
					Severity: domain.SeverityWarning,
					Message:  fmt.Sprintf("check skipped, data fetch failed: %v", err),
				}
				return
			}
			out[i] = res
		}(i, rule)
	}
	wg.Wait()

	return out
}

func checkTrialBalance(ctx context.Context, repo cube.Repository, pov domain.POV) (domain.ValidationResult, error) {
	debits, err := cube.Value(ctx, repo, pov.WithAccount(domain.AcctTotalDebits))
	if err != nil {
		return domain.ValidationResult{}, err
	}
	credits, err := cube.Value(ctx, repo, pov.WithAccount(domain.AcctTotalCredits))
	if err != nil {
		return domain.ValidationResult{}, err
	}

	diff := math.Abs(debits - credits)
	if diff > TrialBalanceTolerance {
		return domain.ValidationResult{
			Rule:     domain.RuleTrialBalance,
			Severity: domain.SeverityCritical,
			Message: fmt.Sprintf("trial balance out of balance: debits=%.2f credits=%.2f difference=%.2f",
				debits, credits, diff),
		}, nil
	}
	return pass(domain.RuleTrialBalance, "debits and credits balanced"), nil
}

func checkBalanceSheet(ctx context.Context, repo cube.Repository, pov domain.POV) (domain.ValidationResult, error) {
	assets, err := cube.Value(ctx, repo, pov.WithAccount(domain.AcctTotalAssets))
	if err != nil {
		return domain.ValidationResult{}, err
	}
	liabilities, err := cube.Value(ctx, repo, pov.WithAccount(domain.AcctTotalLiabilities))
	if err != nil {
		return domain.ValidationResult{}, err
	}
	equity, err := cube.Value(ctx, repo, pov.WithAccount(domain.AcctTotalEquity))
	if err != nil {
		return domain.ValidationResult{}, err
	}

	diff := math.Abs(assets - (liabilities + equity))
	if diff > BalanceSheetTolerance {
		return domain.ValidationResult{
			Rule:     domain.RuleBalanceSheet,
			Severity: domain.SeverityCritical,
			Message: fmt.Sprintf("balance sheet equation violated: assets=%.2f liabilities+equity=%.2f difference=%.2f",
				assets, liabilities+equity, diff),
		}, nil
	}
	return pass(domain.RuleBalanceSheet, "assets equal liabilities plus equity"), nil
}

func checkRequiredAccounts(ctx context.Context, repo cube.Repository, pov domain.POV) (domain.ValidationResult, error) {
	var missing []string
	for _, acct := range domain.RequiredAccounts {
		v, err := cube.Value(ctx, repo, pov.WithAccount(acct))
		if err != nil {
			return domain.ValidationResult{}, err
		}
		if v == 0 {
			missing = append(missing, acct)
		}
	}

	if len(missing) > 0 {
		return domain.ValidationResult{
			Rule:     domain.RuleRequiredAccts,
			Severity: domain.SeverityCritical,
			Message:  "required accounts have no data: " + strings.Join(missing, ", "),
		}, nil
	}
	return pass(domain.RuleRequiredAccts, "all required accounts populated"), nil
}

func checkInventorySign(ctx context.Context, repo cube.Repository, pov domain.POV) (domain.ValidationResult, error) {
	var negative []string
	for _, acct := range domain.InventoryAccounts {
		v, err := cube.Value(ctx, repo, pov.WithAccount(acct))
		if err != nil {
			return domain.ValidationResult{}, err
		}
		if v < 0 {
			negative = append(negative, fmt.Sprintf("%s=%.2f", acct, v))
		}
	}

	if len(negative) > 0 {
		return domain.ValidationResult{
			Rule:     domain.RuleInventorySign,
			Severity: domain.SeverityCritical,
			Message:  "negative inventory balances: " + strings.Join(negative, ", "),
		}, nil
	}
	return pass(domain.RuleInventorySign, "inventory balances non-negative"), nil
}

// checkReasonableness — эвристики здравого смысла. Не блокируют закрытие:
// любое срабатывание собирается в один Warning.
func checkReasonableness(ctx context.Context, repo cube.Repository, pov domain.POV) (domain.ValidationResult, error) {
	revenue, err := cube.Value(ctx, repo, pov.WithAccount(domain.AcctTotalRevenue))
	if err != nil {
		return domain.ValidationResult{}, err
	}
	cogs, err := cube.Value(ctx, repo, pov.WithAccount(domain.AcctTotalCOGS))
	if err != nil {
		return domain.ValidationResult{}, err
	}
	cash, err := cube.Value(ctx, repo, pov.WithAccount(domain.AcctCash))
	if err != nil {
		return domain.ValidationResult{}, err
	}

	var findings []string
	if revenue < 0 {
		findings = append(findings, fmt.Sprintf("revenue is negative (%.2f)", revenue))
	}
	if cogs < 0 {
		findings = append(findings, fmt.Sprintf("COGS is negative (%.2f)", cogs))
	}
	if cash < CashFloor {
		findings = append(findings, fmt.Sprintf("cash balance below %.0f (%.2f)", CashFloor, cash))
	}

	if len(findings) > 0 {
		return domain.ValidationResult{
			Rule:     domain.RuleReasonableness,
			Severity: domain.SeverityWarning,
			Message:  "reasonableness findings: " + strings.Join(findings, "; "),
		}, nil
	}
	return pass(domain.RuleReasonableness, "values within reasonable ranges"), nil
}

// checkStatCompleteness — пропуски статистики дают Warning, не Critical:
// дыры в статсчетах закрытие не блокируют.
func checkStatCompleteness(ctx context.Context, repo cube.Repository, pov domain.POV) (domain.ValidationResult, error) {
	var missing []string
	for _, acct := range domain.StatAccounts {
		v, err := cube.Value(ctx, repo, pov.WithAccount(acct))
		if err != nil {
			return domain.ValidationResult{}, err
		}
		if v == 0 {
			missing = append(missing, acct)
		}
	}

	if len(missing) > 0 {
		return domain.ValidationResult{
			Rule:     domain.RuleStatCompletions,
			Severity: domain.SeverityWarning,
			Message:  "statistical accounts not loaded: " + strings.Join(missing, ", "),
		}, nil
	}
	return pass(domain.RuleStatCompletions, "statistical accounts populated"), nil
}

func pass(rule, msg string) domain.ValidationResult {
	return domain.ValidationResult{Rule: rule, Severity: domain.SeverityPass, Message: msg}
}
