package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/closegate-platform/internal/cube"
	"github.com/xela07ax/closegate-platform/internal/domain"
)

var testPOV = domain.POV{Scenario: "Actual", Period: "2025M12", Entity: "US01"}

// seedHealthy наполняет куб согласованным закрытым периодом:
// все шесть правил на этом наборе проходят.
func seedHealthy(c *cube.Static, pov domain.POV) {
	set := func(acct string, v float64) { c.Set(pov.WithAccount(acct), v) }
	set(domain.AcctTotalDebits, 500000)
	set(domain.AcctTotalCredits, 500000)
	set(domain.AcctTotalAssets, 800000)
	set(domain.AcctTotalLiabilities, 500000)
	set(domain.AcctTotalEquity, 300000)
	set(domain.AcctTotalRevenue, 1000000)
	set(domain.AcctTotalCOGS, 600000)
	set(domain.AcctGrossProfit, 400000)
	set(domain.AcctTotalOpex, 200000)
	set(domain.AcctCash, 50000)
	set(domain.AcctRawMaterials, 10000)
	set(domain.AcctWorkInProgress, 5000)
	set(domain.AcctFinishedGoods, 20000)
	set(domain.AcctHeadcount, 100)
	set(domain.AcctFTE, 95)
	set(domain.AcctProduction, 5000)
}

func TestRunChecksAllPass(t *testing.T) {
	t.Parallel()

	c := cube.NewStatic()
	seedHealthy(c, testPOV)

	results := RunChecks(context.Background(), c, testPOV)
	require.Len(t, results, 6)

	// Порядок отчета фиксирован порядком объявления правил,
	// независимо от порядка завершения горутин
	wantOrder := []string{
		domain.RuleTrialBalance,
		domain.RuleBalanceSheet,
		domain.RuleRequiredAccts,
		domain.RuleInventorySign,
		domain.RuleReasonableness,
		domain.RuleStatCompletions,
	}
	for i, r := range results {
		assert.Equal(t, wantOrder[i], r.Rule)
		assert.Equal(t, domain.SeverityPass, r.Severity, "rule %s: %s", r.Rule, r.Message)
	}
}

func TestTrialBalanceOutOfBalance(t *testing.T) {
	t.Parallel()

	c := cube.NewStatic()
	seedHealthy(c, testPOV)
	c.Set(testPOV.WithAccount(domain.AcctTotalCredits), 500100)

	results := RunChecks(context.Background(), c, testPOV)
	r := results[0]
	assert.Equal(t, domain.RuleTrialBalance, r.Rule)
	assert.Equal(t, domain.SeverityCritical, r.Severity)
	assert.Equal(t,
		"trial balance out of balance: debits=500000.00 credits=500100.00 difference=100.00",
		r.Message)

	// Два цента сверх допуска — уже блокировка
	c.Set(testPOV.WithAccount(domain.AcctTotalCredits), 500000.02)
	results = RunChecks(context.Background(), c, testPOV)
	r = results[0]
	assert.Equal(t, domain.SeverityCritical, r.Severity)
	assert.Contains(t, r.Message, "0.02")
}

func TestTrialBalanceWithinTolerance(t *testing.T) {
	t.Parallel()

	c := cube.NewStatic()
	seedHealthy(c, testPOV)
	// Расхождение меньше цента допустимо
	c.Set(testPOV.WithAccount(domain.AcctTotalCredits), 500000.005)

	results := RunChecks(context.Background(), c, testPOV)
	assert.Equal(t, domain.SeverityPass, results[0].Severity)
}

func TestBalanceSheetEquationViolated(t *testing.T) {
	t.Parallel()

	c := cube.NewStatic()
	seedHealthy(c, testPOV)
	c.Set(testPOV.WithAccount(domain.AcctTotalAssets), 800002)

	results := RunChecks(context.Background(), c, testPOV)
	r := results[1]
	assert.Equal(t, domain.SeverityCritical, r.Severity)
	assert.Contains(t, r.Message, "balance sheet equation violated")
	assert.Contains(t, r.Message, "difference=2.00")

	// Запас в один доллар на округление трансляции не срабатывает
	c.Set(testPOV.WithAccount(domain.AcctTotalAssets), 800000.5)
	results = RunChecks(context.Background(), c, testPOV)
	assert.Equal(t, domain.SeverityPass, results[1].Severity)
}

func TestRequiredAccountsMissing(t *testing.T) {
	t.Parallel()

	c := cube.NewStatic()
	seedHealthy(c, testPOV)
	// Нулевая ячейка и отсутствующая ячейка эквивалентны
	c.Set(testPOV.WithAccount(domain.AcctGrossProfit), 0)

	results := RunChecks(context.Background(), c, testPOV)
	r := results[2]
	assert.Equal(t, domain.SeverityCritical, r.Severity)
	assert.Contains(t, r.Message, "required accounts have no data")
	assert.Contains(t, r.Message, domain.AcctGrossProfit)
	assert.NotContains(t, r.Message, domain.AcctTotalRevenue)
}

func TestInventoryNegativeBalance(t *testing.T) {
	t.Parallel()

	c := cube.NewStatic()
	seedHealthy(c, testPOV)
	c.Set(testPOV.WithAccount(domain.AcctFinishedGoods), -50)

	results := RunChecks(context.Background(), c, testPOV)
	r := results[3]
	assert.Equal(t, domain.SeverityCritical, r.Severity)
	assert.Contains(t, r.Message, "FinishedGoods=-50.00")
}

func TestReasonablenessIsWarningNotCritical(t *testing.T) {
	t.Parallel()

	c := cube.NewStatic()
	seedHealthy(c, testPOV)
	c.Set(testPOV.WithAccount(domain.AcctTotalRevenue), -10)
	c.Set(testPOV.WithAccount(domain.AcctCash), -2000000)

	results := RunChecks(context.Background(), c, testPOV)
	r := results[4]
	assert.Equal(t, domain.SeverityWarning, r.Severity)
	assert.Contains(t, r.Message, "revenue is negative")
	assert.Contains(t, r.Message, "cash balance below")
}

func TestCashFloorBoundary(t *testing.T) {
	t.Parallel()

	c := cube.NewStatic()
	seedHealthy(c, testPOV)
	// Ровно на отметке — еще не подозрительно
	c.Set(testPOV.WithAccount(domain.AcctCash), -1000000)

	results := RunChecks(context.Background(), c, testPOV)
	assert.Equal(t, domain.SeverityPass, results[4].Severity)

	c.Set(testPOV.WithAccount(domain.AcctCash), -1000000.5)
	results = RunChecks(context.Background(), c, testPOV)
	assert.Equal(t, domain.SeverityWarning, results[4].Severity)
}

func TestStatCompletenessWarning(t *testing.T) {
	t.Parallel()

	c := cube.NewStatic()
	seedHealthy(c, testPOV)
	c.Set(testPOV.WithAccount(domain.AcctHeadcount), 0)

	results := RunChecks(context.Background(), c, testPOV)
	r := results[5]
	assert.Equal(t, domain.SeverityWarning, r.Severity)
	assert.Contains(t, r.Message, domain.AcctHeadcount)
}

func TestFetchFailureDegradesToWarning(t *testing.T) {
	t.Parallel()

	c := cube.NewStatic()
	seedHealthy(c, testPOV)
	c.Fail(testPOV.WithAccount(domain.AcctTotalDebits), errors.New("cube timeout"))

	results := RunChecks(context.Background(), c, testPOV)
	r := results[0]
	assert.Equal(t, domain.SeverityWarning, r.Severity)
	assert.Contains(t, r.Message, "check skipped, data fetch failed")
	assert.Contains(t, r.Message, "cube timeout")

	// Сбой одного правила не трогает остальные
	for _, other := range results[1:] {
		assert.Equal(t, domain.SeverityPass, other.Severity, other.Rule)
	}
}
