package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/closegate-platform/internal/audit"
	"github.com/xela07ax/closegate-platform/internal/cube"
	"github.com/xela07ax/closegate-platform/internal/domain"
	"github.com/xela07ax/closegate-platform/internal/rules"
	"github.com/xela07ax/closegate-platform/internal/store"
)

var (
	actualPOV = domain.POV{Scenario: "Actual", Period: "2025M12", Entity: "US01"}
	budgetPOV = domain.POV{Scenario: "Budget", Period: "2025M12", Entity: "US01"}
)

// captureTrail пишет записи аудита в память вместо Postgres.
type captureTrail struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *captureTrail) Log(e audit.Entry) {
	c.mu.Lock()
	c.entries = append(c.entries, e)
	c.mu.Unlock()
}

func (c *captureTrail) byCategory(category string) []audit.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []audit.Entry
	for _, e := range c.entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

func (c *captureTrail) field(e audit.Entry, key string) string {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

type testRig struct {
	core  *Core
	cube  *cube.Static
	store *store.Redis
	redis *miniredis.Miniredis
	trail *captureTrail
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := zap.NewNop()
	st := store.NewRedis(rdb, logger)
	c := cube.NewStatic()
	trail := &captureTrail{}

	core := NewCore(
		c, st,
		rules.NewMatcher(c, st, logger),
		rules.NewScanner(c, logger),
		trail,
		NewMetrics(nil),
		logger,
	)
	return &testRig{core: core, cube: c, store: st, redis: mr, trail: trail}
}

// seedSubmittable готовит состояние, в котором SUBMIT по Actual проходит
// все пять шлюзов: флаг качества выставлен, обязательные счета заполнены,
// IC-активности нет, отклонений от бюджета нет.
func (r *testRig) seedSubmittable(t *testing.T, pov domain.POV) {
	t.Helper()
	budget := pov.WithScenario(domain.ScenarioBudget)
	for _, acct := range domain.RequiredAccounts {
		r.cube.Set(pov.WithAccount(acct), 100000)
		r.cube.Set(budget.WithAccount(acct), 100000)
	}
	require.NoError(t, r.store.Set(context.Background(), store.DataQualityKey(pov.Entity, pov.Period), store.FlagPassed))
}

func (r *testRig) input(t *testing.T, pov domain.POV, kind domain.TransitionKind) gateInput {
	t.Helper()
	return gateInput{
		pov:   pov,
		kind:  kind,
		flags: store.NewFlagLoader(r.store).Load(context.Background(), pov),
	}
}

func TestGateDataQuality(t *testing.T) {
	t.Parallel()
	r := newTestRig(t)
	ctx := context.Background()

	// Флаг не выставлен: проверки не запускались — блокируем
	res, err := r.core.gateDataQuality(ctx, r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Reason, "data quality checks have not passed")

	// Флаг failed: блокируем
	require.NoError(t, r.store.Set(ctx, store.DataQualityKey("US01", "2025M12"), store.FlagFailed))
	res, err = r.core.gateDataQuality(ctx, r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.False(t, res.Passed)

	// Флаг passed: пропускаем
	require.NoError(t, r.store.Set(ctx, store.DataQualityKey("US01", "2025M12"), store.FlagPassed))
	res, err = r.core.gateDataQuality(ctx, r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestGateDataQualityStoreFailureIsPassOpen(t *testing.T) {
	t.Parallel()
	r := newTestRig(t)

	in := gateInput{
		pov:  actualPOV,
		kind: domain.TransitionSubmit,
		flags: store.WorkflowFlags{
			DataQuality: store.Flag{Err: errors.New("redis down")},
		},
	}
	res, err := r.core.gateDataQuality(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Contains(t, res.Reason, "warning")
	assert.Contains(t, res.Reason, "gate passed open")
}

func TestGateRequiredAccounts(t *testing.T) {
	t.Parallel()
	r := newTestRig(t)
	ctx := context.Background()

	// Пустой куб: все четыре счета без данных
	res, err := r.core.gateRequiredAccounts(ctx, r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.False(t, res.Passed)
	for _, acct := range domain.RequiredAccounts {
		assert.Contains(t, res.Reason, acct)
	}

	r.seedSubmittable(t, actualPOV)
	res, err = r.core.gateRequiredAccounts(ctx, r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.True(t, res.Passed)

	// Нечитаемый счет — самая мягкая интерпретация
	r.cube.Fail(actualPOV.WithAccount(domain.AcctTotalRevenue), errors.New("cube timeout"))
	res, err = r.core.gateRequiredAccounts(ctx, r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Contains(t, res.Reason, "gate passed open")
}

func TestGateICReconciliation(t *testing.T) {
	t.Parallel()
	r := newTestRig(t)
	ctx := context.Background()

	// Для утверждения шлюз не оценивается
	res, err := r.core.gateICReconciliation(ctx, r.input(t, actualPOV, domain.TransitionApprove))
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, "not required for this transition", res.Reason)

	// Активности нет — автоматический проход
	res, err = r.core.gateICReconciliation(ctx, r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, "no intercompany activity", res.Reason)

	// Активность есть, подтверждения нет — блокируем
	r.cube.Set(actualPOV.WithAccount(domain.AcctICReceivable), 75000)
	res, err = r.core.gateICReconciliation(ctx, r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Reason, "not reconciled")

	// Человек подтвердил сверку
	require.NoError(t, r.store.Set(ctx, store.ICReconKey("US01", "2025M12"), store.FlagReconciled))
	res, err = r.core.gateICReconciliation(ctx, r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestGateICReconciliationUnreadableActivity(t *testing.T) {
	t.Parallel()
	r := newTestRig(t)

	r.cube.Fail(actualPOV.WithAccount(domain.AcctICReceivable), errors.New("cube down"))
	res, err := r.core.gateICReconciliation(context.Background(), r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Contains(t, res.Reason, "gate passed open")
}

func TestGateManagerApproval(t *testing.T) {
	t.Parallel()
	r := newTestRig(t)
	ctx := context.Background()

	// Факт одобрения не требует
	res, err := r.core.gateManagerApproval(ctx, r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.True(t, res.Passed)

	// Бюджетный сценарий без одобрения — блокируем с точной причиной
	res, err = r.core.gateManagerApproval(ctx, r.input(t, budgetPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "manager approval required for scenario Budget before submission", res.Reason)

	// Ключ одобрения включает сценарий: одобрение другого сценария не считается
	require.NoError(t, r.store.Set(ctx, store.ApprovalKey("US01", "RF03", "2025M12"), store.FlagApproved))
	res, err = r.core.gateManagerApproval(ctx, r.input(t, budgetPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.False(t, res.Passed)

	require.NoError(t, r.store.Set(ctx, store.ApprovalKey("US01", "Budget", "2025M12"), store.FlagApproved))
	res, err = r.core.gateManagerApproval(ctx, r.input(t, budgetPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestGateVarianceCommentary(t *testing.T) {
	t.Parallel()
	r := newTestRig(t)
	ctx := context.Background()
	budget := actualPOV.WithScenario(domain.ScenarioBudget)

	// Несущественное отклонение комментария не требует
	r.cube.Set(actualPOV.WithAccount(domain.AcctTotalRevenue), 101000)
	r.cube.Set(budget.WithAccount(domain.AcctTotalRevenue), 100000)
	res, err := r.core.gateVarianceCommentary(ctx, r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.True(t, res.Passed)

	// Существенное отклонение без комментария — блокируем, в причине имя счета
	r.cube.Set(actualPOV.WithAccount(domain.AcctTotalCOGS), 130000)
	r.cube.Set(budget.WithAccount(domain.AcctTotalCOGS), 100000)
	res, err = r.core.gateVarianceCommentary(ctx, r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Reason, "lack commentary")
	assert.Contains(t, res.Reason, "Cost of Goods Sold")

	// С комментарием проходит; ключ комментария — entity_account_period
	require.NoError(t, r.store.Set(ctx, store.CommentaryKey("US01", domain.AcctTotalCOGS, "2025M12"), "price increase from supplier"))
	res, err = r.core.gateVarianceCommentary(ctx, r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestGateVarianceCommentaryActualOnly(t *testing.T) {
	t.Parallel()
	r := newTestRig(t)

	// Бюджета нет вовсе: ненулевой факт трактуется как 100% отклонение
	r.cube.Set(actualPOV.WithAccount(domain.AcctTotalOpex), 5000)

	res, err := r.core.gateVarianceCommentary(context.Background(), r.input(t, actualPOV, domain.TransitionSubmit))
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Reason, "Total Operating Expenses")
}
