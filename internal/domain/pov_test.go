package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPOVValidate(t *testing.T) {
	t.Parallel()

	valid := POV{Scenario: "Actual", Period: "2025M12", Entity: "US01"}
	require.NoError(t, valid.Validate())

	for _, tc := range []struct {
		name string
		pov  POV
		want string
	}{
		{"no scenario", POV{Period: "2025M12", Entity: "US01"}, "scenario"},
		{"no period", POV{Scenario: "Actual", Entity: "US01"}, "period"},
		{"no entity", POV{Scenario: "Actual", Period: "2025M12"}, "entity"},
		{"all empty", POV{}, "scenario, period, entity"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.pov.Validate()
			require.ErrorIs(t, err, ErrBadPOV)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestPOVWithDoesNotMutateOriginal(t *testing.T) {
	t.Parallel()

	base := POV{Scenario: "Actual", Period: "2025M12", Entity: "US01"}

	withAcct := base.WithAccount("TotalRevenue")
	withIC := withAcct.WithIC("DE01")
	withEntity := withIC.WithEntity("DE01")

	assert.Empty(t, base.Account)
	assert.Empty(t, base.Extra)
	assert.Equal(t, "TotalRevenue", withAcct.Account)
	assert.Empty(t, withAcct.Extra["IC"])
	assert.Equal(t, "DE01", withIC.Extra["IC"])
	assert.Equal(t, "US01", withIC.Entity)
	assert.Equal(t, "DE01", withEntity.Entity)
	// Производная координата несет и счет, и IC-пометку
	assert.Equal(t, "TotalRevenue", withEntity.Account)
	assert.Equal(t, "DE01", withEntity.Extra["IC"])
}

func TestPOVString(t *testing.T) {
	t.Parallel()

	pov := POV{Scenario: "Actual", Period: "2025M12", Entity: "US01"}
	assert.Equal(t, "Actual:2025M12:US01", pov.String())
	assert.Equal(t, "Actual:2025M12:US01:ICReceivable", pov.WithAccount(AcctICReceivable).String())
	assert.Equal(t, "Actual:2025M12:US01:ICReceivable:IC=DE01",
		pov.WithAccount(AcctICReceivable).WithIC("DE01").String())
}

func TestParseTransition(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"SUBMIT", "IC_RECONCILIATION", "APPROVE", "PUBLISH", "REJECT"} {
		kind, err := ParseTransition(s)
		require.NoError(t, err)
		assert.Equal(t, TransitionKind(s), kind)
	}

	_, err := ParseTransition("submit")
	require.ErrorIs(t, err, ErrUnknownTransition)
	_, err = ParseTransition("")
	require.ErrorIs(t, err, ErrUnknownTransition)
}

func TestDecisionConstructors(t *testing.T) {
	t.Parallel()

	allow := Allow()
	assert.True(t, allow.Allowed)
	assert.Empty(t, allow.Reasons)

	reject := Reject([]string{"a", "b"})
	assert.False(t, reject.Allowed)
	assert.Equal(t, []string{"a", "b"}, reject.Reasons)

	// Отказ без причин невозможен даже при пустом входе
	empty := Reject(nil)
	assert.False(t, empty.Allowed)
	assert.NotEmpty(t, empty.Reasons)
}

func TestHasCritical(t *testing.T) {
	t.Parallel()

	assert.False(t, HasCritical(nil))
	assert.False(t, HasCritical([]ValidationResult{
		{Rule: RuleTrialBalance, Severity: SeverityPass},
		{Rule: RuleReasonableness, Severity: SeverityWarning},
	}))
	assert.True(t, HasCritical([]ValidationResult{
		{Rule: RuleTrialBalance, Severity: SeverityPass},
		{Rule: RuleBalanceSheet, Severity: SeverityCritical},
	}))
}
