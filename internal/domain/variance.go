package domain

import "fmt"

// BudgetAlert — существенное отклонение факта от бюджета по одному счету.
// Производится сканом отклонений (триггер уведомлений), но использует
// тот же паттерн сравнения с допуском, что и шлюз комментариев.
type BudgetAlert struct {
	Account     string  `json:"account"`
	AccountName string  `json:"account_name"`
	Actual      float64 `json:"actual"`
	Budget      float64 `json:"budget"`
	VarianceAmt float64 `json:"variance_amt"`
	VariancePct float64 `json:"variance_pct"`
	Favorable   bool    `json:"favorable"`
}

func (a BudgetAlert) String() string {
	dir := "unfavorable"
	if a.Favorable {
		dir = "favorable"
	}
	return fmt.Sprintf("%s: actual=%.0f budget=%.0f variance=%.0f (%.1f%%, %s)",
		a.AccountName, a.Actual, a.Budget, a.VarianceAmt, a.VariancePct, dir)
}
