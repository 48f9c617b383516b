package domain

// Severity — исход проверки качества данных. Транзакцию блокирует только CRITICAL.
type Severity string

const (
	SeverityPass     Severity = "PASS"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Имена правил валидации. Фиксированный набор, порядок запуска = порядок отчета.
const (
	RuleTrialBalance    = "TRIAL_BALANCE"
	RuleBalanceSheet    = "BALANCE_SHEET_EQUATION"
	RuleRequiredAccts   = "REQUIRED_ACCOUNTS"
	RuleInventorySign   = "INVENTORY_SIGN"
	RuleReasonableness  = "REASONABLENESS"
	RuleStatCompletions = "STATISTICAL_COMPLETENESS"
)

// ValidationResult — результат одного правила за один прогон.
// Severity неизменяема после создания; результаты никогда не сливаются.
type ValidationResult struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// HasCritical — есть ли в наборе хотя бы один блокирующий результат.
func HasCritical(results []ValidationResult) bool {
	for _, r := range results {
		if r.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
