package domain

import (
	"errors"
	"fmt"
	"time"
)

// TransitionKind — тип действия workflow, для которого запрошена оценка шлюза.
type TransitionKind string

const (
	TransitionSubmit  TransitionKind = "SUBMIT"
	TransitionICRecon TransitionKind = "IC_RECONCILIATION"
	TransitionApprove TransitionKind = "APPROVE"
	TransitionPublish TransitionKind = "PUBLISH"
	TransitionReject  TransitionKind = "REJECT"
)

var ErrUnknownTransition = errors.New("unknown transition kind")

// ParseTransition валидирует строку из внешнего запроса.
func ParseTransition(s string) (TransitionKind, error) {
	switch k := TransitionKind(s); k {
	case TransitionSubmit, TransitionICRecon, TransitionApprove, TransitionPublish, TransitionReject:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTransition, s)
	}
}

// Имена шлюзов. Порядок объявления = документированный порядок отчета.
const (
	GateDataQuality   = "DATA_QUALITY_FLAG"
	GateRequiredAccts = "REQUIRED_ACCOUNTS"
	GateICRecon       = "IC_RECONCILIATION"
	GateApproval      = "MANAGER_APPROVAL"
	GateCommentary    = "VARIANCE_COMMENTARY"
)

// GateCheckResult — исход одного именованного шлюза.
// Структурно параллелен ValidationResult, но независим от него.
type GateCheckResult struct {
	Gate   string `json:"gate"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// Decision — итог оценки: разрешить переход или заблокировать со списком причин.
// Инварианты держат конструкторы Allow/Reject: у Allow причин нет,
// у Reject список непустой. Отказ — это НЕ ошибка, ошибки ходят отдельным каналом.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Reject(reasons []string) Decision {
	if len(reasons) == 0 {
		reasons = []string{"submission blocked"}
	}
	return Decision{Allowed: false, Reasons: reasons}
}

// AuditContext — контекст исполнения, снимается один раз на запуск
// и прикрепляется к каждой записи аудита этого запуска.
type AuditContext struct {
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"` // Всегда UTC
	SessionID string    `json:"session_id"`
	Machine   string    `json:"machine"`
	Scenario  string    `json:"scenario"`
	Period    string    `json:"period"`
	Entity    string    `json:"entity"`
}
