package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/closegate-platform/internal/domain"
)

// Категории записей аудита
const (
	CategoryGate        = "SUBMISSION_GATE"
	CategoryDataQuality = "DATA_QUALITY"
	CategoryICMatch     = "IC_MATCH"
	CategoryVariance    = "BUDGET_VARIANCE"
	CategoryWorkflow    = "WORKFLOW_ACTION"
	CategoryNotify      = "NOTIFICATION"
	CategorySystem      = "SYSTEM"
)

// Статусы записей
const (
	StatusAllowed  = "ALLOWED"
	StatusBlocked  = "BLOCKED"
	StatusPass     = "PASS"
	StatusError    = "ERROR"
	StatusSent     = "SENT"
	StatusFailed   = "FAILED"
	StatusSkipped  = "SKIPPED"
	StatusCanceled = "CANCELED"
)

type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Entry — одна структурированная запись аудита. Фиксированный заголовок
// (категория, UTC-время, пользователь, сессия, машина, scenario, period,
// entity), затем событийные key/value-поля в порядке добавления.
type Entry struct {
	ID         string    `json:"id"`
	Category   string    `json:"category"`
	Timestamp  time.Time `json:"timestamp"`
	User       string    `json:"user"`
	SessionID  string    `json:"session_id"`
	Machine    string    `json:"machine"`
	Scenario   string    `json:"scenario"`
	Period     string    `json:"period"`
	Entity     string    `json:"entity"`
	Status     string    `json:"status"`
	Fields     []Field   `json:"fields,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// NewEntry снимает контекст исполнения в заголовок записи.
func NewEntry(category string, actx domain.AuditContext) Entry {
	return Entry{
		Category:  category,
		Timestamp: actx.Timestamp,
		User:      actx.User,
		SessionID: actx.SessionID,
		Machine:   actx.Machine,
		Scenario:  actx.Scenario,
		Period:    actx.Period,
		Entity:    actx.Entity,
	}
}

// Add дописывает событийное поле, прогоняя значение через санитайзер.
// Порядок полей сохраняется.
func (e *Entry) Add(key, value string) *Entry {
	e.Fields = append(e.Fields, Field{Key: key, Value: Sanitize(value)})
	return e
}

// Line — каноническая строковая форма записи для append-only стока.
// Разделитель полей — вертикальная черта; санитайзер гарантирует,
// что внутри значений ее нет.
func (e Entry) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s|%s|%s|%s|%s|%s",
		e.Category,
		e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		e.User, e.SessionID, e.Machine,
		e.Scenario, e.Period, e.Entity,
		e.Status,
	)
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "|%s=%s", f.Key, f.Value)
	}
	return b.String()
}
