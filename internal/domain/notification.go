package domain

// EventKind — классификация исходящего события для роутинга уведомлений.
type EventKind string

const (
	EventSubmission  EventKind = "SUBMISSION"
	EventApproval    EventKind = "APPROVAL"
	EventRejection   EventKind = "REJECTION"
	EventDataQuality EventKind = "DATA_QUALITY_FAILURE"
	EventICMismatch  EventKind = "IC_MISMATCH"
	EventBudgetAlert EventKind = "BUDGET_ALERT"
)

// Роли адресатов. Резолвятся в адреса через внешний каталог
// с фоллбэком entity -> global.
const (
	RoleApprover    = "approver"
	RoleSubmitter   = "submitter"
	RoleDataSteward = "data-steward"
	RoleController  = "controller"
)

// NotificationEvent — событие-исход, публикуемое движком и потребляемое
// диспетчером уведомлений. Несет POV и событийные поля; список разрешенных
// адресатов и каналов заполняет диспетчер по факту попыток доставки.
type NotificationEvent struct {
	Kind EventKind `json:"kind"`
	POV  POV       `json:"pov"`

	// Fields — событийные детали (причины отказа, список расхождений и т.п.)
	Fields map[string]string `json:"fields,omitempty"`

	// Заполняется диспетчером, для аудита доставки
	RecipientsResolved []string `json:"recipients_resolved,omitempty"`
	ChannelsAttempted  []string `json:"channels_attempted,omitempty"`
}
