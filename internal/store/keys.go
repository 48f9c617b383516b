package store

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных платформы в Redis
	RedisNamespace = "closegate"

	// configPrefix — под ним лежат все записи ConfigStore
	configPrefix = RedisNamespace + ":cfg:"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanEvents — канал трансляции NotificationEvent из движка в notifier.
	RedisChanEvents = RedisNamespace + ":notify:events"
)

// Форматы ключей ConfigStore. Это внешний контракт: те же ключи пишут и
// читают другие правила платформы, менять формат нельзя.

// DataQualityKey — флаг "качество данных пройдено" за период.
func DataQualityKey(entity, period string) string {
	return fmt.Sprintf("dataQualityStatus_%s_%s", entity, period)
}

// ICReconKey — подтвержденный человеком статус IC-сверки.
func ICReconKey(entity, period string) string {
	return fmt.Sprintf("icReconStatus_%s_%s", entity, period)
}

// ApprovalKey — менеджерское одобрение сценария; для Actual не требуется.
func ApprovalKey(entity, scenario, period string) string {
	return fmt.Sprintf("managerApproval_%s_%s_%s", entity, scenario, period)
}

// CommentaryKey — комментарий к существенному отклонению счета.
func CommentaryKey(entity, account, period string) string {
	return fmt.Sprintf("%s_%s_%s", entity, account, period)
}

// ICPartnersKey — настроенный список IC-контрагентов юрлица (через запятую).
func ICPartnersKey(entity string) string {
	return fmt.Sprintf("icPartners_%s", entity)
}

// RoleKey — адрес роли. Фоллбэк-каталог живет под entity="global".
func RoleKey(entity, role string) string {
	return fmt.Sprintf("role_%s_%s", entity, role)
}

// WebhookKey — URL чат-вебхука юрлица; фоллбэк под "global".
func WebhookKey(entity string) string {
	return fmt.Sprintf("webhookUrl_%s", entity)
}

// Ожидаемые значения флагов workflow.
const (
	FlagPassed     = "passed"
	FlagFailed     = "failed"
	FlagReconciled = "reconciled"
	FlagApproved   = "approved"
)
