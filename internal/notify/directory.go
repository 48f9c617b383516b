package notify

import (
	"context"

	"github.com/xela07ax/closegate-platform/internal/domain"
)

// Directory — внешний каталог адресатов. Resolve возвращает адрес роли
// с двухуровневым фоллбэком (карта юрлица, затем глобальная); если адресата
// нет нигде — store.ErrAbsent, и диспетчер молча пропускает роль.
type Directory interface {
	Resolve(ctx context.Context, entity, role string) (string, error)
	WebhookURL(ctx context.Context, entity string) (string, error)
}

// rolesFor — карта «вид события -> требуемые роли». Для IC-расхождений
// диспетчер дополнительно резолвит контролеров юрлиц-контрагентов.
func rolesFor(kind domain.EventKind) []string {
	switch kind {
	case domain.EventSubmission:
		return []string{domain.RoleApprover}
	case domain.EventApproval, domain.EventRejection:
		return []string{domain.RoleSubmitter}
	case domain.EventDataQuality:
		return []string{domain.RoleDataSteward}
	case domain.EventICMismatch, domain.EventBudgetAlert:
		return []string{domain.RoleController}
	default:
		return nil
	}
}
