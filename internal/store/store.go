package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/closegate-platform/internal/domain"
)

// ErrAbsent — ключ не задан. Отличать от сбоя стора: отсутствие флага
// это бизнес-состояние, сбой стора — инфраструктурная деградация.
var ErrAbsent = errors.New("config key absent")

// ConfigStore — внешнее key/value-состояние workflow: флаги, комментарии,
// списки контрагентов, адресные карты.
type ConfigStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Redis — реализация ConfigStore и каталога адресатов поверх Redis.
// Все ключи изолируются префиксом платформы, контрактный формат ключа
// при этом не меняется.
type Redis struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedis(rdb *redis.Client, logger *zap.Logger) *Redis {
	return &Redis{
		rdb:    rdb,
		logger: logger.With(zap.String("mod", "config-store")),
	}
}

func (s *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, configPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrAbsent
		}
		return "", fmt.Errorf("config get %s: %w", key, err)
	}
	return val, nil
}

func (s *Redis) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, configPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("config set %s: %w", key, err)
	}
	return nil
}

// Resolve возвращает адрес роли с двухуровневым фоллбэком:
// сначала карта юрлица, затем глобальная. Нет нигде — ErrAbsent.
func (s *Redis) Resolve(ctx context.Context, entity, role string) (string, error) {
	addr, err := s.Get(ctx, RoleKey(entity, role))
	if err == nil {
		return addr, nil
	}
	if !errors.Is(err, ErrAbsent) {
		return "", err
	}
	return s.Get(ctx, RoleKey("global", role))
}

// WebhookURL — URL чат-вебхука с тем же фоллбэком entity -> global.
func (s *Redis) WebhookURL(ctx context.Context, entity string) (string, error) {
	url, err := s.Get(ctx, WebhookKey(entity))
	if err == nil {
		return url, nil
	}
	if !errors.Is(err, ErrAbsent) {
		return "", err
	}
	return s.Get(ctx, WebhookKey("global"))
}

// ICPartners возвращает настроенный список контрагентов юрлица.
// Если список не задан — фоллбэк "все остальные базовые юрлица".
func (s *Redis) ICPartners(ctx context.Context, entity string) ([]string, error) {
	raw, err := s.Get(ctx, ICPartnersKey(entity))
	if err != nil {
		if errors.Is(err, ErrAbsent) {
			return OtherBaseEntities(entity), nil
		}
		return nil, err
	}
	return splitPartners(raw, entity), nil
}

// OtherBaseEntities — все базовые юрлица периметра, кроме самого entity.
func OtherBaseEntities(entity string) []string {
	out := make([]string, 0, len(domain.BaseEntities))
	for _, e := range domain.BaseEntities {
		if e != entity {
			out = append(out, e)
		}
	}
	return out
}

func splitPartners(raw, self string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && p != self {
			out = append(out, p)
		}
	}
	return out
}
