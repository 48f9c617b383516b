package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/closegate-platform/internal/domain"
	"github.com/xela07ax/closegate-platform/internal/store"
)

// Bus — шина событий между движком шлюза и воркером уведомлений.
// Развязка намеренная: решение шлюза никогда не ждет доставку.
type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewBus(rdb *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{
		rdb:    rdb,
		logger: logger.Named("event-bus"),
	}
}

// Publish — fire-and-forget: сбой публикации логируется и гасится,
// вызывающий о нем не узнает.
func (b *Bus) Publish(ctx context.Context, events []domain.NotificationEvent) {
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			b.logger.Error("event marshal failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
			continue
		}
		if err := b.rdb.Publish(ctx, store.RedisChanEvents, payload).Err(); err != nil {
			b.logger.Error("event publish failed",
				zap.String("kind", string(ev.Kind)),
				zap.String("entity", ev.POV.Entity),
				zap.Error(err))
		}
	}
}

// Listen — «живучая» подписка на канал событий: обрабатывает
// переподключения и разбор сообщений, пока жив контекст.
func (b *Bus) Listen(ctx context.Context, handler func(domain.NotificationEvent)) {
	for {
		pubsub := b.rdb.Subscribe(ctx, store.RedisChanEvents)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("failed to subscribe", zap.String("chan", store.RedisChanEvents), zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		b.logger.Info("subscribed to event channel", zap.String("chan", store.RedisChanEvents))
		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				var ev domain.NotificationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Error("invalid event payload", zap.String("payload", msg.Payload), zap.Error(err))
					continue
				}

				handler(ev)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}
