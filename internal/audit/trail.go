package audit

/*
Файл trail.go реализует компонент Audit Trail — движок сбора и персистентности
записей аудита закрытия периода.

Ключевые особенности архитектуры:
- Non-blocking Logging: Использование неблокирующих каналов для передачи записей
  из Hot Path оценки шлюзов. Задержки записи в БД не влияют на время решения.
- Batching & Efficiency: Накопление записей в памяти и пакетная запись (Bulk Insert)
  в PostgreSQL по таймеру или при достижении лимита (100 записей).
- Drain Pattern & Graceful Shutdown: Реализован механизм полной вычитки буфера
  при остановке сервиса. С помощью sync.WaitGroup и закрытия каналов гарантируется
  Final Flush — отсутствие потерь записей при перезагрузке системы.
- Never-throw: Любой сбой внутри логгера гасится и в худшем случае уходит
  в резервный zap-лог. Решение шлюза он изменить не может.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink определяет, куда физически сохраняются записи
type Sink interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, entries []Entry) error
}

type Logger interface {
	Log(entry Entry)
}

type Trail struct {
	ch     chan Entry // Буфер для асинхронности
	sink   Sink       // Интерфейс для Postgres
	logger *zap.Logger
	wg     sync.WaitGroup

	flushEvery time.Duration

	// Защита от Log после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

func NewTrail(sink Sink, logger *zap.Logger, buffer int, flushEvery time.Duration) *Trail {
	if buffer <= 0 {
		buffer = 10000
	}
	if flushEvery <= 0 {
		flushEvery = 500 * time.Millisecond
	}
	return &Trail{
		ch:         make(chan Entry, buffer),
		sink:       sink,
		logger:     logger.With(zap.String("mod", "audit-trail")),
		flushEvery: flushEvery,
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&t.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Закрываем (Drain Pattern). Завершение воркера происходит исключительно
	// через закрытие входного канала.
	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait() // Ждем, пока воркер вычитает остатки и вызовет flush()
	t.logger.Info("audit trail stopped gracefully")
}

// Log принимает запись. Никогда не блокирует и не роняет вызывающего:
// сбой аудита не имеет права изменить решение шлюза.
func (t *Trail) Log(entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			// Последний рубеж: паника логгера уходит в резервный лог
			t.logger.Error("audit log panic recovered", zap.Any("panic", r))
		}
	}()

	// Убеждаемся, что идентификаторы и таймстемп всегда проставлены
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	// Атомарно проверяем, не закрыт ли канал
	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit entry dropped: trail is stopping", zap.String("id", entry.ID))
		return
	}

	// Стратегия Load Shedding: переполненный буфер не тормозит оценку
	select {
	case t.ch <- entry:
	default:
		// Канал переполнен (Backpressure) — фиксируем в резервном логе,
		// чтобы запись не пропала бесследно
		t.logger.Error("audit_buffer_overflow",
			zap.String("category", entry.Category),
			zap.String("entity", entry.Entity),
			zap.String("line", entry.Line()),
		)
	}
}

// Pending — текущая заполненность буфера (для метрик backpressure).
func (t *Trail) Pending() int {
	return len(t.ch)
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Entry, 0, 100)
	ticker := time.NewTicker(t.flushEvery)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Батч сбрасывается в любом исходе: мёртвый sink не должен
		// превращаться в неограниченный рост памяти
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("audit sink panic recovered", zap.Any("panic", r))
			}
			batch = batch[:0]
		}()
		// Используем Background: основной контекст может быть уже закрыт
		if err := t.sink.WriteBatch(context.Background(), batch); err != nil {
			t.logger.Error("audit flush failed", zap.Error(err))
		}
	}

	for {
		select {
		case entry, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop() — самодостаточный сигнал завершения.
				// Воркер сначала вычитал всё из очереди, только потом получил
				// ok == false, теперь финальный flush и выход.
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, entry)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
