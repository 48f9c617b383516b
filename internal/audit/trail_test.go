package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/closegate-platform/internal/domain"
)

// captureSink собирает все записанные пачки в память.
type captureSink struct {
	mu      sync.Mutex
	entries []Entry
	batches int
	fail    error
}

func (s *captureSink) WriteBatch(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.entries = append(s.entries, entries...)
	s.batches++
	return nil
}

func (s *captureSink) all() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func testEntry(category string) Entry {
	return NewEntry(category, domain.AuditContext{
		User:     "tester",
		Scenario: "Actual",
		Period:   "2025M12",
		Entity:   "US01",
	})
}

func TestTrailStopDrainsEverything(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	trail := NewTrail(sink, zap.NewNop(), 1000, time.Hour) // тикер не успеет
	trail.Start()

	const n = 250
	for i := 0; i < n; i++ {
		trail.Log(testEntry(CategoryGate))
	}
	trail.Stop()

	got := sink.all()
	require.Len(t, got, n)
	// Идентификаторы и время проставлены автоматически
	for _, e := range got {
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestTrailFlushesByBatchSize(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	trail := NewTrail(sink, zap.NewNop(), 1000, time.Hour)
	trail.Start()

	// Полная сотня уходит без участия тикера
	for i := 0; i < 100; i++ {
		trail.Log(testEntry(CategoryDataQuality))
	}
	require.Eventually(t, func() bool {
		return len(sink.all()) == 100
	}, 2*time.Second, 10*time.Millisecond)

	trail.Stop()
	assert.Len(t, sink.all(), 100)
}

func TestTrailFlushesByTicker(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	trail := NewTrail(sink, zap.NewNop(), 1000, 20*time.Millisecond)
	trail.Start()
	defer trail.Stop()

	trail.Log(testEntry(CategoryICMatch))
	require.Eventually(t, func() bool {
		return len(sink.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTrailLogAfterStopDoesNotPanic(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	trail := NewTrail(sink, zap.NewNop(), 10, time.Hour)
	trail.Start()
	trail.Stop()

	// Запись после остановки молча отбрасывается
	assert.NotPanics(t, func() {
		trail.Log(testEntry(CategoryGate))
	})
	assert.Empty(t, sink.all())
}

func TestTrailNeverBlocksOnFullBuffer(t *testing.T) {
	t.Parallel()

	// Воркер не запущен: буфер на 2 записи переполнится сразу
	sink := &captureSink{}
	trail := NewTrail(sink, zap.NewNop(), 2, time.Hour)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			trail.Log(testEntry(CategoryGate))
		}
		close(done)
	}()

	select {
	case <-done:
		// Load shedding: лишнее ушло в резервный лог, вызывающий не завис
	case <-time.After(2 * time.Second):
		t.Fatal("Log blocked on full buffer")
	}
	assert.Equal(t, 2, trail.Pending())
}

func TestTrailSinkFailureDoesNotStopWorker(t *testing.T) {
	t.Parallel()

	sink := &captureSink{fail: errors.New("pg down")}
	trail := NewTrail(sink, zap.NewNop(), 100, 10*time.Millisecond)
	trail.Start()

	trail.Log(testEntry(CategoryGate))
	time.Sleep(50 * time.Millisecond)

	// База ожила — следующие записи доезжают
	sink.mu.Lock()
	sink.fail = nil
	sink.mu.Unlock()

	trail.Log(testEntry(CategoryGate))
	trail.Stop()
	assert.NotEmpty(t, sink.all())
}
